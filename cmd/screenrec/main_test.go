package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/internal/config"
)

func TestPromptChooser(t *testing.T) {
	suggested := filepath.Join("videos", "Screenrec-x.mp4")
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"accept", "\n", suggested, true},
		{"eof", "", suggested, true},
		{"discard", "-\n", "", false},
		{"file without extension", "clips/demo\n", filepath.Join("clips", "demo.mp4"), true},
		{"file", "  demo.mov  \n", "demo.mov", true},
		{"directory", "clips" + string(filepath.Separator) + "\n", filepath.Join("clips", "Screenrec-x.mp4"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := newPromptChooser(strings.NewReader(tt.input), &out)
			got, ok, err := c.ChooseDestination(context.Background(), suggested)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), suggested)
		})
	}
}

func TestPromptChooserCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := newPromptChooser(strings.NewReader("\n"), &bytes.Buffer{}).ChooseDestination(ctx, "a.mp4")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTargetFlags(t *testing.T) {
	f := targetFlags{mode: "window", id: "0x1", size: "1280x720", x: 10, scale: 2}
	req, err := f.request()
	require.NoError(t, err)
	assert.Equal(t, capture.ModeWindow, req.Mode)
	assert.Equal(t, capture.Target{ID: "0x1", X: 10, Width: 1280, Height: 720, Scale: 2}, req.Target)

	_, err = (&targetFlags{mode: "region", size: "10x10", scale: 1}).request()
	assert.Error(t, err)
	_, err = (&targetFlags{mode: "display", size: "big", scale: 1}).request()
	assert.Error(t, err)
	_, err = (&targetFlags{mode: "display", size: "10x10", scale: 0}).request()
	assert.Error(t, err)
}

func TestRecordSettingsOverrides(t *testing.T) {
	cmd := newRecordCmd(&app{})
	require.NoError(t, cmd.Flags().Parse([]string{"--audio", "--output-dir", "/tmp/clips"}))
	o := recordOptions{audio: true, output: "/tmp/clips"}

	base := config.Default()
	base.Camera.Enabled = true
	s, err := recordSettings(cmd, base, o)
	require.NoError(t, err)
	assert.True(t, s.Audio.Enabled)
	assert.True(t, s.Camera.Enabled, "unchanged flags keep the configured value")
	assert.Equal(t, "/tmp/clips", s.Output.Directory)
	assert.False(t, base.Audio.Enabled)
}

func TestSettingsSourcesBackend(t *testing.T) {
	s := config.Default()
	src := &settingsSources{settings: config.NewHolder(s, "", zerolog.Nop())}
	assert.IsType(t, &capture.FFmpegFactory{}, src.factory())

	s.Backend = config.BackendPortal
	src = &settingsSources{settings: config.NewHolder(s, "", zerolog.Nop())}
	assert.IsType(t, &capture.PortalFactory{}, src.factory())
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screenrec", "config.yaml")

	out, err := runCLI(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	out, err = runCLI(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	assert.FileExists(t, path)

	_, err = runCLI(t, "--config", path, "config", "init")
	assert.Error(t, err)
	_, err = runCLI(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = runCLI(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "frame_rate: 30")
	assert.Contains(t, out, "backend: ffmpeg")
}

func TestRecordRejectsInvalidTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := runCLI(t, "--config", path, "record", "--mode", "region")
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrInvalidOptions)
}
