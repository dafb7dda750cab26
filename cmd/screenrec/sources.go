package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/recorder"
)

// settingsSources picks the capture backend from the settings current at the
// time a source is opened.
type settingsSources struct {
	settings recorder.SettingsProvider
	log      zerolog.Logger
	debug    bool
}

func (s *settingsSources) factory() recorder.SourceFactory {
	cur := s.settings.Get()
	ff := capture.FFmpegFactory{
		FFmpegPath: cur.FFmpegPath,
		Logger:     s.log,
		Debug:      s.debug,
	}
	if cur.Backend == config.BackendPortal {
		return &capture.PortalFactory{FFmpegFactory: ff}
	}
	return &ff
}

func (s *settingsSources) OpenScreen(ctx context.Context, opts capture.ScreenOptions, h capture.Handlers) (capture.ScreenSource, error) {
	return s.factory().OpenScreen(ctx, opts, h)
}

func (s *settingsSources) OpenCamera(ctx context.Context, opts capture.CameraOptions, h capture.Handlers) (capture.Source, error) {
	return s.factory().OpenCamera(ctx, opts, h)
}

func (s *settingsSources) OpenMicrophone(ctx context.Context, opts capture.MicrophoneOptions, h capture.AudioHandlers) (capture.Source, error) {
	return s.factory().OpenMicrophone(ctx, opts, h)
}

// targetFlags describe the display or window to record on the command line.
type targetFlags struct {
	mode  string
	id    string
	size  string
	x, y  int
	scale float64
}

func (f *targetFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.mode, "mode", "display", "what to capture: display or window")
	fl.StringVar(&f.id, "target", "", "display name, window id or window title (platform specific)")
	fl.StringVar(&f.size, "size", "1920x1080", "captured area in points, WIDTHxHEIGHT")
	fl.IntVar(&f.x, "x", 0, "left edge of the captured area")
	fl.IntVar(&f.y, "y", 0, "top edge of the captured area")
	fl.Float64Var(&f.scale, "scale", 1, "display pixel density")
}

func (f *targetFlags) request() (recorder.StartRequest, error) {
	mode, err := capture.ParseMode(f.mode)
	if err != nil {
		return recorder.StartRequest{}, err
	}
	w, h, err := capture.ParseSize(f.size)
	if err != nil {
		return recorder.StartRequest{}, err
	}
	if f.scale <= 0 {
		return recorder.StartRequest{}, fmt.Errorf("scale must be > 0, got %v", f.scale)
	}
	return recorder.StartRequest{
		Mode: mode,
		Target: capture.Target{
			ID:     f.id,
			X:      f.x,
			Y:      f.y,
			Width:  w,
			Height: h,
			Scale:  f.scale,
		},
	}, nil
}
