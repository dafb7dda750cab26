// Package config holds the persisted recorder settings. A recording reads
// them once, when it starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go2tv.app/screenrec/compositor"
	"go2tv.app/screenrec/writer"
)

const (
	BackendFFmpeg = "ffmpeg"
	BackendPortal = "portal"
)

// Settings is one snapshot of the user's preferences.
type Settings struct {
	FFmpegPath       string          `yaml:"ffmpeg_path"`
	Backend          string          `yaml:"backend"`
	FrameRate        int             `yaml:"frame_rate"`
	Quality          string          `yaml:"quality"`
	ShowCursor       bool            `yaml:"show_cursor"`
	HardwareEncoding bool            `yaml:"hardware_encoding"`
	Audio            AudioSettings   `yaml:"audio"`
	Camera           CameraSettings  `yaml:"camera"`
	Output           OutputSettings  `yaml:"output"`
	Preview          PreviewSettings `yaml:"preview"`
	LogLevel         string          `yaml:"log_level"`
}

type AudioSettings struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"`
}

type CameraSettings struct {
	Enabled   bool   `yaml:"enabled"`
	Device    string `yaml:"device"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FrameRate int    `yaml:"frame_rate"`
	Position  string `yaml:"position"`
	// Size is the overlay width as a fraction of the screen width.
	Size  float64 `yaml:"size"`
	Shape string  `yaml:"shape"`
}

type OutputSettings struct {
	Directory      string `yaml:"directory"`
	AskWhereToSave bool   `yaml:"ask_where_to_save"`
	AppName        string `yaml:"app_name"`
}

type PreviewSettings struct {
	Listen     string `yaml:"listen"`
	IntervalMS int    `yaml:"interval_ms"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		FFmpegPath: "ffmpeg",
		Backend:    BackendFFmpeg,
		FrameRate:  30,
		Quality:    string(writer.QualityMedium),
		ShowCursor: true,
		Camera: CameraSettings{
			Width:     640,
			Height:    480,
			FrameRate: 30,
			Position:  string(compositor.BottomRight),
			Size:      0.2,
			Shape:     string(compositor.Circle),
		},
		Output: OutputSettings{
			Directory: defaultOutputDir(),
			AppName:   "Screenrec",
		},
		Preview: PreviewSettings{
			Listen:     "127.0.0.1:8765",
			IntervalMS: 200,
		},
		LogLevel: "info",
	}
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return os.TempDir()
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Movies")
	}
	return filepath.Join(home, "Videos")
}

// Validate reports every invalid field at once.
func Validate(s Settings) error {
	var errs []error
	if strings.TrimSpace(s.FFmpegPath) == "" {
		errs = append(errs, errors.New("ffmpeg_path must not be empty"))
	}
	switch s.Backend {
	case BackendFFmpeg, BackendPortal:
	default:
		errs = append(errs, fmt.Errorf("backend %q: want %q or %q", s.Backend, BackendFFmpeg, BackendPortal))
	}
	if s.FrameRate < 1 || s.FrameRate > 120 {
		errs = append(errs, fmt.Errorf("frame_rate %d out of range [1,120]", s.FrameRate))
	}
	if _, err := writer.ParseQuality(s.Quality); err != nil {
		errs = append(errs, err)
	}
	if s.Camera.Enabled {
		if s.Camera.Width <= 0 || s.Camera.Height <= 0 || s.Camera.FrameRate <= 0 {
			errs = append(errs, fmt.Errorf("camera mode %dx%d@%d is invalid", s.Camera.Width, s.Camera.Height, s.Camera.FrameRate))
		}
	}
	if !(s.Camera.Size > 0 && s.Camera.Size <= 1) {
		errs = append(errs, fmt.Errorf("camera.size %v must be in (0,1]", s.Camera.Size))
	}
	if _, err := compositor.ParsePosition(s.Camera.Position); err != nil {
		errs = append(errs, err)
	}
	if _, err := compositor.ParseShape(s.Camera.Shape); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(s.Output.Directory) == "" {
		errs = append(errs, errors.New("output.directory must not be empty"))
	}
	if strings.ContainsAny(s.Output.AppName, `/\:`) {
		errs = append(errs, fmt.Errorf("output.app_name %q must not contain path separators", s.Output.AppName))
	}
	if s.Preview.IntervalMS < 0 {
		errs = append(errs, fmt.Errorf("preview.interval_ms %d must not be negative", s.Preview.IntervalMS))
	}
	return errors.Join(errs...)
}

// Overlay converts the camera settings into a compositor configuration for
// a display with the given pixel density.
func (s Settings) Overlay(scale float64) compositor.OverlayConfig {
	pos, _ := compositor.ParsePosition(s.Camera.Position)
	shape, _ := compositor.ParseShape(s.Camera.Shape)
	return compositor.OverlayConfig{
		Enabled:      s.Camera.Enabled,
		SizeFraction: s.Camera.Size,
		Position:     pos,
		Shape:        shape,
		Scale:        scale,
	}
}
