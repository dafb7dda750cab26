package config

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "SCREENREC_"

func BoolEnv(name string, defaultValue bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return defaultValue
	}

	switch v {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	default:
		return defaultValue
	}
}

func IntEnvClamped(name string, defaultValue, minValue, maxValue int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}

	if minValue <= maxValue {
		if n < minValue {
			n = minValue
		}
		if n > maxValue {
			n = maxValue
		}
	}

	return n
}

func StringEnv(name, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return defaultValue
}

func FloatEnv(name string, defaultValue float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// applyEnv overlays SCREENREC_* variables on s.
func applyEnv(s Settings) Settings {
	s.FFmpegPath = StringEnv(envPrefix+"FFMPEG", s.FFmpegPath)
	s.Backend = StringEnv(envPrefix+"BACKEND", s.Backend)
	s.FrameRate = IntEnvClamped(envPrefix+"FRAME_RATE", s.FrameRate, 1, 120)
	s.Quality = StringEnv(envPrefix+"QUALITY", s.Quality)
	s.ShowCursor = BoolEnv(envPrefix+"SHOW_CURSOR", s.ShowCursor)
	s.HardwareEncoding = BoolEnv(envPrefix+"HW_ENCODE", s.HardwareEncoding)

	s.Audio.Enabled = BoolEnv(envPrefix+"AUDIO", s.Audio.Enabled)
	s.Audio.Device = StringEnv(envPrefix+"AUDIO_DEVICE", s.Audio.Device)

	s.Camera.Enabled = BoolEnv(envPrefix+"CAMERA", s.Camera.Enabled)
	s.Camera.Device = StringEnv(envPrefix+"CAMERA_DEVICE", s.Camera.Device)
	s.Camera.Position = StringEnv(envPrefix+"CAMERA_POSITION", s.Camera.Position)
	s.Camera.Shape = StringEnv(envPrefix+"CAMERA_SHAPE", s.Camera.Shape)
	s.Camera.Size = FloatEnv(envPrefix+"CAMERA_SIZE", s.Camera.Size)

	s.Output.Directory = StringEnv(envPrefix+"OUTPUT_DIR", s.Output.Directory)
	s.Output.AskWhereToSave = BoolEnv(envPrefix+"ASK_WHERE_TO_SAVE", s.Output.AskWhereToSave)

	s.Preview.Listen = StringEnv(envPrefix+"LISTEN", s.Preview.Listen)
	s.LogLevel = StringEnv(envPrefix+"LOG_LEVEL", s.LogLevel)
	return s
}
