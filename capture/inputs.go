package capture

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// screenInputArgs returns the ffmpeg demuxer arguments that grab the target
// on the current platform.
func screenInputArgs(goos string, mode Mode, t Target, fps int, cursor bool) ([]string, error) {
	fpsArg := strconv.Itoa(fps)
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		display := t.ID
		args := []string{"-f", "x11grab", "-draw_mouse", boolArg(cursor), "-framerate", fpsArg}
		if mode == ModeWindow {
			if display == "" {
				return nil, fmt.Errorf("%w: window mode needs a window id", ErrNoTarget)
			}
			return append(args, "-window_id", display, "-i", ":0.0"), nil
		}
		if display == "" {
			display = ":0.0"
		}
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", t.Width, t.Height))
		return append(args, "-i", fmt.Sprintf("%s+%d,%d", display, t.X, t.Y)), nil
	case "darwin":
		if mode == ModeWindow {
			return nil, fmt.Errorf("%w: avfoundation cannot grab single windows", ErrNotImplemented)
		}
		screen := t.ID
		if screen == "" {
			screen = "Capture screen 0"
		}
		return []string{
			"-f", "avfoundation",
			"-capture_cursor", boolArg(cursor),
			"-framerate", fpsArg,
			"-pixel_format", "bgr0",
			"-i", screen + ":none",
		}, nil
	case "windows":
		input := "desktop"
		if mode == ModeWindow {
			if t.ID == "" {
				return nil, fmt.Errorf("%w: window mode needs a window title", ErrNoTarget)
			}
			input = "title=" + t.ID
		}
		args := []string{"-f", "gdigrab", "-draw_mouse", boolArg(cursor), "-framerate", fpsArg}
		if mode == ModeDisplay {
			args = append(args,
				"-offset_x", strconv.Itoa(t.X),
				"-offset_y", strconv.Itoa(t.Y),
				"-video_size", fmt.Sprintf("%dx%d", t.Width, t.Height),
			)
		}
		return append(args, "-i", input), nil
	default:
		return nil, fmt.Errorf("%w: no screen grabber for %s", ErrNotImplemented, goos)
	}
}

func cameraInputArgs(goos, device string, width, height, fps int) ([]string, error) {
	size := fmt.Sprintf("%dx%d", width, height)
	fpsArg := strconv.Itoa(fps)
	switch goos {
	case "linux":
		if device == "" {
			device = "/dev/video0"
		}
		return []string{"-f", "v4l2", "-framerate", fpsArg, "-video_size", size, "-i", device}, nil
	case "darwin":
		if device == "" {
			device = "0"
		}
		return []string{"-f", "avfoundation", "-framerate", fpsArg, "-video_size", size, "-i", device + ":none"}, nil
	case "windows":
		if device == "" {
			return nil, fmt.Errorf("%w: dshow needs a camera name", ErrDeviceUnavailable)
		}
		return []string{"-f", "dshow", "-framerate", fpsArg, "-video_size", size, "-i", "video=" + device}, nil
	default:
		return nil, fmt.Errorf("%w: no camera input for %s", ErrNotImplemented, goos)
	}
}

func microphoneInputArgs(goos, device string) ([]string, error) {
	switch goos {
	case "linux":
		if device == "" {
			device = "default"
		}
		return []string{"-f", "pulse", "-fragment_size", "3840", "-i", device}, nil
	case "darwin":
		if device == "" {
			device = "0"
		}
		return []string{"-f", "avfoundation", "-i", "none:" + device}, nil
	case "windows":
		if device == "" {
			return nil, fmt.Errorf("%w: dshow needs a microphone name", ErrDeviceUnavailable)
		}
		return []string{"-f", "dshow", "-audio_buffer_size", "20", "-i", "audio=" + device}, nil
	default:
		return nil, fmt.Errorf("%w: no microphone input for %s", ErrNotImplemented, goos)
	}
}

// rawVideoOutputArgs forces the grabbed picture into the exact geometry the
// writer was created with.
func rawVideoOutputArgs(width, height int) []string {
	return []string{
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d:flags=bilinear,format=bgra", width, height),
		"-f", "rawvideo",
		"-pix_fmt", strings.ToLower(PixelFormatBGRA),
		"pipe:1",
	}
}

func rawAudioOutputArgs(sampleRate, channels int) []string {
	return []string{
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	}
}

func baseArgs(debug bool) []string {
	level := "error"
	if debug {
		level = "info"
	}
	return []string{"-hide_banner", "-nostdin", "-loglevel", level, "-fflags", "nobuffer"}
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func currentOS() string {
	return runtime.GOOS
}
