package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MicSampleRate and MicChannels describe the PCM handed to the writer.
	MicSampleRate = 48000
	MicChannels   = 2

	micChunkDuration = 20 * time.Millisecond
)

// ScreenOptions describes one screen acquisition.
type ScreenOptions struct {
	Mode       Mode
	Target     Target
	FrameRate  int
	ShowCursor bool

	// Epoch is the common time origin of one recording. Zero means the
	// source starts its own clock.
	Epoch time.Time
}

// CameraOptions describes one camera acquisition.
type CameraOptions struct {
	Device    string
	Width     int
	Height    int
	FrameRate int
	Epoch     time.Time
}

// MicrophoneOptions describes one microphone acquisition.
type MicrophoneOptions struct {
	Device string
	Epoch  time.Time
}

// FFmpegFactory acquires sources backed by an ffmpeg child process.
type FFmpegFactory struct {
	FFmpegPath string
	Logger     zerolog.Logger
	Debug      bool

	// FirstFrameTimeout bounds how long Start waits for a device to deliver.
	FirstFrameTimeout time.Duration

	goos string
}

func (f *FFmpegFactory) platform() string {
	if f.goos != "" {
		return f.goos
	}
	return currentOS()
}

func (f *FFmpegFactory) binary() (string, error) {
	bin := strings.TrimSpace(f.FFmpegPath)
	if bin == "" {
		bin = "ffmpeg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found: %v", ErrDeviceUnavailable, err)
	}
	return path, nil
}

// OpenScreen acquires the screen grabber. The returned source reports the
// pixel dimensions of the frames it will deliver.
func (f *FFmpegFactory) OpenScreen(_ context.Context, opts ScreenOptions, h Handlers) (ScreenSource, error) {
	width, height, err := ResolveDimensions(opts.Target)
	if err != nil {
		return nil, err
	}
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: frame rate must be > 0", ErrInvalidOptions)
	}
	bin, err := f.binary()
	if err != nil {
		return nil, err
	}
	input, err := screenInputArgs(f.platform(), opts.Mode, opts.Target, opts.FrameRate, opts.ShowCursor)
	if err != nil {
		return nil, err
	}

	args := append(baseArgs(f.Debug), input...)
	args = append(args, rawVideoOutputArgs(width, height)...)
	return &pipeSource{
		kind:              "screen",
		bin:               bin,
		args:              args,
		log:               f.Logger.With().Str("source", "screen").Logger(),
		width:             width,
		height:            height,
		pool:              NewFramePool(width, height, DefaultPoolSize),
		video:             h,
		isVideo:           true,
		epoch:             opts.Epoch,
		firstFrameTimeout: f.FirstFrameTimeout,
	}, nil
}

// OpenCamera acquires the camera. Delivered frames share one buffer that is
// overwritten by the next read.
func (f *FFmpegFactory) OpenCamera(_ context.Context, opts CameraOptions, h Handlers) (Source, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: camera %dx%d@%d", ErrInvalidOptions, opts.Width, opts.Height, opts.FrameRate)
	}
	bin, err := f.binary()
	if err != nil {
		return nil, err
	}
	input, err := cameraInputArgs(f.platform(), opts.Device, opts.Width, opts.Height, opts.FrameRate)
	if err != nil {
		return nil, err
	}

	args := append(baseArgs(f.Debug), input...)
	args = append(args, rawVideoOutputArgs(opts.Width, opts.Height)...)
	return &pipeSource{
		kind:              "camera",
		bin:               bin,
		args:              args,
		log:               f.Logger.With().Str("source", "camera").Logger(),
		width:             opts.Width,
		height:            opts.Height,
		video:             h,
		isVideo:           true,
		epoch:             opts.Epoch,
		firstFrameTimeout: f.FirstFrameTimeout,
	}, nil
}

// OpenMicrophone acquires the microphone as 48 kHz stereo PCM.
func (f *FFmpegFactory) OpenMicrophone(_ context.Context, opts MicrophoneOptions, h AudioHandlers) (Source, error) {
	bin, err := f.binary()
	if err != nil {
		return nil, err
	}
	input, err := microphoneInputArgs(f.platform(), opts.Device)
	if err != nil {
		return nil, err
	}

	args := append(baseArgs(f.Debug), input...)
	args = append(args, rawAudioOutputArgs(MicSampleRate, MicChannels)...)
	chunk := int(int64(MicSampleRate*MicChannels*2) * micChunkDuration.Milliseconds() / 1000)
	return &pipeSource{
		kind:              "microphone",
		bin:               bin,
		args:              args,
		log:               f.Logger.With().Str("source", "microphone").Logger(),
		audio:             h,
		sampleRate:        MicSampleRate,
		channels:          MicChannels,
		chunkBytes:        chunk,
		epoch:             opts.Epoch,
		firstFrameTimeout: f.FirstFrameTimeout,
	}, nil
}
