//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go2tv.app/screenrec/internal/xdgportal"
)

// PortalFactory acquires the screen through xdg-desktop-portal and PipeWire,
// which works on Wayland compositors where x11grab cannot. Camera and
// microphone come from the embedded FFmpegFactory.
type PortalFactory struct {
	FFmpegFactory

	// GstLaunchPath is the gst-launch-1.0 binary that reads the PipeWire node.
	GstLaunchPath string
}

// OpenScreen shows the portal picker and prepares a PipeWire reader for the
// chosen monitor or window. Target.Width/Height are ignored; the portal
// reports the stream size, which is scaled by Target.Scale.
func (f *PortalFactory) OpenScreen(_ context.Context, opts ScreenOptions, h Handlers) (ScreenSource, error) {
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: frame rate must be > 0", ErrInvalidOptions)
	}
	gst := strings.TrimSpace(f.GstLaunchPath)
	if gst == "" {
		gst = "gst-launch-1.0"
	}
	bin, err := exec.LookPath(gst)
	if err != nil {
		return nil, fmt.Errorf("%w: gst-launch not found: %v", ErrDeviceUnavailable, err)
	}

	sess, err := xdgportal.CreateSession()
	if err != nil {
		if errors.Is(err, xdgportal.ErrCancelled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("portal session: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			_ = sess.Close()
		}
	}()

	types := xdgportal.SourceTypeMonitor
	if opts.Mode == ModeWindow {
		types = xdgportal.SourceTypeWindow
	}
	cursor := xdgportal.CursorModeHidden
	if opts.ShowCursor {
		cursor = xdgportal.CursorModeEmbedded
	}
	if err := sess.SelectSources(xdgportal.SelectSourcesOptions{Types: types, CursorMode: cursor}); err != nil {
		if errors.Is(err, xdgportal.ErrCancelled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("portal select sources: %w", err)
	}
	streams, err := sess.Start("")
	if err != nil {
		if errors.Is(err, xdgportal.ErrCancelled) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("portal start: %w", err)
	}
	if len(streams) == 0 {
		return nil, ErrNoTarget
	}
	selected := streams[0]

	target := opts.Target
	target.Width, target.Height = int(selected.Size[0]), int(selected.Size[1])
	width, height, err := ResolveDimensions(target)
	if err != nil {
		return nil, err
	}

	remote, err := sess.OpenPipeWireRemote()
	if err != nil {
		return nil, fmt.Errorf("portal pipewire remote: %w", err)
	}

	cleanup = false
	return &pipeSource{
		kind:              "screen",
		bin:               bin,
		args:              pipewireArgs(selected.NodeID, width, height, opts.FrameRate),
		log:               f.Logger.With().Str("source", "screen").Str("backend", "portal").Logger(),
		extraFiles:        []*os.File{remote},
		onStop:            sess.Close,
		width:             width,
		height:            height,
		pool:              NewFramePool(width, height, DefaultPoolSize),
		video:             h,
		isVideo:           true,
		epoch:             opts.Epoch,
		firstFrameTimeout: f.FirstFrameTimeout,
	}, nil
}

// pipewireArgs builds a gst-launch pipeline that reads the node through the
// remote passed as fd 3 and writes tightly packed BGRA to stdout.
func pipewireArgs(nodeID uint32, width, height, fps int) []string {
	return []string{
		"-q",
		"pipewiresrc", "fd=3", fmt.Sprintf("path=%d", nodeID), "do-timestamp=true", "keepalive-time=1000",
		"!", "videorate",
		"!", fmt.Sprintf("video/x-raw,framerate=%d/1", fps),
		"!", "videoconvert",
		"!", "videoscale",
		"!", fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d", width, height),
		"!", "fdsink", "fd=1", "sync=false",
	}
}
