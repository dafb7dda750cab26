//go:build !linux

package capture

import (
	"context"
	"fmt"
)

// PortalFactory is only functional on Linux; elsewhere OpenScreen fails and
// camera and microphone fall through to the embedded FFmpegFactory.
type PortalFactory struct {
	FFmpegFactory

	GstLaunchPath string
}

func (f *PortalFactory) OpenScreen(_ context.Context, _ ScreenOptions, _ Handlers) (ScreenSource, error) {
	return nil, fmt.Errorf("%w: xdg-desktop-portal capture needs linux", ErrNotImplemented)
}
