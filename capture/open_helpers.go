package capture

import (
	"context"
	"fmt"
	"time"
)

const defaultFirstFrameTimeout = 8 * time.Second

func waitForFirstFrame(ctx context.Context, kind string, ready, exited <-chan struct{}, timeout time.Duration, tail func() string) error {
	if timeout <= 0 {
		timeout = defaultFirstFrameTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-exited:
		select {
		case <-ready:
			// Delivered and ended before we looked; the stream error path
			// reports the end.
			return nil
		default:
		}
		return fmt.Errorf("%w: %s exited before first frame: %s", ErrDeviceUnavailable, kind, tail())
	case <-ctx.Done():
		return fmt.Errorf("%s capture start: %w", kind, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: %s timed out waiting for first frame: %s", ErrDeviceUnavailable, kind, tail())
	}
}
