package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/screenrec/internal/atomicfile"
	"go2tv.app/screenrec/internal/processutil"
)

// TrimOptions selects the [Start, End) range of Input to keep. A zero End
// keeps everything after Start.
type TrimOptions struct {
	FFmpegPath string
	Input      string
	Output     string
	Start      time.Duration
	End        time.Duration
	Logger     zerolog.Logger
}

// Trim stream-copies a range of a finished recording into Output without
// re-encoding. Output is replaced atomically; Input may equal Output.
func Trim(ctx context.Context, opts TrimOptions) error {
	if strings.TrimSpace(opts.Input) == "" || strings.TrimSpace(opts.Output) == "" {
		return errors.New("trim: input and output are required")
	}
	if opts.Start < 0 {
		return fmt.Errorf("trim: negative start %s", opts.Start)
	}
	if opts.End != 0 && opts.End <= opts.Start {
		return fmt.Errorf("trim: end %s is not after start %s", opts.End, opts.Start)
	}
	if _, err := os.Stat(opts.Input); err != nil {
		return fmt.Errorf("trim: %w", err)
	}
	bin := opts.FFmpegPath
	if strings.TrimSpace(bin) == "" {
		bin = "ffmpeg"
	}
	bin, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("trim: ffmpeg not found: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return fmt.Errorf("trim: create output dir: %w", err)
	}

	return atomicfile.Produce(opts.Output, func(tmp string) error {
		args := trimArgs(opts, tmp)
		opts.Logger.Debug().Str("cmd", bin+" "+strings.Join(args, " ")).Msg("trimming recording")

		stderr := &processutil.StderrBuffer{}
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Stderr = stderr
		processutil.HideConsoleWindow(cmd)
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("trim: %w", ctx.Err())
			}
			return fmt.Errorf("trim: ffmpeg: %w: %s", err, stderr.Tail(300))
		}
		return nil
	})
}

func trimArgs(opts TrimOptions, out string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
	if opts.Start > 0 {
		args = append(args, "-ss", seconds(opts.Start))
	}
	args = append(args, "-i", opts.Input)
	if opts.End > 0 {
		args = append(args, "-t", seconds(opts.End-opts.Start))
	}
	return append(args,
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
