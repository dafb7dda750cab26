package writer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go2tv.app/screenrec/internal/processutil"
)

const encoderProbeTimeout = 5 * time.Second

type encoderPlan struct {
	label       string
	codec       string
	hardware    bool
	globalArgs  []string
	videoFilter string
	codecArgs   []string
}

var (
	probeMu    sync.Mutex
	probeCache = map[string]string{}
)

// selectVideoEncoder picks the first hardware H.264 encoder that survives a
// short test encode, falling back to libx264. The probe result is cached per
// ffmpeg binary since it does not change while the process runs.
func selectVideoEncoder(ctx context.Context, goos, ffmpegPath string, q Quality, fps int, hardware bool, log zerolog.Logger) encoderPlan {
	software := softwareEncoderPlan(q, fps)
	if !hardware {
		return software
	}
	candidates := hardwareEncoderCandidates(goos, q, fps)
	if len(candidates) == 0 {
		reportEncoderSelection(log, software, "no_hardware_candidates")
		return software
	}

	probeMu.Lock()
	defer probeMu.Unlock()
	if label, ok := probeCache[ffmpegPath]; ok {
		for _, c := range candidates {
			if c.label == label {
				return c
			}
		}
		return software
	}

	available, err := ffmpegEncoderSet(ctx, ffmpegPath)
	if err != nil {
		log.Debug().Err(err).Msg("listing ffmpeg encoders failed")
	}
	for _, candidate := range candidates {
		if len(available) > 0 {
			if _, ok := available[candidate.codec]; !ok {
				log.Debug().Str("encoder", candidate.label).Msg("encoder not in ffmpeg build")
				continue
			}
		}
		if err := probeVideoEncoder(ctx, ffmpegPath, candidate); err != nil {
			log.Debug().Err(err).Str("encoder", candidate.label).Msg("encoder probe failed")
			continue
		}
		probeCache[ffmpegPath] = candidate.label
		reportEncoderSelection(log, candidate, "")
		return candidate
	}

	probeCache[ffmpegPath] = software.label
	reportEncoderSelection(log, software, "all_hardware_probes_failed")
	return software
}

func ffmpegEncoderSet(ctx context.Context, ffmpegPath string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, encoderProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	processutil.HideConsoleWindow(cmd)
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg -encoders timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}
	return parseEncoderList(string(out)), nil
}

func parseEncoderList(out string) map[string]struct{} {
	encoders := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		// " V..... h264_nvenc  NVIDIA NVENC H.264 encoder"
		if strings.HasPrefix(fields[0], "V") && len(fields[0]) == 6 {
			encoders[fields[1]] = struct{}{}
		}
	}
	return encoders
}

func reportEncoderSelection(log zerolog.Logger, plan encoderPlan, reason string) {
	ev := log.Info().Str("encoder", plan.label).Bool("hardware", plan.hardware)
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("video encoder selected")
}

func probeVideoEncoder(ctx context.Context, ffmpegPath string, plan encoderPlan) error {
	ctx, cancel := context.WithTimeout(ctx, encoderProbeTimeout)
	defer cancel()

	args := []string{"-v", "error", "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
	)
	if plan.videoFilter != "" {
		args = append(args, "-vf", plan.videoFilter)
	}
	args = append(args, plan.codecArgs...)
	args = append(args, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	processutil.HideConsoleWindow(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("probe timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return fmt.Errorf("probe failed: %w: %s", err, tailString(strings.TrimSpace(stderr.String()), 240))
	}
	return nil
}

func hardwareEncoderCandidates(goos string, q Quality, fps int) []encoderPlan {
	switch goos {
	case "darwin":
		return []encoderPlan{
			hardwareEncoderPlan("h264_videotoolbox", "h264_videotoolbox", nil, "format=yuv420p", q, fps),
		}
	case "windows":
		return []encoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, "format=yuv420p", q, fps),
			hardwareEncoderPlan("h264_amf", "h264_amf", nil, "format=yuv420p", q, fps),
			hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, "format=nv12", q, fps),
		}
	case "linux":
		candidates := []encoderPlan{
			hardwareEncoderPlan("h264_nvenc", "h264_nvenc", nil, "format=yuv420p", q, fps),
		}
		devices, err := filepath.Glob("/dev/dri/renderD*")
		if err == nil {
			for _, dev := range devices {
				label := fmt.Sprintf("h264_vaapi (%s)", dev)
				candidates = append(candidates, hardwareEncoderPlan("h264_vaapi", label, []string{"-vaapi_device", dev}, "format=nv12,hwupload", q, fps))
			}
		}
		return append(candidates, hardwareEncoderPlan("h264_qsv", "h264_qsv", nil, "format=nv12", q, fps))
	default:
		return nil
	}
}

func rateArgs(q Quality, fps int) []string {
	kbps := q.Bitrate()
	gop := strconv.Itoa(max(fps, 1) * 2)
	return []string{
		"-b:v", fmt.Sprintf("%dk", kbps),
		"-maxrate", fmt.Sprintf("%dk", kbps*5/4),
		"-bufsize", fmt.Sprintf("%dk", kbps*2),
		"-g", gop,
	}
}

func hardwareEncoderPlan(codec, label string, globalArgs []string, filter string, q Quality, fps int) encoderPlan {
	return encoderPlan{
		label:       label,
		codec:       codec,
		hardware:    true,
		globalArgs:  append([]string(nil), globalArgs...),
		videoFilter: filter,
		codecArgs:   append([]string{"-c:v", codec}, rateArgs(q, fps)...),
	}
}

func softwareEncoderPlan(q Quality, fps int) encoderPlan {
	args := []string{"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p"}
	return encoderPlan{
		label:     "libx264",
		codec:     "libx264",
		codecArgs: append(args, rateArgs(q, fps)...),
	}
}

func tailString(input string, max int) string {
	if input == "" {
		return "no ffmpeg stderr output"
	}
	if max <= 0 || len(input) <= max {
		return input
	}
	return input[len(input)-max:]
}
