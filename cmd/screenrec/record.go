package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/screenrec/internal/config"
	applog "go2tv.app/screenrec/internal/log"
	"go2tv.app/screenrec/recorder"
)

type recordOptions struct {
	target   targetFlags
	duration time.Duration
	audio    bool
	camera   bool
	output   string
	ask      bool
}

func newRecordCmd(a *app) *cobra.Command {
	var o recordOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record until interrupted or for a fixed duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd, a, o)
		},
	}
	o.target.register(cmd)
	fl := cmd.Flags()
	fl.DurationVar(&o.duration, "duration", 0, "stop after this long (0 records until Ctrl-C)")
	fl.BoolVar(&o.audio, "audio", false, "record the microphone (overrides the settings)")
	fl.BoolVar(&o.camera, "camera", false, "overlay the camera (overrides the settings)")
	fl.StringVar(&o.output, "output-dir", "", "directory for the finished recording (overrides the settings)")
	fl.BoolVar(&o.ask, "ask", false, "ask where to save when the recording stops")
	return cmd
}

// recordSettings applies the command line overrides to a copy of the
// settings; they are not persisted.
func recordSettings(cmd *cobra.Command, base config.Settings, o recordOptions) (config.Settings, error) {
	s := base
	fl := cmd.Flags()
	if fl.Changed("audio") {
		s.Audio.Enabled = o.audio
	}
	if fl.Changed("camera") {
		s.Camera.Enabled = o.camera
	}
	if fl.Changed("output-dir") {
		s.Output.Directory = o.output
	}
	if fl.Changed("ask") {
		s.Output.AskWhereToSave = o.ask
	}
	return s, config.Validate(s)
}

func runRecord(cmd *cobra.Command, a *app, o recordOptions) error {
	req, err := o.target.request()
	if err != nil {
		return err
	}
	s, err := recordSettings(cmd, a.settings.Get(), o)
	if err != nil {
		return err
	}
	settings := config.NewHolder(s, "", applog.WithComponent("config"))

	stopping := make(chan struct{}, 1)
	obs := recorder.ObserverFunc(func(e recorder.Event) {
		if e.Kind == recorder.EventStateChanged && e.State == recorder.StateStopping {
			select {
			case stopping <- struct{}{}:
			default:
			}
		}
	})
	ctrl, err := a.newController(settings, newPromptChooser(cmd.InOrStdin(), cmd.OutOrStdout()), nil, obs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.StartRecording(ctx, req); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Recording... press Ctrl-C to stop.")

	var timeout <-chan time.Time
	if o.duration > 0 {
		timer := time.NewTimer(o.duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-stopping:
	}
	stop()

	res, err := ctrl.StopRecording(context.Background())
	// A stream failure may have stopped the recording already; Close waits
	// for that stop to finish.
	if cerr := ctrl.Close(context.Background()); err == nil {
		err = cerr
	}
	if res.RecordingID == "" {
		if err == nil {
			err = ctrl.LastError()
		}
		res.Path = ctrl.LastOutputLocation()
	}

	var saveErr *recorder.SaveError
	switch {
	case errors.As(err, &saveErr):
		fmt.Fprintf(out, "Could not save the recording; it was kept at %s\n", saveErr.TempPath)
		return err
	case res.Cancelled:
		fmt.Fprintln(out, "Recording discarded.")
		return nil
	case res.Path != "":
		fmt.Fprintf(out, "Saved %s (%s)\n", res.Path, res.Duration.Round(time.Second))
		if err != nil {
			a.log.Warn().Err(err).Msg("recording was interrupted")
		}
		return nil
	}
	return err
}
