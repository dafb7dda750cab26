package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go2tv.app/screenrec/internal/config"
	applog "go2tv.app/screenrec/internal/log"
	"go2tv.app/screenrec/preview"
	"go2tv.app/screenrec/recorder"
)

const shutdownTimeout = 2 * time.Minute

func newServeCmd(a *app) *cobra.Command {
	var (
		target targetFlags
		listen string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Control recordings over HTTP and serve a live preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := target.request()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = a.settings.Get().Preview.Listen
			}
			return runServe(cmd.Context(), a, listen, req)
		},
	}
	target.register(cmd)
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (defaults to preview.listen)")
	return cmd
}

func runServe(parent context.Context, a *app, listen string, req recorder.StartRequest) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(a.settings.Get().Preview.IntervalMS) * time.Millisecond
	slot := preview.NewSlot(interval)
	obs := recorder.ObserverFunc(func(e recorder.Event) {
		if e.Kind == recorder.EventStateChanged && e.State == recorder.StateIdle {
			slot.Reset()
		}
	})
	ctrl, err := a.newController(a.settings, nil, slot, obs)
	if err != nil {
		return err
	}

	if err := a.settings.Watch(ctx); err != nil {
		a.log.Warn().Err(err).Msg("settings will not be reloaded")
	}
	changes := make(chan config.Settings, 1)
	a.settings.Subscribe(changes)

	srv := &http.Server{
		Addr: listen,
		Handler: preview.NewHandler(preview.HandlerOptions{
			Recorder:      ctrl,
			Slot:          slot,
			DefaultTarget: req.Target,
			Logger:        applog.WithComponent("http"),
			Debug:         applog.DebugEnabled(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", listen).Msg("serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-changes:
				a.log.Info().Str("quality", s.Quality).Int("fps", s.FrameRate).Msg("settings apply to the next recording")
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Finish an active recording before the listener goes away.
		if err := ctrl.Close(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("stopping recording on shutdown")
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
