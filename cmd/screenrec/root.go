package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go2tv.app/screenrec/internal/config"
	applog "go2tv.app/screenrec/internal/log"
	"go2tv.app/screenrec/recorder"
)

type app struct {
	configPath string
	logLevel   string
	console    bool

	settings *config.Holder
	log      zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "screenrec",
		Short:        "Record the screen with optional microphone and camera overlay",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "settings file (default "+config.DefaultPath()+")")
	pf.StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	pf.BoolVar(&a.console, "console", true, "human readable log output")

	root.AddCommand(
		newRecordCmd(a),
		newServeCmd(a),
		newTrimCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) path() string {
	if a.configPath == "" {
		a.configPath = config.DefaultPath()
	}
	return a.configPath
}

func (a *app) configureLogging(level string) {
	if a.logLevel != "" {
		level = a.logLevel
	}
	applog.Configure(applog.Config{Level: level, Console: a.console})
	a.log = applog.Base()
}

// load reads the settings file and sets up logging from it.
func (a *app) load() error {
	s, err := config.Load(a.path())
	if err != nil {
		a.configureLogging("")
		return err
	}
	a.configureLogging(s.LogLevel)
	a.settings = config.NewHolder(s, a.path(), applog.WithComponent("config"))
	return nil
}

func (a *app) newController(settings recorder.SettingsProvider, chooser recorder.DestinationChooser, preview recorder.PreviewSink, obs recorder.Observer) (*recorder.Controller, error) {
	debug := applog.DebugEnabled()
	return recorder.NewController(recorder.Options{
		Sources:  &settingsSources{settings: settings, log: applog.WithComponent("capture"), debug: debug},
		Muxers:   recorder.FFmpegMuxers,
		Settings: settings,
		Chooser:  chooser,
		Observer: obs,
		Preview:  preview,
		Logger:   a.log,
		Debug:    debug,
	})
}
