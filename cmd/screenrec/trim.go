package main

import (
	"fmt"

	"github.com/spf13/cobra"

	applog "go2tv.app/screenrec/internal/log"
	"go2tv.app/screenrec/writer"
)

func newTrimCmd(a *app) *cobra.Command {
	var opts writer.TrimOptions
	cmd := &cobra.Command{
		Use:   "trim INPUT",
		Short: "Cut a finished recording without re-encoding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Input = args[0]
			if opts.Output == "" {
				opts.Output = opts.Input
			}
			opts.FFmpegPath = a.settings.Get().FFmpegPath
			opts.Logger = applog.WithComponent("trim")
			if err := writer.Trim(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.Output)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.DurationVar(&opts.Start, "start", 0, "keep from this offset")
	fl.DurationVar(&opts.End, "end", 0, "keep up to this offset (0 keeps the rest)")
	fl.StringVarP(&opts.Output, "output", "o", "", "output file (defaults to replacing INPUT)")
	return cmd
}
