package main

import (
	"github.com/spf13/cobra"

	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/renderer"
)

func newRootCommand() *cobra.Command {
	var (
		args     *renderer.Args
		fps      int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "framelink-demo",
		Short:         "Demo renderer for framelink",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		// The host may append arguments this renderer does not know.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout is the host channel in pipe mode; logs go to stderr.
			logger, err := logging.New(logging.Options{Level: logLevel, Output: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			logging.SetLogger(logger)
			return run(cmd.Context(), args, fps)
		},
	}

	args = renderer.AddFlags(cmd.Flags())
	cmd.Flags().IntVar(&fps, "fps", 30, "Animation frame rate (0 redraws only on input)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	return cmd
}
