// Package cli implements the framephase command line.
package cli

import (
	"log/slog"

	"github.com/me/framephase/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the framephase CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "framephase",
		Short: "Phased frame update scheduler",
		Long: "framephase runs blocks of systems on a job pool, one frame at a time,\n" +
			"keeping neighbouring blocks within one frame of each other.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (text, json, auto)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newSystemsCmd(),
		newRunsCmd(),
		newEventsCmd(),
	)

	return root
}
