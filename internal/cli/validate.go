package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/me/framephase/internal/config"
	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/internal/phases"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [phases.yaml]",
		Short: "Check a phases document and build its systems",
		Long: "Validate parses the document, constructs and initializes every system,\n" +
			"prints the resulting layout and destroys the systems again.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultRunConfig().PhasesPath
			if len(args) == 1 {
				path = args[0]
			}
			return validatePhases(path, cmd.OutOrStdout(), logger)
		},
	}
}

func validatePhases(path string, out io.Writer, logger *slog.Logger) error {
	doc, reg, err := loadPhases(path, logger)
	if err != nil {
		return err
	}

	pool := jobpool.New(1, logger)
	defer pool.Close()

	ph := phases.New(pool, logger)
	if err := ph.Init(doc, reg); err != nil {
		return err
	}
	defer clearPhases(ph, logger)

	systems := 0
	for i, b := range ph.Blocks() {
		fmt.Fprintf(out, "block %d\n", i)
		for r, row := range b.Rows() {
			names := row.Names()
			if len(names) == 0 {
				fmt.Fprintf(out, "  row %d: (empty)\n", r)
				continue
			}
			fmt.Fprintf(out, "  row %d: %s\n", r, strings.Join(names, ", "))
			systems += len(names)
		}
	}
	fmt.Fprintf(out, "OK: %d blocks, %d systems\n", len(ph.Blocks()), systems)
	return nil
}
