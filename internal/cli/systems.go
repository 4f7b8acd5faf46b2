package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/me/framephase/internal/config"
	"github.com/me/framephase/internal/system"
	"github.com/spf13/cobra"
)

func newSystemsCmd() *cobra.Command {
	var phasesPath string

	cmd := &cobra.Command{
		Use:   "systems",
		Short: "List the systems a phases document can reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSystems(phasesPath, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&phasesPath, "phases", "", "Also list systems declared in this phases document")
	return cmd
}

func listSystems(path string, out io.Writer, logger *slog.Logger) error {
	reg := system.NewRegistry(logger)
	reg.RegisterBuiltins()

	fmt.Fprintf(out, "%-24s  %-8s  %s\n", "NAME", "KIND", "PARAMS")
	fmt.Fprintf(out, "%-24s  %-8s  %s\n", "----", "----", "------")
	for _, name := range reg.Names() {
		fmt.Fprintf(out, "%-24s  %-8s  %s\n", name, name, "built-in defaults")
	}
	if path == "" {
		return nil
	}

	doc, err := config.LoadPhases(path)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(doc.Systems))
	for name := range doc.Systems {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := doc.Systems[name]
		fmt.Fprintf(out, "%-24s  %-8s  %s\n", name, spec.Kind, describeSpec(spec))
	}
	return nil
}

func describeSpec(spec config.SystemSpec) string {
	switch spec.Kind {
	case system.KindSleep:
		return "duration=" + spec.Duration.String()
	case system.KindSpin:
		return fmt.Sprintf("iterations=%d", spec.Iterations)
	case system.KindScript:
		return fmt.Sprintf("script (%d bytes)", len(spec.Script))
	}
	return "-"
}
