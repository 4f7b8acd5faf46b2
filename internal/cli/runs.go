package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/framephase/internal/store"
	"github.com/me/framephase/pkg/model"
	"github.com/spf13/cobra"
)

func openStore(ctx context.Context, path string, logger *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate trace store: %w", err)
	}
	return st, nil
}

func newRunsCmd() *cobra.Command {
	var dbPath string
	opts := model.DefaultListOptions()

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			return listRuns(cmd.Context(), st, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite frame trace database")
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum runs to show")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Runs to skip")
	cmd.MarkFlagRequired("db")
	return cmd
}

func listRuns(ctx context.Context, st store.Store, opts model.ListOptions, out io.Writer) error {
	runs, total, err := st.ListRuns(ctx, opts)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	fmt.Fprintf(out, "%-40s  %-12s  %-6s  %-10s  %s\n", "ID", "LABEL", "BLOCKS", "TICKS", "STARTED")
	fmt.Fprintf(out, "%-40s  %-12s  %-6s  %-10s  %s\n", "--", "-----", "------", "-----", "-------")
	for _, r := range runs {
		started := humanize.Time(r.StartedAt)
		if r.FinishedAt == nil {
			started += " (unfinished)"
		}
		fmt.Fprintf(out, "%-40s  %-12s  %-6d  %-10s  %s\n",
			r.ID, r.Label, r.Blocks, humanize.Comma(int64(r.Ticks)), started)
	}
	if opts.Offset+len(runs) < total {
		fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
	}
	return nil
}

func newEventsCmd() *cobra.Command {
	var (
		dbPath string
		block  int
		kind   string
	)
	opts := model.DefaultListOptions()

	cmd := &cobra.Command{
		Use:   "events RUN_ID",
		Short: "Show the frame trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter model.EventFilter
			if block >= 0 {
				filter.Block = &block
			}
			if kind != "" {
				filter.Kind = model.EventKind(kind)
				if !filter.Kind.IsValid() {
					return fmt.Errorf("unknown event kind %q", kind)
				}
			}

			st, err := openStore(cmd.Context(), dbPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			return listEvents(cmd.Context(), st, args[0], filter, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite frame trace database")
	cmd.Flags().IntVar(&block, "block", -1, "Only events of this block")
	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this kind (row_submitted, frame_completed, stalled)")
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum events to show")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Events to skip")
	cmd.MarkFlagRequired("db")
	return cmd
}

func listEvents(ctx context.Context, st store.Store, runID string, filter model.EventFilter, opts model.ListOptions, out io.Writer) error {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	events, total, err := st.ListEvents(ctx, runID, filter, opts)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %-5s  %-15s  %-5s  %-4s  %-4s  %s\n", "TICK", "BLOCK", "KIND", "FRAME", "ROW", "JOBS", "DETAIL")
	for _, ev := range events {
		detail := ""
		switch ev.Kind {
		case model.EventStalled:
			detail = "waiting on " + string(ev.Reason)
		case model.EventFrameCompleted:
			detail = fmt.Sprintf("cycle %d", ev.Cycles)
		}
		fmt.Fprintf(out, "%-8d  %-5d  %-15s  %-5d  %-4d  %-4d  %s\n",
			ev.Tick, ev.Block, ev.Kind, ev.Frame, ev.Row, ev.Jobs, detail)
	}
	if opts.Offset+len(events) < total {
		fmt.Fprintf(out, "\n(%d of %d shown, run started %s)\n", len(events), total, run.StartedAt.Format(time.RFC3339))
	}
	return nil
}
