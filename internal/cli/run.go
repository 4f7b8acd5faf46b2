package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/me/framephase/internal/config"
	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/internal/phases"
	"github.com/me/framephase/internal/scheduler"
	"github.com/me/framephase/internal/server"
	"github.com/me/framephase/internal/store"
	"github.com/me/framephase/internal/trace"
	"github.com/me/framephase/pkg/model"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cfg := config.DefaultRunConfig()
	var label string

	cmd := &cobra.Command{
		Use:   "run [phases.yaml]",
		Short: "Run the frame scheduler",
		Long: "Run loads a phases document, builds its systems and ticks the scheduler\n" +
			"until interrupted or --max-ticks is reached.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.PhasesPath = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPhases(ctx, cfg, label, cmd.OutOrStdout(), logger)
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Job pool workers (0 = number of CPUs)")
	f.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Delay between ticks (0 = free-running)")
	f.Uint64Var(&cfg.MaxTicks, "max-ticks", cfg.MaxTicks, "Stop after this many ticks (0 = until interrupted)")
	f.Uint64Var(&cfg.FlushEvery, "flush-every", cfg.FlushEvery, "Write the frame trace every N ticks")
	f.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite frame trace database (empty disables tracing)")
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "Status API listen address (empty disables the API)")
	f.StringVar(&label, "label", "", "Label stored with the run record")

	return cmd
}

// runPhases executes one scheduler run and prints a summary to out.
func runPhases(ctx context.Context, cfg config.RunConfig, label string, out io.Writer, logger *slog.Logger) error {
	doc, reg, err := loadPhases(cfg.PhasesPath, logger)
	if err != nil {
		return err
	}

	pool := jobpool.New(cfg.Workers, logger)
	defer pool.Close()

	run := &model.Run{
		ID:         "run_" + uuid.New().String(),
		Label:      label,
		PhasesPath: cfg.PhasesPath,
		Workers:    pool.Workers(),
		StartedAt:  time.Now().UTC(),
	}

	var (
		st        *store.SQLiteStore
		collector *trace.Collector
		phOpts    []phases.Option
		loopOpts  []scheduler.Option
	)
	if cfg.DBPath != "" {
		st, err = store.NewSQLiteStore(cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate trace store: %w", err)
		}
		collector = trace.NewCollector(st, run.ID, 0, logger)
		phOpts = append(phOpts, phases.WithObserver(collector))
		loopOpts = append(loopOpts, scheduler.WithTrace(collector, st))
	}

	ph := phases.New(pool, logger, phOpts...)
	if err := ph.Init(doc, reg); err != nil {
		return err
	}
	run.Blocks = len(ph.Blocks())

	if st != nil {
		if err := st.CreateRun(ctx, run); err != nil {
			return errors.Join(fmt.Errorf("record run: %w", err), ph.Clear())
		}
	}

	loop := scheduler.NewLoop(ph, scheduler.Config{
		TickInterval: cfg.TickInterval,
		MaxTicks:     cfg.MaxTicks,
		FlushEvery:   cfg.FlushEvery,
		DrainTimeout: scheduler.DefaultConfig().DrainTimeout,
	}, logger, loopOpts...)

	var httpServer *http.Server
	if cfg.Addr != "" {
		srvOpts := []server.Option{server.WithPool(pool), server.WithRunID(run.ID)}
		if st != nil {
			srvOpts = append(srvOpts, server.WithStore(st))
		}
		httpServer = &http.Server{
			Addr:    cfg.Addr,
			Handler: server.New(loop, logger, srvOpts...).Handler(),
		}
		go func() {
			logger.Info("status API starting", "addr", cfg.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API failed", "error", err)
			}
		}()
	}

	logger.Info("run started", "run_id", run.ID, "blocks", run.Blocks, "workers", run.Workers)
	start := time.Now()
	runErr := loop.Start(ctx)
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		runErr = nil
	}
	elapsed := time.Since(start)

	// Shutdown must outlive the cancelled run context.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := loop.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("status API shutdown: %w", err))
		}
	}

	printSummary(out, run.ID, loop.Ticks(), elapsed, loop.Snapshot(), pool.Stats())
	return runErr
}

func printSummary(out io.Writer, runID string, ticks uint64, elapsed time.Duration, blocks []model.BlockState, stats jobpool.Stats) {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(ticks) / elapsed.Seconds()
	}
	fmt.Fprintf(out, "Run %s\n", runID)
	fmt.Fprintf(out, "  ticks:   %s in %s (%s ticks/s)\n",
		humanize.Comma(int64(ticks)), elapsed.Round(time.Millisecond), humanize.CommafWithDigits(rate, 1))
	fmt.Fprintf(out, "  jobs:    %s completed, %s helped by the conductor, %d panicked\n",
		humanize.Comma(int64(stats.Completed)), humanize.Comma(int64(stats.Helped)), stats.Panicked)

	fmt.Fprintf(out, "\n  %-6s  %-8s  %s\n", "BLOCK", "ROWS", "FRAMES")
	for _, b := range blocks {
		fmt.Fprintf(out, "  %-6d  %-8d  %s\n", b.Index, len(b.Rows), humanize.Comma(int64(b.Cycles)))
	}
}
