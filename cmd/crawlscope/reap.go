package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/config"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/reaper"
)

// NewReapCmd creates the reap command.
func NewReapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Finalize crawls whose process died",
		Long: `Reap cleans up after crawls that stopped reporting, typically because the
process running them was killed.

A sweep:
- closes search records whose crawl already finished
- marks crawls silent for longer than the idle threshold as reaped
- finalizes old search records that no running crawl references

Sweeps are idempotent. With --watch, reap keeps running and sweeps on the
configured cron schedule until interrupted.

Examples:
  # Sweep once
  crawlscope reap

  # Sweep every five minutes until Ctrl+C
  crawlscope reap --watch

  # Sweep hourly with a longer idle threshold
  crawlscope reap --watch --schedule @hourly --idle 30m`,
		Args: cobra.NoArgs,
		RunE: runReapCmd,
	}

	cmd.Flags().BoolP("watch", "w", false,
		"Keep running and sweep on a schedule")
	cmd.Flags().String("schedule", config.DefaultReapSchedule,
		"Cron schedule used with --watch")
	cmd.Flags().Duration("idle", config.DefaultIdleThreshold,
		"Reap running crawls silent for longer than this")
	cmd.Flags().Duration("orphan", config.DefaultOrphanThreshold,
		"Finalize unfinished search records older than this")
	return cmd
}

// runReapCmd executes the reap command.
func runReapCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyReapFlags(cmd, cfg); err != nil {
		return err
	}

	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r := reaper.New(a.tracker,
		reaper.WithSchedule(cfg.ReapSchedule),
		reaper.WithIdleThreshold(cfg.IdleThreshold),
		reaper.WithOrphanThreshold(cfg.OrphanThreshold),
		reaper.WithLogger(a.logger),
	)

	out := cmd.OutOrStdout()
	if !watch {
		result, err := r.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("reap failed: %w", err)
		}
		printReapResult(out, result)
		return nil
	}

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		return fmt.Errorf("reap failed: %w", err)
	}
	if err := r.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reaper running on schedule %q (next sweep %s). Press Ctrl+C to stop.\n",
		cfg.ReapSchedule, r.NextRun().Format("15:04:05"))

	<-ctx.Done()
	r.Stop()

	runs, last := r.Stats()
	fmt.Fprintf(out, "Reaper stopped after %d sweeps.\n", runs)
	printReapResult(out, last)
	return nil
}

// applyReapFlags layers the explicitly set reap flags onto cfg.
func applyReapFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("schedule") {
		s, err := flags.GetString("schedule")
		if err != nil {
			return err
		}
		cfg.ReapSchedule = s
	}
	if flags.Changed("idle") {
		d, err := flags.GetDuration("idle")
		if err != nil {
			return err
		}
		cfg.IdleThreshold = d
	}
	if flags.Changed("orphan") {
		d, err := flags.GetDuration("orphan")
		if err != nil {
			return err
		}
		cfg.OrphanThreshold = d
	}
	return nil
}

func printReapResult(w io.Writer, result model.ReapResult) {
	fmt.Fprintf(w, "Reaped %d crawl(s), finalized %d search record(s).\n",
		result.ProgressReaped, result.SearchesFinalized)
}
