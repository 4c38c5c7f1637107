package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/report"
)

// batchPollInterval is how often batch progress is printed.
const batchPollInterval = time.Second

// NewBatchCmd creates the batch command.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [domain...]",
		Short: "Crawl several domains one after another",
		Long: `Batch crawls up to ten domains sequentially with a per-domain page limit.

Invalid domains are reported and skipped; duplicates are crawled once. A
failure on one domain never stops the others. The batch pauses briefly
between domains.

Per-site overrides from the configuration file are not applied in batch
mode; every domain uses the defaults.

Examples:
  # Crawl three domains with the default limit of 50 pages each
  crawlscope batch example.com example.org example.net

  # Raise the per-domain limit
  crawlscope batch --limit 200 example.com example.org

  # Output the batch result as JSON
  crawlscope batch -j example.com example.org`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatchCmd,
	}

	cmd.Flags().IntP("limit", "l", 0,
		"Page limit per domain (0 uses the configured default)")
	cmd.Flags().String("owner", "",
		"Owner recorded with every crawl of the batch")
	cmd.Flags().String("proxy", "",
		"Proxy URL for outbound traffic (http, https, socks5)")
	addReportFlags(cmd)

	return cmd
}

// runBatchCmd executes the batch command.
func runBatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("proxy") {
		if cfg.ProxyURL, err = cmd.Flags().GetString("proxy"); err != nil {
			return err
		}
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	owner, err := cmd.Flags().GetString("owner")
	if err != nil {
		return err
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(cfg.Sites) > 0 {
		a.logger.Warn("batch processing uses default settings only; per-site overrides are ignored",
			"siteCount", len(cfg.Sites))
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Per-site configurations are ignored in batch mode. Use \"crawlscope crawl\" to apply them.\n\n")
	}

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	batch, err := a.service.StartBatch(ctx, args, limit, cfg.Identity(owner))
	if err != nil {
		return fmt.Errorf("failed to start batch: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	for _, d := range batch.Rejected {
		fmt.Fprintf(stderr, "Skipping invalid domain: %s\n", d)
	}
	fmt.Fprintf(stderr, "Starting batch of %d domains (limit %d pages each)...\n",
		batch.TotalDomains, batch.PerDomainLimit)

	startTime := time.Now()
	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watchBatch(watchCtx, a, batch.Key, stderr)
	}()

	if err := a.wait(ctx); err != nil {
		a.logger.Warn("batch did not shut down cleanly", "key", batch.Key, "error", err)
	}
	stopWatch()
	<-watchDone

	fmt.Fprintf(stderr, "Batch completed in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	final, err := a.service.GetBatch(batch.Key)
	if err != nil {
		return err
	}
	return writeReport(cmd, func(w report.Writer) (int, error) {
		return w.WriteBatch(final)
	})
}

// watchBatch prints a line each time another domain of the batch finishes.
func watchBatch(ctx context.Context, a *app, key string, w io.Writer) {
	ticker := time.NewTicker(batchPollInterval)
	defer ticker.Stop()

	reported := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := a.service.GetBatch(key)
		if err != nil {
			return
		}
		for _, domain := range status.Domains[reported:status.CompletedDomains] {
			outcome := status.Results[domain]
			fmt.Fprintf(w, "[%d/%d] %s: %s (%d URLs)\n",
				reported+1, status.TotalDomains, domain, outcome.Status, outcome.URLsCount)
			reported++
		}
		if status.Done {
			return
		}
	}
}
