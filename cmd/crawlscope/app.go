package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/config"
	"github.com/nao1215/crawlscope/internal/crawler"
	"github.com/nao1215/crawlscope/internal/database"
	"github.com/nao1215/crawlscope/internal/log"
	"github.com/nao1215/crawlscope/internal/pipeline"
	"github.com/nao1215/crawlscope/internal/progress"
	"github.com/nao1215/crawlscope/internal/report"
	"github.com/nao1215/crawlscope/internal/robots"
	"github.com/nao1215/crawlscope/internal/sitemap"
	"github.com/nao1215/crawlscope/internal/transport"
)

// shutdownTimeout bounds how long an interrupted command waits for running
// crawls to record their stopped state.
const shutdownTimeout = 30 * time.Second

// app bundles the components a command works with.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *database.Store
	tracker *progress.Tracker
	service *pipeline.Service
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getPersistentString retrieves a string flag from the command or the root.
func getPersistentString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds the configuration from defaults, the configuration file
// and the global flags. Command-specific flags are applied by the caller.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(getPersistentString(cmd, "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if dataDir := getPersistentString(cmd, "data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logFormat := getPersistentString(cmd, "log-format"); logFormat != "" {
		cfg.LogFormat = logFormat
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// newLogger builds the secure logger in the configured format.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogFormat == config.LogFormatJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// newApp validates cfg and wires the store, tracker, crawl engine and
// service. The caller must Close the returned app.
func newApp(cmd *cobra.Command, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	store, err := database.Open(cfg.DataDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", store.Path())

	tracker := progress.NewTracker(store, progress.WithLogger(logger))

	engine, err := newEngine(cfg, tracker, logger)
	if err != nil {
		_ = store.Close() //nolint:errcheck // Best effort cleanup
		return nil, err
	}

	service := pipeline.NewService(store, tracker, engine,
		pipeline.WithLogger(logger),
		pipeline.WithMaxConcurrentCrawls(cfg.MaxConcurrentCrawls),
		pipeline.WithDefaultMaxPages(cfg.MaxPages),
		pipeline.WithBatchPause(cfg.BatchPause),
		pipeline.WithBatchLimits(cfg.BatchMaxDomains, cfg.BatchDefaultLimit, cfg.BatchMaxLimit),
		pipeline.WithWindows(cfg.ActiveWindow, cfg.LiveWindow),
		pipeline.WithReapThresholds(cfg.IdleThreshold, cfg.OrphanThreshold),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		tracker: tracker,
		service: service,
	}, nil
}

// newEngine assembles the crawl engine and its collaborators from cfg.
func newEngine(cfg *config.Config, tracker *progress.Tracker, logger *slog.Logger) (*crawler.Engine, error) {
	client, err := transport.NewClient(
		transport.WithProxy(cfg.ProxyURL),
		transport.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	headers := antibot.NewHeaderProvider(antibot.WithXMLGatedDomains(cfg.XMLGatedDomains))

	inspector := robots.NewInspector(client, headers,
		robots.WithTimeout(cfg.RobotsTimeout),
		robots.WithScheme(cfg.Scheme),
		robots.WithLogger(logger),
	)

	resolver := sitemap.NewResolver(client, headers, inspector,
		sitemap.WithCap(cfg.SitemapCap),
		sitemap.WithTimeout(cfg.SitemapTimeout),
		sitemap.WithChildTimeout(cfg.SitemapChildTimeout),
		sitemap.WithScheme(cfg.Scheme),
		sitemap.WithLogger(logger),
	)

	return crawler.NewEngine(client, headers, inspector, resolver, tracker,
		crawler.WithBaseDelay(cfg.BaseDelay),
		crawler.WithFetchTimeout(cfg.FetchTimeout),
		crawler.WithMaxBlocks(cfg.MaxBlocks),
		crawler.WithScheme(cfg.Scheme),
		crawler.WithLogger(logger),
	), nil
}

// Close releases the database.
func (a *app) Close() error {
	return a.store.Close()
}

// wait blocks until every crawl the service started has finished. When ctx
// is cancelled first, running crawls are shut down and given
// shutdownTimeout to record their stopped state.
func (a *app) wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- a.service.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down running crawls", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.service.Shutdown(shutdownCtx)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// addReportFlags registers the output format flags shared by commands that
// print a report.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
}

// writeReport renders a report in the format selected by the report flags,
// to stdout or the --output file.
func writeReport(cmd *cobra.Command, write func(report.Writer) (int, error)) error {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := createReportFile(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	_, err = write(newReportWriter(out, jsonOut, markdownOut, getVerboseFlag(cmd)))
	return err
}

// newReportWriter picks the report format. Plain text is the default.
func newReportWriter(out io.Writer, jsonOut, markdownOut, verbose bool) report.Writer {
	switch {
	case jsonOut:
		return report.NewJSONWriter(out, report.WithPrettyPrint())
	case markdownOut:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(verbose))
	}
}

// createReportFile creates or truncates path with owner-only permissions,
// creating parent directories as needed.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// errNoSearchRecord is returned when a finished crawl has no SearchRecord.
var errNoSearchRecord = errors.New("crawl has no search record")
