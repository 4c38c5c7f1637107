package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/config"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [domain]",
		Short: "Crawl a single domain",
		Long: `Crawl discovers the pages of one domain by breadth-first traversal.

The crawl starts from the home page, follows same-domain links and waits
between fetches as robots.txt asks. When the site keeps blocking, crawlscope
switches to the domain's sitemaps and records the URLs found there.

The crawl runs in the foreground. Its progress key is printed first, so
"crawlscope progress" and "crawlscope stop" can follow it from another
terminal. Press Ctrl+C to stop it; pages found so far are kept.

Examples:
  # Crawl a domain until its frontier is exhausted
  crawlscope crawl example.com

  # Stop after 200 pages
  crawlscope crawl --max-pages 200 example.com

  # Crawl on behalf of an owner so only they (or an admin) can stop it
  crawlscope crawl --owner alice example.com

  # Write a Markdown report
  crawlscope crawl -m -o reports/example.md example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl (0 means no limit)")
	cmd.Flags().DurationP("delay", "d", config.DefaultBaseDelay,
		"Base delay between page fetches")
	cmd.Flags().String("owner", "",
		"Owner recorded with the crawl")
	cmd.Flags().String("proxy", "",
		"Proxy URL for outbound traffic (http, https, socks5)")
	addReportFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	domain, err := model.ValidateDomain(args[0])
	if err != nil {
		return fmt.Errorf("invalid domain %q: %w", args[0], err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = cfg.ForSite(domain)
	if err := applyCrawlFlags(cmd, cfg); err != nil {
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

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	key, err := a.service.StartCrawl(ctx, domain, cfg.Identity(owner), 0)
	if err != nil {
		return fmt.Errorf("failed to start crawl: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Crawling %s (progress key: %s)...\n", domain, key)

	if err := a.wait(ctx); err != nil {
		a.logger.Warn("crawl did not shut down cleanly", "key", key, "error", err)
	}

	rec, err := searchOf(context.WithoutCancel(ctx), a, key)
	if err != nil {
		return err
	}
	return writeReport(cmd, func(w report.Writer) (int, error) {
		return w.WriteSearch(rec)
	})
}

// applyCrawlFlags layers the explicitly set crawl flags onto cfg.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("max-pages") {
		n, err := flags.GetInt("max-pages")
		if err != nil {
			return err
		}
		cfg.MaxPages = n
	}
	if flags.Changed("delay") {
		d, err := flags.GetDuration("delay")
		if err != nil {
			return err
		}
		cfg.BaseDelay = d
	}
	if flags.Changed("proxy") {
		p, err := flags.GetString("proxy")
		if err != nil {
			return err
		}
		cfg.ProxyURL = p
	}
	return nil
}

// searchOf returns the SearchRecord behind the progress key.
func searchOf(ctx context.Context, a *app, key string) (*model.SearchRecord, error) {
	state, err := a.service.GetProgress(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if state.SearchID == nil {
		return nil, fmt.Errorf("%w: %s", errNoSearchRecord, key)
	}
	return a.service.GetSearch(ctx, *state.SearchID)
}
