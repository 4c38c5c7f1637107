package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for crawlscope.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawlscope",
		Short: "Polite single-domain crawler with sitemap fallback",
		Long: `crawlscope discovers the pages of a website by breadth-first traversal.

It honours robots.txt crawl delays, backs off when the site pushes back, and
switches to sitemap discovery once the site keeps blocking. Every crawl is
recorded in a local SQLite database, so progress can be observed and crawls
can be stopped from another terminal.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .crawlscope.yaml in current or home directory)")
	cmd.PersistentFlags().String("data-dir", "",
		"Directory holding the crawl database (default: XDG data directory)")
	cmd.PersistentFlags().String("log-format", "",
		"Log output format: text or json (default: text)")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewProgressCmd())
	cmd.AddCommand(NewStopCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewReapCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
