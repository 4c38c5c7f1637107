package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStopCmd creates the stop command.
func NewStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [progress-key]",
		Short: "Ask a running crawl to stop",
		Long: `Stop asks the crawl behind a progress key to stop after its current page.

Only the crawl's owner or an administrator listed in the configuration file
may stop it. Crawls started without an owner can be stopped without one.
Stopping a finished crawl does nothing.

Examples:
  crawlscope stop 4f3c2a1e-8d8b-4b57-9a55-0f4c1e2d3b6a
  crawlscope stop --owner alice 4f3c2a1e-8d8b-4b57-9a55-0f4c1e2d3b6a`,
		Args: cobra.ExactArgs(1),
		RunE: runStopCmd,
	}

	cmd.Flags().String("owner", "",
		"Identity requesting the stop")
	return cmd
}

// runStopCmd executes the stop command.
func runStopCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
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

	key := args[0]
	if err := a.service.StopCrawl(cmd.Context(), key, cfg.Identity(owner)); err != nil {
		return fmt.Errorf("failed to stop crawl %s: %w", key, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stop requested for %s\n", key)
	return nil
}
