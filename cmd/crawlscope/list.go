package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/report"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent crawls",
		Long: `List shows crawls updated in the last 24 hours, most recent first.

A crawl that is not finished but has not reported a page for several
minutes is flagged as stale; "crawlscope reap" finalizes such crawls.

Examples:
  crawlscope list
  crawlscope list --owner alice
  crawlscope list -m -o active.md`,
		Args: cobra.NoArgs,
		RunE: runListCmd,
	}

	cmd.Flags().String("owner", "",
		"Only list crawls of this owner")
	addReportFlags(cmd)
	return cmd
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, _ []string) error {
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

	active, err := a.service.ListActive(cmd.Context(), owner)
	if err != nil {
		return fmt.Errorf("failed to list crawls: %w", err)
	}
	return writeReport(cmd, func(w report.Writer) (int, error) {
		return w.WriteActive(active)
	})
}
