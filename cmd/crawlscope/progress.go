package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/report"
)

// NewProgressCmd creates the progress command.
func NewProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress [progress-key]",
		Short: "Show the progress of a crawl",
		Long: `Progress prints the live state of a crawl: pages found so far, the most
recent URL and whether the crawl has finished or was asked to stop.

The progress key is printed by "crawlscope crawl" when the crawl starts and
is listed by "crawlscope list".

Examples:
  crawlscope progress 4f3c2a1e-8d8b-4b57-9a55-0f4c1e2d3b6a
  crawlscope progress -v -j 4f3c2a1e-8d8b-4b57-9a55-0f4c1e2d3b6a`,
		Args: cobra.ExactArgs(1),
		RunE: runProgressCmd,
	}

	addReportFlags(cmd)
	return cmd
}

// runProgressCmd executes the progress command.
func runProgressCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.service.GetProgress(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}
	return writeReport(cmd, func(w report.Writer) (int, error) {
		return w.WriteProgress(state)
	})
}
