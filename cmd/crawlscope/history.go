package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/crawlscope/internal/database"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/report"
)

// defaultHistoryLimit is how many search records history lists by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "List past crawls",
		Long: `History lists recorded crawls, newest first.

Each record keeps the URLs a crawl discovered, how it ended and a short
message explaining the outcome. Records can be marked as saved to keep track
of the ones worth revisiting.

Examples:
  # Show the 20 most recent crawls
  crawlscope history

  # Show every recorded crawl of one domain
  crawlscope history --limit 0 example.com

  # Only saved records of one owner
  crawlscope history --saved --owner alice

  # Show one record with all its URLs
  crawlscope history show 42

  # Mark a record as saved, and undo it
  crawlscope history save 42
  crawlscope history unsave 42`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("owner", "",
		"Only list crawls of this owner")
	cmd.Flags().BoolP("saved", "s", false,
		"Only list saved records")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of records (0 lists all)")
	addReportFlags(cmd)

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistorySaveCmd("save", "Mark a search record as saved", true))
	cmd.AddCommand(newHistorySaveCmd("unsave", "Clear the saved mark of a search record", false))

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	filter, err := historyFilter(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.service.History(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	return writeReport(cmd, func(w report.Writer) (int, error) {
		return w.WriteHistory(recs)
	})
}

// historyFilter builds the search filter from the history flags and the
// optional domain argument.
func historyFilter(cmd *cobra.Command, args []string) (database.SearchFilter, error) {
	var filter database.SearchFilter

	if len(args) == 1 {
		domain, err := model.ValidateDomain(args[0])
		if err != nil {
			return filter, fmt.Errorf("invalid domain %q: %w", args[0], err)
		}
		filter.Domain = domain
	}

	var err error
	if filter.Owner, err = cmd.Flags().GetString("owner"); err != nil {
		return filter, err
	}
	if filter.SavedOnly, err = cmd.Flags().GetBool("saved"); err != nil {
		return filter, err
	}
	if filter.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return filter, err
	}
	if filter.Limit < 0 {
		return filter, fmt.Errorf("limit must not be negative, got %d", filter.Limit)
	}
	return filter, nil
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one search record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSearchID(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.service.GetSearch(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeReport(cmd, func(w report.Writer) (int, error) {
				return w.WriteSearch(rec)
			})
		},
	}
	addReportFlags(cmd)
	return cmd
}

func newHistorySaveCmd(use, short string, saved bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSearchID(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.SetSaved(cmd.Context(), id, saved); err != nil {
				return err
			}

			state := "saved"
			if !saved {
				state = "no longer saved"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Search record %d is %s\n", id, state)
			return nil
		},
	}
}

// parseSearchID parses a positive search record ID.
func parseSearchID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid search record id %q", raw)
	}
	return id, nil
}
