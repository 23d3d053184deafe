package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/history"
	"github.com/spf13/cobra"
)

var (
	historyDBPathFlag string
	historyLimitFlag  int
	historyFileFlag   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs",
	Long: `Show runs previously recorded with --history-db.

Examples:
  reqflow history --db .reqflow.db
  reqflow history --db .reqflow.db --file api.reqflow --limit 10`,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBPathFlag, "db", "", "Path to the history database (required)")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum runs to show")
	historyCmd.Flags().StringVar(&historyFileFlag, "file", "", "Show history for one scenario file only")
	_ = historyCmd.MarkFlagRequired("db")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	store, err := history.Open(historyDBPathFlag)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer store.Close()

	var records []*history.RunRecord
	if historyFileFlag != "" {
		records, err = store.FileHistory(cmd.Context(), historyFileFlag, historyLimitFlag)
	} else {
		records, err = store.Recent(cmd.Context(), historyLimitFlag)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
		return nil
	}
	for _, rec := range records {
		status := "FAIL"
		if rec.Success {
			status = "PASS"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %d passed, %d failed, %d skipped  (%dms)\n",
			rec.StartedAt.Local().Format(time.DateTime),
			status,
			rec.ID,
			rec.Passed, rec.Failed, rec.Skipped,
			rec.Duration.Milliseconds(),
		)
	}
	return nil
}
