package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/fsync/internal/history"
)

var (
	historyLimit int
	historyPair  string
	historyPrune time.Duration
)

var errHistoryDisabled = errors.New("transfer history is disabled (set flags.history: true)")

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transfers",
	Long: `Show the most recent transfers and removals, newest first, followed by
totals.

Examples:
  fsync history
  fsync history --pair site --limit 50
  fsync history --prune 720h      # drop entries older than 30 days`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(rt *runtime) error {
			if rt.history == nil {
				return errHistoryDisabled
			}
			store := rt.history.Store()

			if historyPrune > 0 {
				n, err := store.Prune(rt.ctx, time.Now().Add(-historyPrune))
				if err != nil {
					return err
				}
				rt.out.Info("Pruned %d entries", n)
			}

			limit := historyLimit
			if limit <= 0 {
				limit = rt.cfg.History.Limit
			}
			entries, err := store.Recent(rt.ctx, historyPair, limit)
			if err != nil {
				return err
			}
			sum, err := store.Summarize(rt.ctx, historyPair)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries, sum)
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "number of entries (default: history.limit)")
	historyCmd.Flags().StringVarP(&historyPair, "pair", "p", "", "only show this folder pair")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "first delete entries older than this")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, entries []history.Entry, sum history.Summary) {
	for _, e := range entries {
		status := "ok"
		if e.Failed() {
			status = "FAILED: " + e.Error
		}
		pair := e.Pair
		if pair == "" {
			pair = "-"
		}
		_, _ = fmt.Fprintf(w, "%s  %-10s %-8s %s  %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), pair, e.Operation, e.FileName, status)
	}
	_, _ = fmt.Fprintf(w, "Uploads: %d Downloads: %d Removals: %d Failures: %d\n",
		sum.Uploads, sum.Downloads, sum.Removals, sum.Failures)
}
