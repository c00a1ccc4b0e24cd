package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kirja/internal/config"
	"github.com/yairfalse/kirja/internal/history"
	"github.com/yairfalse/kirja/pkg/inventory"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [kind]",
	Short: "Show recorded runs",
	Long: `Show the runs recorded in the local history ledger, newest first.
The ledger is written when [history] path (or KIRJA_HISTORY_PATH) is set.

A running daemon or collect holds the ledger's write lock, so history
cannot read it until that process exits. It gives up after 5 seconds.`,
	Example: `  kirja history                              # Last 20 runs of every kind
  kirja history ec2 --limit 5                # Last 5 instance runs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	var kind inventory.Kind
	if len(args) == 1 {
		k, err := inventory.ParseKind(args[0])
		if err != nil {
			return err
		}
		kind = k
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return errors.New("history is not enabled: set [history] path or KIRJA_HISTORY_PATH")
	}

	store, err := history.OpenReadOnly(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REV\tFINISHED\tKIND\tSTATUS\tRECORDS\tSKIPPED\tDURATION\tRUN ID")
	for _, e := range store.List(kind, historyLimit) {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.Rev, e.FinishedAt.Format(time.RFC3339), e.Kind, e.Status,
			e.Records, e.Skipped, e.Duration.Round(time.Millisecond), e.RunID)
	}
	return w.Flush()
}
