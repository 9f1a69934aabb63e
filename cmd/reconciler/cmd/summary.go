package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/logger"
)

var summaryInputs inputFiles

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print reconciliation statistics for the given files",
	Long: `Summary loads the files the same way reconcile does, without asking for
suggestions, and prints totals, the discrepancy and the per-fund and per-line
breakdowns.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return summaryInputs.validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := logger.WithComponent("summary")

		ledger, bank, err := loadTransactions(ctx, summaryInputs, os.Stderr, log)
		if err != nil {
			return err
		}
		st, err := newStore(ctx, ledger, bank, log)
		if err != nil {
			return err
		}
		snap := st.Snapshot()
		printStats(cmd.OutOrStdout(), snap.Stats)
		printBreakdowns(cmd.OutOrStdout(), "FUND", snap.FundResults)
		printBreakdowns(cmd.OutOrStdout(), "FEC LINE", snap.LineResults)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	addInputFlags(summaryCmd, &summaryInputs)
}

func printStats(w io.Writer, s summary.Stats) {
	fmt.Fprintf(w, "Ledger:        %d of %d reconciled (%.1f%%)\n",
		s.ReconciledLedgerTransactions, s.TotalLedgerTransactions, s.ReconciliationProgress)
	fmt.Fprintf(w, "Bank:          %d of %d reconciled, %d NRIT\n",
		s.ReconciledBankTransactions, s.TotalBankTransactions, s.NritCount)
	fmt.Fprintf(w, "Ledger total:  %s (unreconciled %s)\n",
		s.TotalLedgerAmount.StringFixed(2), s.UnreconciledLedgerAmount.StringFixed(2))
	fmt.Fprintf(w, "Bank total:    %s (unreconciled %s)\n",
		s.TotalBankAmount.StringFixed(2), s.UnreconciledBankAmount.StringFixed(2))
	status := "balanced"
	if s.HasDiscrepancy {
		status = "DISCREPANCY"
	}
	fmt.Fprintf(w, "Discrepancy:   %s (%s)\n", s.Discrepancy.StringFixed(2), status)
}

func printBreakdowns(w io.Writer, title string, rows []summary.Breakdown) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tTOTAL\tRECONCILED\tUNRECONCILED\tRECONCILED AMT\tUNRECONCILED AMT\n", title)
	for _, b := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n", b.Key, b.Total, b.Reconciled, b.Unreconciled,
			b.ReconciledAmount.StringFixed(2), b.UnreconciledAmount.StringFixed(2))
	}
	tw.Flush()
}
