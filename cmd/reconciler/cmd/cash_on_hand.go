package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/persistence"
	"treasury-reconciler/internal/session"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

var cashSet struct {
	name     string
	starting string
	ending   string
}

var periodSet struct {
	start      string
	end        string
	periodType string
}

var cashOnHandCmd = &cobra.Command{
	Use:   "cash-on-hand",
	Short: "Show and edit per-account cash-on-hand balances",
	Long: `Cash-on-hand balances are stored in the configured backend (SQLite by
default, see --db) together with the working reconciliation period.`,
}

var cashShowCmd = &cobra.Command{
	Use:   "show [ACCOUNT]",
	Short: "Print balances for every account, or one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(ctx context.Context, kv persistence.KeyValueStore, log logger.Logger) error {
			repo := persistence.NewCashOnHandRepository(kv, log)
			if len(args) == 1 {
				entry, err := repo.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printCashOnHand(cmd.OutOrStdout(), []persistence.CashOnHand{*entry})
				return nil
			}
			entries, err := repo.Load(ctx)
			if err != nil {
				return err
			}
			printCashOnHand(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var cashSetCmd = &cobra.Command{
	Use:   "set ACCOUNT",
	Short: "Update an account's balances, creating it if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := cashPatchFromFlags(cmd)
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, kv persistence.KeyValueStore, log logger.Logger) error {
			entry, err := persistence.NewCashOnHandRepository(kv, log).Update(ctx, args[0], patch)
			if err != nil {
				return err
			}
			printCashOnHand(cmd.OutOrStdout(), []persistence.CashOnHand{*entry})
			return nil
		})
	},
}

var periodCmd = &cobra.Command{
	Use:   "period",
	Short: "Show or set the working reconciliation period",
	Long: `Without flags the saved period is printed. With --start and --end the
period is saved and every cash-on-hand entry is moved onto it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(ctx context.Context, kv persistence.KeyValueStore, log logger.Logger) error {
			if periodSet.start == "" && periodSet.end == "" {
				p, err := persistence.NewPeriodRepository(kv, log).Load(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
				return nil
			}
			p, err := periodFromFlags()
			if err != nil {
				return err
			}
			entries, err := persistence.NewCashOnHandRepository(kv, log).SetPeriod(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Period set to %s\n", p)
			printCashOnHand(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cashOnHandCmd)
	cashOnHandCmd.AddCommand(cashShowCmd, cashSetCmd, periodCmd)

	cashSetCmd.Flags().StringVar(&cashSet.name, "name", "", "account name")
	cashSetCmd.Flags().StringVar(&cashSet.starting, "starting", "", "starting balance")
	cashSetCmd.Flags().StringVar(&cashSet.ending, "ending", "", "ending balance")

	periodCmd.Flags().StringVar(&periodSet.start, "start", "", "period start (YYYY-MM-DD)")
	periodCmd.Flags().StringVar(&periodSet.end, "end", "", "period end (YYYY-MM-DD)")
	periodCmd.Flags().StringVar(&periodSet.periodType, "type", string(session.PeriodCustom), "monthly, quarterly, annual or custom")
}

// withStorage opens the configured backend for the duration of fn
func withStorage(cmd *cobra.Command, fn func(ctx context.Context, kv persistence.KeyValueStore, log logger.Logger) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.WithComponent(cmd.Name())
	kv, err := appConfig.OpenStorage(ctx)
	if err != nil {
		return err
	}
	defer kv.Close()
	return fn(ctx, kv, log)
}

func cashPatchFromFlags(cmd *cobra.Command) (persistence.CashOnHandPatch, error) {
	var patch persistence.CashOnHandPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.AccountName = &cashSet.name
	}
	if flags.Changed("starting") {
		d, err := decimal.NewFromString(cashSet.starting)
		if err != nil {
			return patch, errors.Validation(errors.CodeInvalidAmount, "starting", cashSet.starting)
		}
		patch.StartingBalance = &d
	}
	if flags.Changed("ending") {
		d, err := decimal.NewFromString(cashSet.ending)
		if err != nil {
			return patch, errors.Validation(errors.CodeInvalidAmount, "ending", cashSet.ending)
		}
		patch.EndingBalance = &d
	}
	if patch.AccountName == nil && patch.StartingBalance == nil && patch.EndingBalance == nil {
		return patch, errors.Validation(errors.CodeMissingField, "name|starting|ending", nil).
			WithSuggestion("pass at least one of --name, --starting, --ending")
	}
	source := persistence.SourceManualEntry
	patch.Source = &source
	return patch, nil
}

func periodFromFlags() (session.Period, error) {
	start, err := models.ParseDate(periodSet.start)
	if err != nil {
		return session.Period{}, errors.Validation(errors.CodeInvalidDate, "start", periodSet.start)
	}
	end, err := models.ParseDate(periodSet.end)
	if err != nil {
		return session.Period{}, errors.Validation(errors.CodeInvalidDate, "end", periodSet.end)
	}
	p := session.Period{Start: start, End: end, Type: session.PeriodType(periodSet.periodType)}
	return p, p.Validate()
}

func printCashOnHand(w io.Writer, entries []persistence.CashOnHand) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tNAME\tSTART\tEND\tSTARTING\tENDING\tNET\tSOURCE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.AccountCode, e.AccountName, e.StartDate, e.EndDate,
			e.StartingBalance.StringFixed(2), e.EndingBalance.StringFixed(2),
			e.NetChange().StringFixed(2), e.Source)
	}
	tw.Flush()
}
