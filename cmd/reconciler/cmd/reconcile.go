package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"treasury-reconciler/cmd/reconciler/config"
	"treasury-reconciler/internal/matcher"
	"treasury-reconciler/internal/persistence"
	"treasury-reconciler/internal/reporter"
	"treasury-reconciler/internal/session"
	"treasury-reconciler/internal/store"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// Flags for the reconcile command
var (
	inputs      inputFiles
	autoAccept  bool
	noSuggest   bool
	outputFile  string
	sessionName string
	reportOpts  config.ReportOptions
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match ledger transactions against bank activity",
	Long: `Reconcile loads a ledger export and one or more bank files, asks the
matching collaborator for suggested pairs and renders a reconciliation report.

The Gemini collaborator is used when RECONCILER_AI_API_KEY is set; otherwise
the offline heuristic matcher suggests pairs.

Examples:
  # Suggestions only, console report
  reconciler reconcile --ledger-file crimson.csv --bank-files bank.csv

  # Accept every suggestion and export the result
  reconciler reconcile --ledger-file crimson.csv --bank-files bank.csv \
    --auto-accept --output-format xlsx --output-file april.xlsx

  # OFX statement, unreconciled rows in a date window
  reconciler reconcile --ledger-file crimson.csv --bank-files stmt.ofx \
    --scope unreconciled --start-date 2024-04-01 --end-date 2024-04-07

  # Record the run as a session
  reconciler reconcile --ledger-file crimson.csv --bank-files bank.csv \
    --auto-accept --session "April week 1"`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	addInputFlags(reconcileCmd, &inputs)

	reconcileCmd.Flags().BoolVar(&autoAccept, "auto-accept", false, "accept every suggestion above the confidence threshold")
	reconcileCmd.Flags().BoolVar(&noSuggest, "no-suggest", false, "skip the suggestion request")
	reconcileCmd.Flags().StringVar(&sessionName, "session", "", "save the result as a reconciliation session with this name")

	// Output flags
	reconcileCmd.Flags().StringVarP(&reportOpts.Format, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&reportOpts.Scope, "scope", "all", "rows to export: all, reconciled, unreconciled, nrit")
	reconcileCmd.Flags().StringVar(&reportOpts.StartDate, "start-date", "", "filter start date (YYYY-MM-DD)")
	reconcileCmd.Flags().StringVar(&reportOpts.EndDate, "end-date", "", "filter end date (YYYY-MM-DD)")
	reconcileCmd.Flags().BoolVar(&reportOpts.Audit, "audit", false, "include the audit trail")
	reconcileCmd.Flags().IntVar(&reportOpts.MaxItems, "max-items", 0, "rows per console section (0: default)")
	reconcileCmd.Flags().BoolVar(&reportOpts.NoColor, "no-color", false, "disable console colors")

	// Bind flags to viper
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("scope", reconcileCmd.Flags().Lookup("scope"))
	viper.BindPFlag("auto-accept", reconcileCmd.Flags().Lookup("auto-accept"))
}

// addInputFlags registers the file flags shared by reconcile and summary
func addInputFlags(cmd *cobra.Command, in *inputFiles) {
	cmd.Flags().StringVarP(&in.ledgerFile, "ledger-file", "l", "", "path to the ledger CSV export (required)")
	cmd.Flags().StringSliceVarP(&in.bankFiles, "bank-files", "b", []string{}, "comma-separated bank CSV or OFX files (required)")
	cmd.Flags().BoolVar(&in.forceOFX, "ofx", false, "treat every bank file as OFX regardless of extension")
	cmd.Flags().StringVar(&in.account, "account", "", "account code assigned to OFX transactions")
	cmd.Flags().BoolVar(&in.strict, "strict", false, "fail when any row cannot be parsed")
	cmd.Flags().BoolVar(&in.progress, "progress", false, "show progress indicators")

	cmd.MarkFlagRequired("ledger-file")
	cmd.MarkFlagRequired("bank-files")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	reportOpts.Format = viper.GetString("output-format")
	reportOpts.Scope = viper.GetString("scope")
	autoAccept = viper.GetBool("auto-accept")

	if err := inputs.validate(); err != nil {
		return err
	}
	if autoAccept && noSuggest {
		return errors.ConfigurationError("auto-accept", true, nil).
			WithSuggestion("--auto-accept needs suggestions; drop --no-suggest")
	}
	if _, err := config.CreateReportConfig(reportOpts); err != nil {
		return err
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.ConfigurationError("output-file", outputFile, err).
					WithSuggestion("create the output directory first")
			}
		}
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.WithComponent("reconcile")

	ledger, bank, err := loadTransactions(ctx, inputs, os.Stderr, log)
	if err != nil {
		return err
	}
	st, err := newStore(ctx, ledger, bank, log)
	if err != nil {
		return err
	}

	if !noSuggest {
		outcome, err := requestWithSpinner(ctx, st, inputs.progress)
		switch {
		case errors.IsCollaboratorUnavailable(err):
			// the report is still useful without suggestions
			fmt.Fprintf(os.Stderr, "Warning: suggestions unavailable: %v\n", err)
		case err != nil:
			return err
		default:
			printOutcome(os.Stderr, outcome)
		}
	}

	if autoAccept {
		if res := st.AcceptSuggestions(); res == nil {
			fmt.Fprintln(os.Stderr, "No suggestions to accept")
		} else {
			fmt.Fprintf(os.Stderr, "Accepted suggestions: %d transactions reconciled (%s)\n", res.Count(), res.Amount.StringFixed(2))
		}
	}

	snap := st.Snapshot()
	if sessionName != "" {
		s, err := saveSession(ctx, sessionName, snap, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Session %s saved (%s)\n", s.ID, s.Period)
	}

	reportConfig, err := config.CreateReportConfig(reportOpts)
	if err != nil {
		return err
	}
	srg, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}
	if err := srg.WriteReport(snap, outputFile, os.Stdout); err != nil {
		return err
	}
	if outputFile != "" {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", outputFile)
	}
	return nil
}

// requestWithSpinner runs the suggestion request while a spinner ticks
func requestWithSpinner(ctx context.Context, st *store.Store, show bool) (*matcher.SuggestionOutcome, error) {
	if !show {
		return st.RequestSuggestions(ctx)
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Requesting suggestions"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	outcome, err := st.RequestSuggestions(ctx)
	close(done)
	bar.Finish()
	return outcome, err
}

func printOutcome(w io.Writer, outcome *matcher.SuggestionOutcome) {
	if !outcome.Found {
		fmt.Fprintf(w, "No matches found (%d returned, %d below threshold, %d overlapping)\n",
			outcome.Returned, outcome.BelowThreshold, outcome.Overlapping)
		return
	}
	fmt.Fprintf(w, "%d suggestions (%d returned, %d below threshold, %d overlapping)\n",
		len(outcome.Pairs), outcome.Returned, outcome.BelowThreshold, outcome.Overlapping)
}

// saveSession records snap as a new in_progress session in the configured
// storage, using the saved working period.
func saveSession(ctx context.Context, name string, snap *store.Snapshot, log logger.Logger) (*session.Session, error) {
	kv, err := appConfig.OpenStorage(ctx)
	if err != nil {
		return nil, err
	}
	defer kv.Close()

	period, err := persistence.NewPeriodRepository(kv, log).Load(ctx)
	if err != nil {
		return nil, err
	}
	repo := persistence.NewSessionRepository(kv, log)
	mgr, err := restoreSessions(ctx, repo, log)
	if err != nil {
		return nil, err
	}

	s, err := mgr.Start(name, period, appConfig.User, snap.Stats, snap.FundResults, snap.LineResults)
	if err != nil {
		return nil, err
	}
	if err := repo.Save(ctx, mgr.List()); err != nil {
		return nil, err
	}
	return s, nil
}
