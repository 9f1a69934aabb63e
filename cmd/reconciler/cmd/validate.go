package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/validation"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

var (
	validateInputs      inputFiles
	validateAsOf        string
	validateJSON        bool
	validateFailOnError bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the given files for data quality problems",
	Long: `Validate loads the files the same way reconcile does and reports rows that
look wrong: zero or unusually large amounts, dates in the future, missing
payment types or descriptions, likely duplicates and long-unreconciled rows.

Issues are listed errors first. With --fail-on-error the command exits with
status 3 when any error-severity issue is found.`,
	Example: `  reconciler validate -l ledger.csv -b bank.csv
  reconciler validate -l ledger.csv -b bank.csv --as-of 2024-06-30 --json`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if validateAsOf != "" {
			if _, err := models.ParseDate(validateAsOf); err != nil {
				return errors.ConfigurationError("as-of", validateAsOf, err)
			}
		}
		return validateInputs.validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := logger.WithComponent("validate")

		ledger, bank, err := loadTransactions(ctx, validateInputs, os.Stderr, log)
		if err != nil {
			return err
		}
		st, err := newStore(ctx, ledger, bank, log)
		if err != nil {
			return err
		}
		snap := st.Snapshot()

		opts := validation.DefaultOptions()
		if validateAsOf != "" {
			opts.Today = models.MustParseDate(validateAsOf)
		}
		report := validation.Validate(snap.Ledger, snap.Bank, opts)
		log.WithFields(logger.Fields{
			"errors":   report.Errors,
			"warnings": report.Warnings,
			"infos":    report.Infos,
		}).Info("Validation finished")

		w := cmd.OutOrStdout()
		if validateJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "encode validation report")
			}
		} else {
			printIssues(w, report)
		}

		if validateFailOnError && report.HasErrors() {
			return errors.New(errors.CategoryValidation, errors.CodeInvalidFormat,
				fmt.Sprintf("%d data validation errors found", report.Errors)).
				WithSuggestion("fix the rows listed above and load the files again")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addInputFlags(validateCmd, &validateInputs)

	validateCmd.Flags().StringVar(&validateAsOf, "as-of", "", "reference date for the future and stale checks (default today)")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the report as JSON")
	validateCmd.Flags().BoolVar(&validateFailOnError, "fail-on-error", false, "exit non-zero when an error-severity issue is found")
}

func printIssues(w io.Writer, r *validation.Report) {
	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "No data validation issues found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCATEGORY\tTRANSACTION\tMESSAGE\tSUGGESTION")
	for _, is := range r.Issues {
		id := is.TransactionID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", is.Severity, is.Category, id, is.Message, is.Suggestion)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d errors, %d warnings, %d info\n", r.Errors, r.Warnings, r.Infos)
}
