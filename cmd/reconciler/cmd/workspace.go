package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"treasury-reconciler/internal/audit"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/parsers"
	"treasury-reconciler/internal/store"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// inputFiles names the files a command loads into a store
type inputFiles struct {
	ledgerFile string
	bankFiles  []string
	forceOFX   bool
	account    string
	strict     bool
	progress   bool
}

func (in inputFiles) validate() error {
	if in.ledgerFile == "" {
		return errors.Validation(errors.CodeMissingField, "ledger-file", nil).
			WithSuggestion("pass the ledger export with --ledger-file")
	}
	if len(in.bankFiles) == 0 {
		return errors.Validation(errors.CodeMissingField, "bank-files", nil).
			WithSuggestion("pass at least one bank file with --bank-files")
	}
	if err := validateFileExists(in.ledgerFile, "ledger file"); err != nil {
		return err
	}
	for i, f := range in.bankFiles {
		if err := validateFileExists(f, fmt.Sprintf("bank file %d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

func (in inputFiles) isOFX(path string) bool {
	if in.forceOFX {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return true
	}
	return false
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.Validation(errors.CodeMissingField, description, filePath)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.NotFound(errors.CodeFileNotFound, description, filePath).
			WithSuggestion("check the path and try again")
	}
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
			fmt.Sprintf("error accessing %s", description)).WithContext("file", filePath)
	}

	if info.IsDir() {
		return errors.Validation(errors.CodeInvalidFormat, description, filePath).
			WithSuggestion("expected a file, got a directory")
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError,
			fmt.Sprintf("%s is not readable", description)).WithContext("file", filePath)
	}
	file.Close()

	return nil
}

// loadTransactions parses the ledger and every bank file. Rows that fail to
// parse are reported on w and skipped unless strict is set.
func loadTransactions(ctx context.Context, in inputFiles, w io.Writer, log logger.Logger) ([]*models.LedgerTransaction, []*models.BankTransaction, error) {
	op := logger.NewOperationLogger("load_transactions", log).
		WithField("ledger_file", in.ledgerFile).
		WithField("bank_files", len(in.bankFiles))

	bar := newFileBar(len(in.bankFiles)+1, in.progress)
	defer bar.Finish()

	ledger, stats, err := parsers.NewLedgerParser(nil).ParseFile(ctx, in.ledgerFile)
	if err != nil {
		op.Failure(err, "Ledger parse failed")
		return nil, nil, err
	}
	if err := reportRowErrors(w, in.ledgerFile, stats, in.strict); err != nil {
		return nil, nil, err
	}
	bar.Add(1)

	var bank []*models.BankTransaction
	bankParser := parsers.NewBankParser(nil)
	for _, path := range in.bankFiles {
		var txs []*models.BankTransaction
		if in.isOFX(path) {
			op.Step("parse ofx " + path)
			txs, err = parseOFXFile(ctx, path, in.account)
		} else {
			op.Step("parse csv " + path)
			txs, stats, err = bankParser.ParseFile(ctx, path)
			if err == nil {
				err = reportRowErrors(w, path, stats, in.strict)
			}
		}
		if err != nil {
			op.Failure(err, "Bank parse failed")
			return nil, nil, err
		}
		bank = append(bank, txs...)
		bar.Add(1)
	}

	op.WithField("ledger", len(ledger)).WithField("bank", len(bank)).Success("Transactions loaded")
	return ledger, bank, nil
}

func parseOFXFile(ctx context.Context, path, account string) ([]*models.BankTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "cannot open OFX file").
			WithContext("file", path)
	}
	defer f.Close()
	return parsers.ParseOFX(ctx, f, account)
}

func reportRowErrors(w io.Writer, source string, stats *parsers.ParseStats, strict bool) error {
	if stats == nil || !stats.HasErrors() {
		return nil
	}
	errs := make([]error, len(stats.Errors))
	for i, e := range stats.Errors {
		errs[i] = e
	}
	fmt.Fprintf(w, "%s: %s\n%s\n", filepath.Base(source), stats.String(), FormatValidationErrors(errs))
	if strict {
		return errors.New(errors.CategoryParse, errors.CodeInvalidFormat,
			fmt.Sprintf("%d invalid rows in %s", stats.ErrorCount, source)).
			WithContext("file", source).
			WithSuggestion("fix the rows above or run without --strict to skip them")
	}
	return nil
}

// newStore seeds a store with the configured suggester and an audit recorder
// stamped with the configured user.
func newStore(ctx context.Context, ledger []*models.LedgerTransaction, bank []*models.BankTransaction, log logger.Logger) (*store.Store, error) {
	suggester, name, err := appConfig.NewSuggester(ctx, log)
	if err != nil {
		return nil, err
	}
	log.WithField("suggester", name).Debug("Matching collaborator configured")

	return store.New(ledger, bank, store.Options{
		Suggester: suggester,
		Matcher:   appConfig.Matcher,
		Audit:     audit.NewRecorder(audit.WithUser(appConfig.User)),
		Logger:    log,
	})
}

func newFileBar(total int, show bool) *progressbar.ProgressBar {
	if !show {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("Loading files"),
		progressbar.OptionClearOnFinish(),
	)
}
