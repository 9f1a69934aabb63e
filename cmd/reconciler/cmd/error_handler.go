package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err for a human and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	var pathErr *fs.PathError
	if stderrors.As(err, &pathErr) {
		fmt.Fprint(h.out, FormatFileError(pathErr.Path, pathErr.Err))
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more details\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV file has a header row with id, date and amount columns
• Check dates use YYYY-MM-DD or MM/DD/YYYY
• Ensure the file uses UTF-8 encoding
• Drop --strict to skip bad rows instead of failing`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Verify date formats use YYYY-MM-DD
• Ensure amounts are decimal numbers
• Selected ledger and bank totals must agree to reconcile`

	case errors.CategoryState:
		return `State error help:
• Reconciled rows must be unreconciled before they can change
• Certified and archived sessions are read-only
• Only one suggestion request can run at a time`

	case errors.CategoryCollaborator:
		return `Matching service help:
• Check RECONCILER_AI_API_KEY and network access
• Unset RECONCILER_AI_API_KEY to use the offline heuristic matcher
• Use --no-suggest to produce a report without suggestions`

	case errors.CategoryNotFound:
		return `Not found help:
• Check the id or path is spelled correctly
• Use 'reconciler session list' to see saved sessions`

	case errors.CategoryPersistence:
		return `Storage error help:
• Check the --db path is writable
• For redis storage, check storage.redis_url and that the server is reachable`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Check RECONCILER_* environment variables`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help`
	}
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

// FormatValidationErrors lists row errors, at most ten
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	if len(errs) == 1 {
		return fmt.Sprintf("Validation error: %v", errs[0])
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Found %d validation errors:", len(errs)))

	for i, err := range errs {
		lines = append(lines, fmt.Sprintf("  %d. %v", i+1, err))
		if i >= 9 && len(errs) > 10 {
			lines = append(lines, fmt.Sprintf("  ... and %d more errors", len(errs)-10))
			break
		}
	}

	return strings.Join(lines, "\n")
}

// FormatFileError describes a file failure and, for a missing file, lists
// similarly named files next to it.
func FormatFileError(filePath string, err error) string {
	baseName := filepath.Base(filePath)
	dir := filepath.Dir(filePath)

	var message strings.Builder
	fmt.Fprintf(&message, "Error with file '%s':\n", baseName)
	fmt.Fprintf(&message, "  Path: %s\n", filePath)
	fmt.Fprintf(&message, "  Error: %v\n", err)

	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		message.WriteString("  Suggestion: Check if the file exists in the specified location\n")

		if entries, dirErr := os.ReadDir(dir); dirErr == nil {
			prefix := strings.ToLower(baseName[:min(len(baseName), 3)])
			var similar []string
			for _, entry := range entries {
				if !entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), prefix) {
					similar = append(similar, entry.Name())
				}
			}
			if len(similar) > 0 {
				message.WriteString("  Similar files found:\n")
				for _, name := range similar[:min(len(similar), 3)] {
					fmt.Fprintf(&message, "    - %s\n", name)
				}
			}
		}
	case stderrors.Is(err, fs.ErrPermission):
		message.WriteString("  Suggestion: Check file permissions - you may need read access\n")
	}

	return message.String()
}
