// Package validation inspects loaded ledger and bank rows for data quality
// problems that do not stop an import but deserve a treasurer's attention.
package validation

import (
	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// Severity ranks an issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// order sorts errors first
func (s Severity) order() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Category groups issues by what is wrong
type Category string

const (
	CategoryAmount    Category = "amount"
	CategoryDate      Category = "date"
	CategoryDuplicate Category = "duplicate"
	CategoryMissing   Category = "missing"
	CategoryFormat    Category = "format"
)

// Issue is one finding. TransactionID is empty for issues about the data set
// as a whole.
type Issue struct {
	ID            string   `json:"id"`
	Severity      Severity `json:"severity"`
	Category      Category `json:"category"`
	Message       string   `json:"message"`
	TransactionID string   `json:"transactionId,omitempty"`
	Suggestion    string   `json:"suggestion,omitempty"`
}

// Options tunes the checks
type Options struct {
	// Today is the reference date for the future and stale checks
	Today models.Date

	// LargeAmountFactor flags rows above this multiple of the average
	// absolute amount.
	LargeAmountFactor decimal.Decimal

	StaleAfterDays   int
	BalanceTolerance decimal.Decimal
}

// DefaultOptions checks against the current date
func DefaultOptions() Options {
	return Options{
		Today:             models.Today(),
		LargeAmountFactor: decimal.NewFromInt(10),
		StaleAfterDays:    30,
		BalanceTolerance:  decimal.New(1, -2),
	}
}

// Report holds the issues sorted by severity plus per-severity counts
type Report struct {
	Issues   []Issue `json:"issues"`
	Errors   int     `json:"errors"`
	Warnings int     `json:"warnings"`
	Infos    int     `json:"infos"`
}

// HasErrors reports whether any error-severity issue was found
func (r *Report) HasErrors() bool { return r.Errors > 0 }

// BySeverity returns the issues of one severity in report order
func (r *Report) BySeverity(s Severity) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == s {
			out = append(out, is)
		}
	}
	return out
}
