// Package filter evaluates a multi-field filter specification against ledger
// and bank transactions. Every function here is pure.
package filter

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// Status selects which reconciliation states are visible
type Status string

const (
	StatusAll          Status = "All"
	StatusUnreconciled Status = "Unreconciled"
)

// AllValue is the sentinel that disables a category filter
const AllValue = "All"

// Bank rows carry no fund code, so the fund selection is read as a sign filter.
const (
	BankCredit = "Credit"
	BankDebit  = "Debit"
)

// Selection is either the All sentinel or a set of accepted values. The zero
// value, like an empty set, accepts everything.
type Selection struct {
	values map[string]struct{}
}

// All returns a selection that accepts every value
func All() Selection {
	return Selection{}
}

// Only returns a selection restricted to values. Passing "All" among the
// values, or no values at all, yields the All selection.
func Only(values ...string) Selection {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == AllValue {
			return All()
		}
		set[v] = struct{}{}
	}
	if len(set) == 0 {
		return All()
	}
	return Selection{values: set}
}

// IsAll reports whether the selection accepts everything
func (s Selection) IsAll() bool {
	return len(s.values) == 0
}

// Contains reports whether v was selected. An All selection contains everything.
func (s Selection) Contains(v string) bool {
	if s.IsAll() {
		return true
	}
	_, ok := s.values[v]
	return ok
}

// Values returns the selected values in sorted order, or nil for All
func (s Selection) Values() []string {
	if s.IsAll() {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DateRange bounds are inclusive; a zero bound is unbounded on that side
type DateRange struct {
	Start models.Date `json:"start"`
	End   models.Date `json:"end"`
}

// AmountRange bounds are inclusive on the signed amount; nil is unbounded
type AmountRange struct {
	Min *decimal.Decimal `json:"min"`
	Max *decimal.Decimal `json:"max"`
}

// Spec is the full filter specification for one side of the workspace
type Spec struct {
	Status      Status
	SearchText  string
	DateRange   DateRange
	AmountRange AmountRange
	FundCode    Selection
	AccountCode Selection
	PaymentType Selection
	LineNumber  Selection
}

// DefaultSpec hides reconciled rows and applies no other restriction
func DefaultSpec() Spec {
	return Spec{Status: StatusUnreconciled}
}

// SuggestionRefs answers whether a transaction is part of a live suggestion
type SuggestionRefs interface {
	ReferencesLedger(id string) bool
	ReferencesBank(id string) bool
}

// Matches reports whether tx, read as a row of the given side, passes spec.
// Checks run in a fixed order and stop at the first failure.
func Matches(tx models.Transaction, spec Spec, side models.Side, refs SuggestionRefs) bool {
	return matchesStatus(tx, spec, side, refs) &&
		matchesSearch(tx, spec) &&
		matchesDate(tx, spec) &&
		matchesAmount(tx, spec) &&
		matchesCategories(tx, spec) &&
		matchesLineNumber(tx, spec, side)
}

// Apply returns the transactions that pass spec, preserving order
func Apply[T models.Transaction](txs []T, spec Spec, side models.Side, refs SuggestionRefs) []T {
	out := make([]T, 0, len(txs))
	for _, tx := range txs {
		if Matches(tx, spec, side, refs) {
			out = append(out, tx)
		}
	}
	return out
}

func matchesStatus(tx models.Transaction, spec Spec, side models.Side, refs SuggestionRefs) bool {
	if spec.Status != StatusUnreconciled || !tx.IsReconciled() {
		return true
	}
	// a reconciled row stays visible while a pending suggestion still points at it
	if refs == nil {
		return false
	}
	if side == models.SideLedger {
		return refs.ReferencesLedger(tx.GetID())
	}
	return refs.ReferencesBank(tx.GetID())
}

func matchesSearch(tx models.Transaction, spec Spec) bool {
	if spec.SearchText == "" {
		return true
	}
	needle := strings.ToLower(spec.SearchText)

	var label string
	switch t := tx.(type) {
	case *models.LedgerTransaction:
		label = t.PaymentType
	case *models.BankTransaction:
		label = t.Description
	}

	return strings.Contains(strings.ToLower(label), needle) ||
		strings.Contains(tx.GetAmount().String(), needle) ||
		strings.Contains(tx.GetDate().String(), needle)
}

func matchesDate(tx models.Transaction, spec Spec) bool {
	date := tx.GetDate()
	if !spec.DateRange.Start.IsZero() && date.Before(spec.DateRange.Start) {
		return false
	}
	if !spec.DateRange.End.IsZero() && date.After(spec.DateRange.End) {
		return false
	}
	return true
}

func matchesAmount(tx models.Transaction, spec Spec) bool {
	amount := tx.GetAmount()
	if spec.AmountRange.Min != nil && amount.LessThan(*spec.AmountRange.Min) {
		return false
	}
	if spec.AmountRange.Max != nil && amount.GreaterThan(*spec.AmountRange.Max) {
		return false
	}
	return true
}

// memberOrBlank accepts rows with no value for the field; source data often
// leaves optional codes empty.
func memberOrBlank(sel Selection, value string) bool {
	return value == "" || sel.Contains(value)
}

func matchesCategories(tx models.Transaction, spec Spec) bool {
	switch t := tx.(type) {
	case *models.LedgerTransaction:
		return memberOrBlank(spec.FundCode, t.FundCode) &&
			spec.PaymentType.Contains(t.PaymentType) &&
			memberOrBlank(spec.AccountCode, t.AccountCode)
	case *models.BankTransaction:
		return matchesBankSign(t, spec.FundCode) &&
			matchesDescription(t, spec.PaymentType) &&
			memberOrBlank(spec.AccountCode, t.AccountCode)
	}
	return true
}

func matchesBankSign(t *models.BankTransaction, sel Selection) bool {
	if sel.IsAll() {
		return true
	}
	if sel.Contains(BankCredit) && t.Amount.IsNegative() {
		return false
	}
	if sel.Contains(BankDebit) && !t.Amount.IsNegative() {
		return false
	}
	return true
}

func matchesDescription(t *models.BankTransaction, sel Selection) bool {
	if sel.IsAll() {
		return true
	}
	description := strings.ToLower(t.Description)
	for _, code := range sel.Values() {
		if strings.Contains(description, strings.ToLower(code)) {
			return true
		}
	}
	return false
}

func matchesLineNumber(tx models.Transaction, spec Spec, side models.Side) bool {
	if side != models.SideLedger {
		return true
	}
	t, ok := tx.(*models.LedgerTransaction)
	if !ok {
		return true
	}
	return memberOrBlank(spec.LineNumber, t.LineNumber)
}
