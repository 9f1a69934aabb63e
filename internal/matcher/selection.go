package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// Selection is the pair of id sets a user has picked for a manual match
type Selection struct {
	ledger map[string]struct{}
	bank   map[string]struct{}
}

// NewSelection returns an empty selection
func NewSelection() *Selection {
	return &Selection{
		ledger: make(map[string]struct{}),
		bank:   make(map[string]struct{}),
	}
}

func (s *Selection) set(side models.Side) map[string]struct{} {
	if side == models.SideLedger {
		return s.ledger
	}
	return s.bank
}

// Select adds id to the given side
func (s *Selection) Select(side models.Side, id string) {
	s.set(side)[id] = struct{}{}
}

// Deselect removes id from the given side
func (s *Selection) Deselect(side models.Side, id string) {
	delete(s.set(side), id)
}

// Toggle flips membership of id and reports whether it is now selected
func (s *Selection) Toggle(side models.Side, id string) bool {
	set := s.set(side)
	if _, ok := set[id]; ok {
		delete(set, id)
		return false
	}
	set[id] = struct{}{}
	return true
}

func (s *Selection) SelectLedger(id string)   { s.Select(models.SideLedger, id) }
func (s *Selection) SelectBank(id string)     { s.Select(models.SideBank, id) }
func (s *Selection) DeselectLedger(id string) { s.Deselect(models.SideLedger, id) }
func (s *Selection) DeselectBank(id string)   { s.Deselect(models.SideBank, id) }

// IsSelected reports whether id is selected on side
func (s *Selection) IsSelected(side models.Side, id string) bool {
	_, ok := s.set(side)[id]
	return ok
}

// Clear empties both sides
func (s *Selection) Clear() {
	s.ledger = make(map[string]struct{})
	s.bank = make(map[string]struct{})
}

// IsEmpty reports whether nothing is selected on either side
func (s *Selection) IsEmpty() bool {
	return len(s.ledger) == 0 && len(s.bank) == 0
}

// LedgerIDs returns the selected ledger ids, sorted
func (s *Selection) LedgerIDs() []string { return sortedKeys(s.ledger) }

// BankIDs returns the selected bank ids, sorted
func (s *Selection) BankIDs() []string { return sortedKeys(s.bank) }

// Retain drops ids that keep returns false for. The store uses it to forget
// ids that no longer exist after a split.
func (s *Selection) Retain(side models.Side, keep func(id string) bool) {
	set := s.set(side)
	for id := range set {
		if !keep(id) {
			delete(set, id)
		}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SelectionTotals are the per-side sums of a selection
type SelectionTotals struct {
	LedgerTotal  decimal.Decimal `json:"ledgerTotal"`
	BankTotal    decimal.Decimal `json:"bankTotal"`
	Difference   decimal.Decimal `json:"difference"`
	LedgerCount  int             `json:"ledgerCount"`
	BankCount    int             `json:"bankCount"`
	CanReconcile bool            `json:"canReconcile"`
}

// Totals sums the selected transactions on each side. A manual match is
// possible only when the difference is exactly zero and the ledger side is
// not zero. No tolerance is applied.
func Totals(sel *Selection, ledger []*models.LedgerTransaction, bank []*models.BankTransaction) SelectionTotals {
	t := SelectionTotals{LedgerTotal: decimal.Zero, BankTotal: decimal.Zero}

	for _, tx := range ledger {
		if sel.IsSelected(models.SideLedger, tx.ID) {
			t.LedgerTotal = t.LedgerTotal.Add(tx.Amount)
			t.LedgerCount++
		}
	}
	for _, tx := range bank {
		if sel.IsSelected(models.SideBank, tx.ID) {
			t.BankTotal = t.BankTotal.Add(tx.Amount)
			t.BankCount++
		}
	}

	t.Difference = t.LedgerTotal.Sub(t.BankTotal)
	t.CanReconcile = t.Difference.IsZero() && !t.LedgerTotal.IsZero()
	return t
}
