// Package summary derives reconciliation statistics from the current
// transaction collections. Everything here is a pure function of its inputs.
package summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// DiscrepancyThreshold is the absolute difference above which the
// unreconciled sides are considered out of balance.
var DiscrepancyThreshold = decimal.RequireFromString("0.01")

// Unassigned labels rows with no fund code or line number
const Unassigned = "Unassigned"

// Stats is the aggregate view over both sides
type Stats struct {
	TotalLedgerTransactions      int             `json:"totalCrimsonTransactions"`
	ReconciledLedgerTransactions int             `json:"reconciledCrimsonTransactions"`
	TotalBankTransactions        int             `json:"totalBankTransactions"`
	ReconciledBankTransactions   int             `json:"reconciledBankTransactions"`
	TotalLedgerAmount            decimal.Decimal `json:"totalCrimsonAmount"`
	TotalBankAmount              decimal.Decimal `json:"totalBankAmount"`
	UnreconciledLedgerAmount     decimal.Decimal `json:"unreconciledCrimsonAmount"`
	UnreconciledBankAmount       decimal.Decimal `json:"unreconciledBankAmount"`
	// ReconciliationProgress is the reconciled share of ledger rows, 0..100
	ReconciliationProgress float64         `json:"reconciliationProgress"`
	Discrepancy            decimal.Decimal `json:"discrepancy"`
	HasDiscrepancy         bool            `json:"hasDiscrepancy"`
	AISuggestionsCount     int             `json:"aiSuggestionsCount"`
	NritCount              int             `json:"nritCount"`
}

// Compute builds Stats for the given collections and live suggestions
func Compute(ledger []*models.LedgerTransaction, bank []*models.BankTransaction, suggestions []models.MatchedPair) Stats {
	s := Stats{
		TotalLedgerTransactions: len(ledger),
		TotalBankTransactions:   len(bank),
		AISuggestionsCount:      len(suggestions),
	}

	for _, tx := range ledger {
		s.TotalLedgerAmount = s.TotalLedgerAmount.Add(tx.Amount)
		if tx.IsReconciled() {
			s.ReconciledLedgerTransactions++
		} else {
			s.UnreconciledLedgerAmount = s.UnreconciledLedgerAmount.Add(tx.Amount)
		}
	}

	for _, tx := range bank {
		s.TotalBankAmount = s.TotalBankAmount.Add(tx.Amount)
		if tx.IsNrit() {
			s.NritCount++
		}
		if tx.IsReconciled() {
			s.ReconciledBankTransactions++
		} else {
			s.UnreconciledBankAmount = s.UnreconciledBankAmount.Add(tx.Amount)
		}
	}

	if s.TotalLedgerTransactions > 0 {
		s.ReconciliationProgress = float64(s.ReconciledLedgerTransactions) / float64(s.TotalLedgerTransactions) * 100
	}

	s.Discrepancy = s.UnreconciledLedgerAmount.Sub(s.UnreconciledBankAmount)
	s.HasDiscrepancy = s.Discrepancy.Abs().GreaterThan(DiscrepancyThreshold)
	return s
}

// Breakdown is the reconciliation state of one fund code or line number
type Breakdown struct {
	Key                string          `json:"key"`
	Total              int             `json:"total"`
	Reconciled         int             `json:"reconciled"`
	Unreconciled       int             `json:"unreconciled"`
	ReconciledAmount   decimal.Decimal `json:"reconciledAmount"`
	UnreconciledAmount decimal.Decimal `json:"unreconciledAmount"`
}

// ByFund groups ledger rows by fund code
func ByFund(ledger []*models.LedgerTransaction) []Breakdown {
	return breakdown(ledger, func(tx *models.LedgerTransaction) string { return tx.FundCode })
}

// ByLineNumber groups ledger rows by report line number
func ByLineNumber(ledger []*models.LedgerTransaction) []Breakdown {
	return breakdown(ledger, func(tx *models.LedgerTransaction) string { return tx.LineNumber })
}

func breakdown(ledger []*models.LedgerTransaction, key func(*models.LedgerTransaction) string) []Breakdown {
	groups := make(map[string]*Breakdown)
	for _, tx := range ledger {
		k := key(tx)
		if k == "" {
			k = Unassigned
		}
		b, ok := groups[k]
		if !ok {
			b = &Breakdown{Key: k}
			groups[k] = b
		}
		b.Total++
		if tx.IsReconciled() {
			b.Reconciled++
			b.ReconciledAmount = b.ReconciledAmount.Add(tx.Amount)
		} else {
			b.Unreconciled++
			b.UnreconciledAmount = b.UnreconciledAmount.Add(tx.Amount)
		}
	}

	out := make([]Breakdown, 0, len(groups))
	for _, b := range groups {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		// keep the unassigned bucket last
		if (out[i].Key == Unassigned) != (out[j].Key == Unassigned) {
			return out[j].Key == Unassigned
		}
		return out[i].Key < out[j].Key
	})
	return out
}
