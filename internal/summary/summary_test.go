package summary

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-reconciler/internal/models"
)

func ledgerTx(id, amount, fund, line string, reconciled bool) *models.LedgerTransaction {
	tx := &models.LedgerTransaction{
		ID:         id,
		Date:       models.MustParseDate("2024-04-02"),
		MoneyType:  models.MoneyTypeContribution,
		Amount:     decimal.RequireFromString(amount),
		FundCode:   fund,
		LineNumber: line,
	}
	if reconciled {
		tx.Reconcile()
	}
	return tx
}

func bankTx(id, amount string) *models.BankTransaction {
	return &models.BankTransaction{ID: id, Date: models.MustParseDate("2024-04-02"), Amount: decimal.RequireFromString(amount)}
}

func TestCompute(t *testing.T) {
	ledger := []*models.LedgerTransaction{
		ledgerTx("C1", "500.00", "P2026", "11AI", true),
		ledgerTx("C2", "250.00", "P2026", "11AI", false),
		ledgerTx("C3", "-40.00", "G2026", "", false),
		ledgerTx("C4", "100.00", "", "17", false),
	}
	reconciled := bankTx("B1", "500.00")
	reconciled.Reconcile()
	nrit := bankTx("B2", "12.00")
	nrit.MarkNrit()
	bank := []*models.BankTransaction{reconciled, nrit, bankTx("B3", "250.00"), bankTx("B4", "-40.00")}

	s := Compute(ledger, bank, []models.MatchedPair{{LedgerTransactionID: "C2", BankTransactionIDs: []string{"B3"}, ConfidenceScore: 0.9}})

	assert.Equal(t, 4, s.TotalLedgerTransactions)
	assert.Equal(t, 1, s.ReconciledLedgerTransactions)
	assert.Equal(t, 4, s.TotalBankTransactions)
	assert.Equal(t, 2, s.ReconciledBankTransactions)
	assert.Equal(t, 1, s.NritCount)
	assert.Equal(t, 1, s.AISuggestionsCount)
	assert.Equal(t, "810", s.TotalLedgerAmount.String())
	assert.Equal(t, "310", s.UnreconciledLedgerAmount.String())
	assert.Equal(t, "210", s.UnreconciledBankAmount.String())
	assert.Equal(t, "100", s.Discrepancy.String())
	assert.True(t, s.HasDiscrepancy)
	assert.InDelta(t, 25.0, s.ReconciliationProgress, 1e-9)
}

func TestDiscrepancyBoundary(t *testing.T) {
	tests := []struct {
		name   string
		ledger string
		bank   string
		want   bool
	}{
		{"two cents", "1000.00", "999.98", true},
		{"half a cent", "1000.005", "1000.00", false},
		{"exactly one cent", "1000.01", "1000.00", false},
		{"one cent and a bit", "1000.0101", "1000.00", true},
		{"bank side heavier", "999.00", "1000.00", true},
		{"balanced", "1000.00", "1000.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(
				[]*models.LedgerTransaction{ledgerTx("C1", tt.ledger, "", "", false)},
				[]*models.BankTransaction{bankTx("B1", tt.bank)},
				nil,
			)
			assert.Equal(t, tt.want, s.HasDiscrepancy, "discrepancy %s", s.Discrepancy)
		})
	}
}

func TestComputeEmptyLedger(t *testing.T) {
	s := Compute(nil, []*models.BankTransaction{bankTx("B1", "10")}, nil)
	assert.Zero(t, s.ReconciliationProgress)
	assert.Equal(t, "-10", s.Discrepancy.String())
}

func TestBreakdowns(t *testing.T) {
	ledger := []*models.LedgerTransaction{
		ledgerTx("C1", "500", "P2026", "11AI", true),
		ledgerTx("C2", "250", "P2026", "11AI", false),
		ledgerTx("C3", "75", "", "17", false),
		ledgerTx("C4", "60", "G2026", "17", true),
	}

	funds := ByFund(ledger)
	require.Len(t, funds, 3)
	assert.Equal(t, []string{"G2026", "P2026", Unassigned}, []string{funds[0].Key, funds[1].Key, funds[2].Key})
	assert.Equal(t, 2, funds[1].Total)
	assert.Equal(t, 1, funds[1].Reconciled)
	assert.Equal(t, "500", funds[1].ReconciledAmount.String())
	assert.Equal(t, "250", funds[1].UnreconciledAmount.String())

	lines := ByLineNumber(ledger)
	require.Len(t, lines, 2)
	assert.Equal(t, "11AI", lines[0].Key)
	assert.Equal(t, "17", lines[1].Key)
	assert.Equal(t, 1, lines[1].Unreconciled)
}
