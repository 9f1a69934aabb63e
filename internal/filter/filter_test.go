package filter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"treasury-reconciler/internal/models"
)

type stubRefs struct {
	ledger map[string]bool
	bank   map[string]bool
}

func (s stubRefs) ReferencesLedger(id string) bool { return s.ledger[id] }
func (s stubRefs) ReferencesBank(id string) bool   { return s.bank[id] }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ledgerRows() []*models.LedgerTransaction {
	reconciled := &models.LedgerTransaction{ID: "C3", Date: models.MustParseDate("2024-04-03"), PaymentType: "WR", Amount: decimal.RequireFromString("75.50"), FundCode: "G2026", LineNumber: "SA11AI"}
	reconciled.Reconcile()
	return []*models.LedgerTransaction{
		{ID: "C1", Date: models.MustParseDate("2024-04-01"), PaymentType: "CH", Amount: decimal.RequireFromString("250.00"), FundCode: "P2026", AccountCode: "P2026", LineNumber: "SA11AI"},
		{ID: "C2", Date: models.MustParseDate("2024-04-02"), PaymentType: "CC", Amount: decimal.RequireFromString("-40.00"), FundCode: "P2026", LineNumber: "SB17"},
		reconciled,
		{ID: "C4", Date: models.MustParseDate("2024-04-05"), PaymentType: "CH", Amount: decimal.RequireFromString("1000"), AccountCode: "G2026"},
	}
}

func bankRows() []*models.BankTransaction {
	fee := &models.BankTransaction{ID: "B3", Date: models.MustParseDate("2024-04-04"), Description: "MONTHLY SERVICE FEE", Amount: decimal.RequireFromString("-15.00")}
	fee.MarkNrit()
	return []*models.BankTransaction{
		{ID: "B1", Date: models.MustParseDate("2024-04-01"), Description: "DEPOSIT CHECK 1042", Amount: decimal.RequireFromString("250.00"), AccountCode: "P2026"},
		{ID: "B2", Date: models.MustParseDate("2024-04-02"), Description: "WinRed payout", Amount: decimal.RequireFromString("75.50")},
		fee,
		{ID: "B4", Date: models.MustParseDate("2024-04-06"), Description: "Card purchase OFFICE", Amount: decimal.RequireFromString("-40.00"), AccountCode: "G2026"},
	}
}

func ids[T models.Transaction](txs []T) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.GetID())
	}
	return out
}

func TestLedgerFilters(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{"default hides reconciled", DefaultSpec(), []string{"C1", "C2", "C4"}},
		{"all status", Spec{Status: StatusAll}, []string{"C1", "C2", "C3", "C4"}},
		{"search payment type case-insensitive", Spec{Status: StatusAll, SearchText: "ch"}, []string{"C1", "C4"}},
		{"search amount", Spec{Status: StatusAll, SearchText: "75.5"}, []string{"C3"}},
		{"search date", Spec{Status: StatusAll, SearchText: "04-02"}, []string{"C2"}},
		{"date range inclusive", Spec{Status: StatusAll, DateRange: DateRange{Start: models.MustParseDate("2024-04-02"), End: models.MustParseDate("2024-04-03")}}, []string{"C2", "C3"}},
		{"open end date", Spec{Status: StatusAll, DateRange: DateRange{Start: models.MustParseDate("2024-04-03")}}, []string{"C3", "C4"}},
		{"amount range inclusive", Spec{Status: StatusAll, AmountRange: AmountRange{Min: dec("-40"), Max: dec("250")}}, []string{"C1", "C2", "C3"}},
		{"amount min only", Spec{Status: StatusAll, AmountRange: AmountRange{Min: dec("250.00")}}, []string{"C1", "C4"}},
		{"fund code keeps blank rows", Spec{Status: StatusAll, FundCode: Only("G2026")}, []string{"C3", "C4"}},
		{"payment type membership", Spec{Status: StatusAll, PaymentType: Only("CC", "WR")}, []string{"C2", "C3"}},
		{"account code keeps blank rows", Spec{Status: StatusAll, AccountCode: Only("P2026")}, []string{"C1", "C2", "C3"}},
		{"line number", Spec{Status: StatusAll, LineNumber: Only("SB17")}, []string{"C2", "C4"}},
		{"All sentinel inside set", Spec{Status: StatusAll, PaymentType: Only("CC", AllValue)}, []string{"C1", "C2", "C3", "C4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(ledgerRows(), tt.spec, models.SideLedger, nil)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestBankFilters(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{"default hides NRIT rows", DefaultSpec(), []string{"B1", "B2", "B4"}},
		{"credit excludes negatives", Spec{Status: StatusAll, FundCode: Only(BankCredit)}, []string{"B1", "B2"}},
		{"debit excludes non-negatives", Spec{Status: StatusAll, FundCode: Only(BankDebit)}, []string{"B3", "B4"}},
		{"payment type is substring of description", Spec{Status: StatusAll, PaymentType: Only("winred")}, []string{"B2"}},
		{"payment type any of", Spec{Status: StatusAll, PaymentType: Only("FEE", "check")}, []string{"B1", "B3"}},
		{"search description", Spec{Status: StatusAll, SearchText: "office"}, []string{"B4"}},
		{"line number ignored for bank", Spec{Status: StatusAll, LineNumber: Only("SA11AI")}, []string{"B1", "B2", "B3", "B4"}},
		{"account code keeps blank rows", Spec{Status: StatusAll, AccountCode: Only("G2026")}, []string{"B2", "B3", "B4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(bankRows(), tt.spec, models.SideBank, nil)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestReconciledRowVisibleWhileSuggested(t *testing.T) {
	refs := stubRefs{ledger: map[string]bool{"C3": true}, bank: map[string]bool{"B3": true}}

	assert.Equal(t, []string{"C1", "C2", "C3", "C4"}, ids(Apply(ledgerRows(), DefaultSpec(), models.SideLedger, refs)))
	assert.Equal(t, []string{"B1", "B2", "B3", "B4"}, ids(Apply(bankRows(), DefaultSpec(), models.SideBank, refs)))

	// a reference on the other side does not count
	crossed := stubRefs{bank: map[string]bool{"C3": true}}
	assert.NotContains(t, ids(Apply(ledgerRows(), DefaultSpec(), models.SideLedger, crossed)), "C3")
}

func TestApplyIsIdempotent(t *testing.T) {
	specs := []Spec{
		DefaultSpec(),
		{Status: StatusAll, SearchText: "0"},
		{Status: StatusUnreconciled, FundCode: Only("P2026"), AmountRange: AmountRange{Max: dec("100")}},
		{Status: StatusAll, PaymentType: Only("CH"), DateRange: DateRange{End: models.MustParseDate("2024-04-04")}},
	}

	for _, spec := range specs {
		once := Apply(ledgerRows(), spec, models.SideLedger, nil)
		assert.Equal(t, ids(once), ids(Apply(once, spec, models.SideLedger, nil)))

		onceBank := Apply(bankRows(), spec, models.SideBank, nil)
		assert.Equal(t, ids(onceBank), ids(Apply(onceBank, spec, models.SideBank, nil)))
	}
}

func TestSelection(t *testing.T) {
	assert.True(t, All().IsAll())
	assert.True(t, Only().IsAll())
	assert.True(t, Selection{}.Contains("anything"))

	sel := Only("b", "a")
	assert.False(t, sel.IsAll())
	assert.True(t, sel.Contains("a"))
	assert.False(t, sel.Contains("c"))
	assert.Equal(t, []string{"a", "b"}, sel.Values())
}
