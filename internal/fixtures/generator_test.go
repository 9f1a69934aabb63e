package fixtures

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-reconciler/internal/matcher"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/parsers"
	"treasury-reconciler/pkg/errors"
)

func parse(t *testing.T, ds *Dataset) ([]*models.LedgerTransaction, []*models.BankTransaction) {
	t.Helper()
	ledgerPath, bankPath, err := ds.WriteTo(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ledger, stats, err := parsers.NewLedgerParser(nil).ParseFile(ctx, ledgerPath)
	require.NoError(t, err)
	require.False(t, stats.HasErrors(), stats.String())
	bank, stats, err := parsers.NewBankParser(nil).ParseFile(ctx, bankPath)
	require.NoError(t, err)
	require.False(t, stats.HasErrors(), stats.String())
	return ledger, bank
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := DefaultGenerator(7).Generate(ScenarioMixed)
	require.NoError(t, err)
	b, err := DefaultGenerator(7).Generate(ScenarioMixed)
	require.NoError(t, err)
	assert.Equal(t, a.Ledger, b.Ledger)
	assert.Equal(t, a.Bank, b.Bank)

	c, err := DefaultGenerator(8).Generate(ScenarioMixed)
	require.NoError(t, err)
	assert.NotEqual(t, a.Ledger, c.Ledger)
}

func TestMatchedScenarioReconcilesWithHeuristic(t *testing.T) {
	g := DefaultGenerator(42)
	g.Count = 150
	ds, err := g.Generate(ScenarioMatched)
	require.NoError(t, err)

	ledger, bank := parse(t, ds)
	require.Len(t, ledger, 150)
	require.Len(t, bank, 150)

	pairs, err := matcher.NewHeuristicSuggester(nil).Suggest(context.Background(),
		models.LedgerRecords(ledger), models.BankRecords(bank))
	require.NoError(t, err)

	got := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		got[p.LedgerTransactionID] = p.BankTransactionIDs
	}
	assert.Empty(t, ds.Verify(got))
}

func TestDriftScenarioShiftsBankDates(t *testing.T) {
	ds, err := DefaultGenerator(3).Generate(ScenarioDrift)
	require.NoError(t, err)
	ledger, bank := parse(t, ds)

	bankByID := make(map[string]*models.BankTransaction, len(bank))
	for _, b := range bank {
		bankByID[b.ID] = b
	}
	for _, l := range ledger {
		b := bankByID[ds.Expected[l.ID][0]]
		require.NotNil(t, b)
		assert.True(t, b.Date.After(l.Date), "%s posts after %s", b.ID, l.ID)
		assert.False(t, b.Date.After(l.Date.AddDays(3)))
		assert.True(t, b.Amount.Equal(l.Amount))
	}
}

func TestBatchScenarioDepositsEqualGroupTotals(t *testing.T) {
	ds, err := DefaultGenerator(11).Generate(ScenarioBatch)
	require.NoError(t, err)
	ledger, bank := parse(t, ds)
	assert.GreaterOrEqual(t, len(ledger), 50)

	totals := make(map[string]decimal.Decimal)
	for _, l := range ledger {
		require.NotEmpty(t, l.Group)
		bid := ds.Expected[l.ID][0]
		totals[bid] = totals[bid].Add(l.Amount)
	}
	require.Len(t, bank, len(totals))
	for _, b := range bank {
		assert.True(t, b.Amount.Equal(totals[b.ID]), "deposit %s", b.ID)
	}
}

func TestMixedScenarioAccountsForEveryRow(t *testing.T) {
	ds, err := DefaultGenerator(5).Generate(ScenarioMixed)
	require.NoError(t, err)
	ledger, bank := parse(t, ds)

	assert.Equal(t, len(ledger), len(ds.Expected)+len(ds.Unmatched))
	counterparts := make(map[string]bool)
	for _, ids := range ds.Expected {
		for _, id := range ids {
			counterparts[id] = true
		}
	}
	assert.Equal(t, len(bank), len(counterparts)+len(ds.Nrit))
}

func TestVerifyReportsDifferences(t *testing.T) {
	ds := &Dataset{
		Expected:  map[string][]string{"L1": {"B1"}, "L2": {"B2", "B3"}},
		Unmatched: []string{"L9"},
	}
	assert.Empty(t, ds.Verify(map[string][]string{"L1": {"B1"}, "L2": {"B3", "B2"}}))

	diffs := ds.Verify(map[string][]string{"L2": {"B2"}, "L9": {"B7"}})
	require.Len(t, diffs, 3)
	assert.Equal(t, "L1", diffs[0].LedgerID)
	assert.Equal(t, "L2", diffs[1].LedgerID)
	assert.Equal(t, "L9", diffs[2].LedgerID)
	assert.Contains(t, diffs[2].String(), "B7")
}

func TestGeneratorValidation(t *testing.T) {
	g := DefaultGenerator(1)
	g.Count = 0
	_, err := g.Generate(ScenarioMatched)
	assert.True(t, errors.IsValidation(err))

	g = DefaultGenerator(1)
	g.MaxAmount = decimal.NewFromInt(1)
	assert.True(t, errors.IsValidation(g.Validate()))

	_, err = DefaultGenerator(1).Generate("chaos")
	assert.True(t, errors.IsValidation(err))

	_, err = ParseScenario("chaos")
	assert.True(t, errors.IsValidation(err))
	sc, err := ParseScenario("drift")
	require.NoError(t, err)
	assert.Equal(t, ScenarioDrift, sc)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, [][]string{{"id", "description"}, {"B1", "SMITH, JOHN"}}))
	assert.Equal(t, "id,description\nB1,\"SMITH, JOHN\"\n", buf.String())
}
