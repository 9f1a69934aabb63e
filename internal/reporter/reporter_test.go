package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/store"
	"treasury-reconciler/pkg/logger"
)

func createSampleSnapshot(t *testing.T) *store.Snapshot {
	t.Helper()
	ledger := []*models.LedgerTransaction{
		{ID: "C1", Date: models.MustParseDate("2024-04-01"), MoneyType: models.MoneyTypeContribution, PaymentType: "CH",
			Amount: decimal.RequireFromString("250"), Group: "G1", FundCode: "P2026", LineNumber: "SA11AI"},
		{ID: "C2", Date: models.MustParseDate("2024-04-05"), MoneyType: models.MoneyTypeDisbursement, PaymentType: "EFT",
			Amount: decimal.RequireFromString("-80.10"), Group: "G2", FundCode: "G2026", LineNumber: "SB23"},
	}
	bank := []*models.BankTransaction{
		{ID: "B1", Date: models.MustParseDate("2024-04-01"), Description: "DEPOSIT", Amount: decimal.RequireFromString("250")},
		{ID: "B2", Date: models.MustParseDate("2024-04-03"), Description: "INTEREST, MONTHLY", Amount: decimal.RequireFromString("1.25")},
		{ID: "B3", Date: models.MustParseDate("2024-04-06"), Description: "VENDOR", Amount: decimal.RequireFromString("-80.10")},
	}
	st, err := store.New(ledger, bank, store.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	st.ApplyReconciliation(store.ReconcileIDs{LedgerIDs: []string{"C1"}, BankIDs: []string{"B1"}})
	require.NoError(t, st.MarkNrit("B2"))
	return st.Snapshot()
}

func TestNewReportGenerator(t *testing.T) {
	rg, err := NewReportGenerator(nil)
	require.NoError(t, err)
	assert.Equal(t, FormatConsole, rg.GetConfiguration().Format)

	tests := []struct {
		name   string
		modify func(c *ReportConfig)
	}{
		{"bad format", func(c *ReportConfig) { c.Format = "pdf" }},
		{"bad scope", func(c *ReportConfig) { c.Scope = "some" }},
		{"inverted dates", func(c *ReportConfig) {
			c.StartDate = models.MustParseDate("2024-05-01")
			c.EndDate = models.MustParseDate("2024-04-01")
		}},
		{"negative max items", func(c *ReportConfig) { c.MaxItems = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReportConfig()
			tt.modify(cfg)
			_, err := NewReportGenerator(cfg)
			assert.Error(t, err)
			assert.Error(t, rg.UpdateConfiguration(cfg))
		})
	}
	assert.Equal(t, FormatConsole, rg.GetConfiguration().Format, "rejected updates leave config alone")
}

func TestOutputFormatValidation(t *testing.T) {
	for _, f := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV, FormatXLSX} {
		assert.True(t, f.IsValid(), f)
	}
	assert.False(t, OutputFormat("yaml").IsValid())
}

func generate(t *testing.T, cfg *ReportConfig, snap *store.Snapshot) []byte {
	t.Helper()
	rg, err := NewReportGenerator(cfg)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, rg.GenerateReport(snap, &buf))
	return buf.Bytes()
}

func TestConsoleReport(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.UseColors = false
	cfg.IncludeAuditTrail = true
	out := string(generate(t, cfg, createSampleSnapshot(t)))

	for _, want := range []string{
		"RECONCILIATION REPORT",
		"=== SUMMARY ===",
		"1 of 2 reconciled (50.0%)",
		"2 of 3 reconciled, 1 NRIT",
		"=== FUND BREAKDOWN ===",
		"=== FEC LINE BREAKDOWN ===",
		"=== LEDGER TRANSACTIONS (2) ===",
		"=== BANK TRANSACTIONS (3) ===",
		"NRIT",
		"=== AUDIT TRAIL ===",
		"Reconciled 2 transactions",
	} {
		assert.Contains(t, out, want)
	}
}

func TestConsoleReportMaxItems(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.UseColors = false
	cfg.MaxItems = 1
	out := string(generate(t, cfg, createSampleSnapshot(t)))
	assert.Contains(t, out, "... 1 more")
	assert.Contains(t, out, "... 2 more")
}

func TestJSONReport(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Format = FormatJSON
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(generate(t, cfg, createSampleSnapshot(t)), &out))

	assert.Contains(t, out, "crimsonTransactions")
	assert.Contains(t, out, "stats")
	assert.Contains(t, out, "fecLineResults")
	assert.NotContains(t, out, "auditLog")

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(out["stats"], &stats))
	assert.EqualValues(t, 1, stats["nritCount"])
}

func TestCSVReport(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Format = FormatCSV
	records, err := csv.NewReader(bytes.NewReader(generate(t, cfg, createSampleSnapshot(t)))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)

	assert.Equal(t, csvHeaders, records[0])
	assert.Equal(t, []string{"C1", "2024-04-01", "Crimson", "CH", "250.00", "Yes", "No", "P2026", ""}, records[1])
	assert.Equal(t, []string{"B2", "2024-04-03", "Bank", "INTEREST, MONTHLY", "1.25", "Yes", "Yes", "", ""}, records[4])
}

func TestScopeFiltering(t *testing.T) {
	snap := createSampleSnapshot(t)
	tests := []struct {
		name    string
		scope   Scope
		start   string
		end     string
		wantIDs []string
	}{
		{"all", ScopeAll, "", "", []string{"C1", "C2", "B1", "B2", "B3"}},
		{"reconciled", ScopeReconciled, "", "", []string{"C1", "B1", "B2"}},
		{"unreconciled", ScopeUnreconciled, "", "", []string{"C2", "B3"}},
		{"nrit", ScopeNrit, "", "", []string{"B2"}},
		{"date range", ScopeAll, "2024-04-02", "2024-04-05", []string{"C2", "B2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReportConfig()
			cfg.Format = FormatCSV
			cfg.Scope = tt.scope
			if tt.start != "" {
				cfg.StartDate = models.MustParseDate(tt.start)
				cfg.EndDate = models.MustParseDate(tt.end)
			}
			records, err := csv.NewReader(bytes.NewReader(generate(t, cfg, snap))).ReadAll()
			require.NoError(t, err)
			var ids []string
			for _, r := range records[1:] {
				ids = append(ids, r[0])
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestXLSXReport(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Format = FormatXLSX
	data := generate(t, cfg, createSampleSnapshot(t))

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Ledger", "Bank", "Summary", "Audit"}, f.GetSheetList())

	rows, err := f.GetRows("Bank")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "NRIT", rows[0][6])
	assert.Equal(t, "B2", rows[2][0])
	assert.Equal(t, "Yes", rows[2][6])

	audit, err := f.GetRows("Audit")
	require.NoError(t, err)
	assert.Len(t, audit, 3)
}

func TestEmptySnapshot(t *testing.T) {
	st, err := store.New(nil, nil, store.Options{Logger: logger.Discard()})
	require.NoError(t, err)
	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV, FormatXLSX} {
		t.Run(string(format), func(t *testing.T) {
			cfg := DefaultReportConfig()
			cfg.Format = format
			assert.NotEmpty(t, generate(t, cfg, st.Snapshot()))
		})
	}

	rg, err := NewReportGenerator(nil)
	require.NoError(t, err)
	assert.Error(t, rg.GenerateReport(nil, &bytes.Buffer{}))
}

func TestSafeReportGenerator(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Format = FormatCSV
	srg, err := NewSafeReportGenerator(cfg, logger.Discard())
	require.NoError(t, err)
	snap := createSampleSnapshot(t)

	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, srg.WriteReport(snap, path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ID,Date,Type"))

	var buf bytes.Buffer
	require.NoError(t, srg.WriteReport(snap, "", &buf))
	assert.Equal(t, data, buf.Bytes())

	assert.Error(t, srg.WriteReport(nil, path, nil))
	assert.Error(t, srg.WriteReport(snap, "", nil))
}

func TestBackupPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "report_backup.xlsx"), backupPath(filepath.Join("out", "report.xlsx")))
}
