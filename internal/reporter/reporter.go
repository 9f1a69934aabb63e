// Package reporter renders reconciliation snapshots for people and tools.
//
// Supported output formats:
//   - Console: styled summary and open items for terminal display
//   - JSON: the full snapshot for programmatic consumption
//   - CSV: one row per transaction, ledger rows first
//   - XLSX: Ledger, Bank, Summary and Audit sheets
//
// The reporter only reads a store.Snapshot; it never changes state.
//
// Example usage:
//
//	config := reporter.DefaultReportConfig()
//	config.Format = reporter.FormatXLSX
//	rg, err := reporter.NewReportGenerator(config)
//	err = rg.GenerateReport(st.Snapshot(), file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/store"
	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/errors"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// Scope limits which transactions are exported
type Scope string

const (
	ScopeAll          Scope = "all"
	ScopeReconciled   Scope = "reconciled"
	ScopeUnreconciled Scope = "unreconciled"
	ScopeNrit         Scope = "nrit"
)

// IsValid checks if the scope is known
func (s Scope) IsValid() bool {
	switch s {
	case ScopeAll, ScopeReconciled, ScopeUnreconciled, ScopeNrit:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`
	Scope  Scope        `json:"scope"`

	// Inclusive date bounds; zero means open
	StartDate models.Date `json:"start_date"`
	EndDate   models.Date `json:"end_date"`

	IncludeAuditTrail bool `json:"include_audit_trail"`
	IncludeSummary    bool `json:"include_summary"`
	IncludeBreakdowns bool `json:"include_breakdowns"`

	// Console options
	UseColors bool `json:"use_colors"`
	MaxItems  int  `json:"max_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		Scope:             ScopeAll,
		IncludeAuditTrail: false,
		IncludeSummary:    true,
		IncludeBreakdowns: true,
		UseColors:         true,
		MaxItems:          25,
		CSVDelimiter:      ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if !c.Scope.IsValid() {
		return fmt.Errorf("invalid scope: %s", c.Scope)
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s is before start date %s", c.EndDate, c.StartDate)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
	styles styles
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError("report", config.Format, err)
	}
	return &ReportGenerator{config: config, styles: newStyles(config.UseColors)}, nil
}

// GenerateReport writes snap to writer in the configured format
func (rg *ReportGenerator) GenerateReport(snap *store.Snapshot, writer io.Writer) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(snap, writer)
	case FormatJSON:
		return rg.generateJSONReport(snap, writer)
	case FormatCSV:
		return rg.generateCSVReport(snap, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(snap, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// UpdateConfiguration swaps in a new configuration after validating it
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return errors.ConfigurationError("report", config.Format, err)
	}
	rg.config = config
	rg.styles = newStyles(config.UseColors)
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

func (rg *ReportGenerator) inScope(tx models.Transaction, nrit bool) bool {
	switch rg.config.Scope {
	case ScopeReconciled:
		if !tx.IsReconciled() {
			return false
		}
	case ScopeUnreconciled:
		if tx.IsReconciled() {
			return false
		}
	case ScopeNrit:
		if !nrit {
			return false
		}
	}
	d := tx.GetDate()
	if !rg.config.StartDate.IsZero() && d.Before(rg.config.StartDate) {
		return false
	}
	if !rg.config.EndDate.IsZero() && d.After(rg.config.EndDate) {
		return false
	}
	return true
}

func (rg *ReportGenerator) ledgerRows(snap *store.Snapshot) []*models.LedgerTransaction {
	out := make([]*models.LedgerTransaction, 0, len(snap.Ledger))
	for _, tx := range snap.Ledger {
		if rg.inScope(tx, false) {
			out = append(out, tx)
		}
	}
	return out
}

func (rg *ReportGenerator) bankRows(snap *store.Snapshot) []*models.BankTransaction {
	out := make([]*models.BankTransaction, 0, len(snap.Bank))
	for _, tx := range snap.Bank {
		if rg.inScope(tx, tx.IsNrit()) {
			out = append(out, tx)
		}
	}
	return out
}

// generateJSONReport writes the scoped snapshot as indented JSON
func (rg *ReportGenerator) generateJSONReport(snap *store.Snapshot, writer io.Writer) error {
	out := map[string]interface{}{
		"crimsonTransactions": rg.ledgerRows(snap),
		"bankTransactions":    rg.bankRows(snap),
		"suggestions":         snap.Suggestions,
	}
	if rg.config.IncludeSummary {
		out["stats"] = snap.Stats
	}
	if rg.config.IncludeBreakdowns {
		out["fundResults"] = snap.FundResults
		out["fecLineResults"] = snap.LineResults
	}
	if rg.config.IncludeAuditTrail {
		out["auditLog"] = snap.AuditLog
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// csvHeaders is the bulk export layout; ledger and bank rows share it
var csvHeaders = []string{
	"ID", "Date", "Type", "Description/Payment Type", "Amount",
	"Reconciled", "NRIT", "Fund Code", "Account Code",
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func ledgerCSVRow(tx *models.LedgerTransaction) []string {
	return []string{
		tx.ID, tx.Date.String(), "Crimson", tx.PaymentType, tx.Amount.StringFixed(2),
		yesNo(tx.IsReconciled()), "No", tx.FundCode, tx.AccountCode,
	}
}

func bankCSVRow(tx *models.BankTransaction) []string {
	return []string{
		tx.ID, tx.Date.String(), "Bank", tx.Description, tx.Amount.StringFixed(2),
		yesNo(tx.IsReconciled()), yesNo(tx.IsNrit()), "", tx.AccountCode,
	}
}

// generateCSVReport writes one row per in-scope transaction
func (rg *ReportGenerator) generateCSVReport(snap *store.Snapshot, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if err := csvWriter.Write(csvHeaders); err != nil {
		return err
	}
	for _, tx := range rg.ledgerRows(snap) {
		if err := csvWriter.Write(ledgerCSVRow(tx)); err != nil {
			return err
		}
	}
	for _, tx := range rg.bankRows(snap) {
		if err := csvWriter.Write(bankCSVRow(tx)); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	subtle  lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFE66D")),
		subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

// generateConsoleReport writes a human-readable summary and open items
func (rg *ReportGenerator) generateConsoleReport(snap *store.Snapshot, writer io.Writer) error {
	st := rg.styles
	var b strings.Builder

	b.WriteString(st.title.Render("RECONCILIATION REPORT") + "\n\n")

	if rg.config.IncludeSummary {
		rg.printSummary(&b, snap)
	}
	if rg.config.IncludeBreakdowns {
		rg.printBreakdown(&b, "FUND BREAKDOWN", snap.FundResults)
		rg.printBreakdown(&b, "FEC LINE BREAKDOWN", snap.LineResults)
	}
	if len(snap.Suggestions) > 0 {
		rg.printSuggestions(&b, snap.Suggestions)
	}
	rg.printLedger(&b, rg.ledgerRows(snap))
	rg.printBank(&b, rg.bankRows(snap))
	if rg.config.IncludeAuditTrail {
		rg.printAudit(&b, snap)
	}

	_, err := io.WriteString(writer, b.String())
	return err
}

func (rg *ReportGenerator) printSummary(b *strings.Builder, snap *store.Snapshot) {
	st := rg.styles
	s := snap.Stats
	b.WriteString(st.section.Render("=== SUMMARY ===") + "\n")
	fmt.Fprintf(b, "%s %d of %d reconciled (%.1f%%)\n", st.label.Render("Ledger:      "),
		s.ReconciledLedgerTransactions, s.TotalLedgerTransactions, s.ReconciliationProgress)
	fmt.Fprintf(b, "%s %d of %d reconciled, %d NRIT\n", st.label.Render("Bank:        "),
		s.ReconciledBankTransactions, s.TotalBankTransactions, s.NritCount)
	fmt.Fprintf(b, "%s %s\n", st.label.Render("Ledger total:"), s.TotalLedgerAmount.StringFixed(2))
	fmt.Fprintf(b, "%s %s\n", st.label.Render("Bank total:  "), s.TotalBankAmount.StringFixed(2))

	diff := s.Discrepancy.StringFixed(2)
	if s.HasDiscrepancy {
		diff = st.warn.Render(diff + " DISCREPANCY")
	} else {
		diff = st.good.Render(diff + " balanced")
	}
	fmt.Fprintf(b, "%s %s\n", st.label.Render("Difference:  "), diff)
	fmt.Fprintf(b, "%s %d\n\n", st.label.Render("Suggestions: "), s.AISuggestionsCount)
}

func (rg *ReportGenerator) printBreakdown(b *strings.Builder, title string, rows []summary.Breakdown) {
	if len(rows) == 0 {
		return
	}
	b.WriteString(rg.styles.section.Render("=== "+title+" ===") + "\n")
	for _, r := range rows {
		fmt.Fprintf(b, "  %-12s %3d/%-3d reconciled  open %s\n",
			r.Key, r.Reconciled, r.Total, r.UnreconciledAmount.StringFixed(2))
	}
	b.WriteString("\n")
}

func (rg *ReportGenerator) printSuggestions(b *strings.Builder, pairs []models.MatchedPair) {
	b.WriteString(rg.styles.section.Render("=== PENDING SUGGESTIONS ===") + "\n")
	for _, p := range pairs {
		fmt.Fprintf(b, "  %s <-> %s  %.0f%%  %s\n", p.LedgerTransactionID,
			strings.Join(p.BankTransactionIDs, "+"), p.ConfidenceScore*100,
			rg.styles.subtle.Render(p.Reasoning))
	}
	b.WriteString("\n")
}

func (rg *ReportGenerator) limit(n int) int {
	if rg.config.MaxItems > 0 && n > rg.config.MaxItems {
		return rg.config.MaxItems
	}
	return n
}

func (rg *ReportGenerator) more(b *strings.Builder, shown, total int) {
	if shown < total {
		b.WriteString(rg.styles.subtle.Render(fmt.Sprintf("  ... %d more", total-shown)) + "\n")
	}
}

func (rg *ReportGenerator) status(reconciled, nrit bool) string {
	switch {
	case nrit:
		return rg.styles.subtle.Render("NRIT")
	case reconciled:
		return rg.styles.good.Render("reconciled")
	default:
		return rg.styles.warn.Render("open")
	}
}

func (rg *ReportGenerator) printLedger(b *strings.Builder, rows []*models.LedgerTransaction) {
	fmt.Fprintf(b, "%s\n", rg.styles.section.Render(fmt.Sprintf("=== LEDGER TRANSACTIONS (%d) ===", len(rows))))
	n := rg.limit(len(rows))
	for _, tx := range rows[:n] {
		fmt.Fprintf(b, "  %-14s %s  %-18s %12s  %s\n", tx.ID, tx.Date, tx.MoneyType,
			tx.Amount.StringFixed(2), rg.status(tx.IsReconciled(), false))
	}
	rg.more(b, n, len(rows))
	b.WriteString("\n")
}

func (rg *ReportGenerator) printBank(b *strings.Builder, rows []*models.BankTransaction) {
	fmt.Fprintf(b, "%s\n", rg.styles.section.Render(fmt.Sprintf("=== BANK TRANSACTIONS (%d) ===", len(rows))))
	n := rg.limit(len(rows))
	for _, tx := range rows[:n] {
		fmt.Fprintf(b, "  %-14s %s  %-24s %12s  %s\n", tx.ID, tx.Date, truncate(tx.Description, 24),
			tx.Amount.StringFixed(2), rg.status(tx.IsReconciled(), tx.IsNrit()))
	}
	rg.more(b, n, len(rows))
	b.WriteString("\n")
}

func (rg *ReportGenerator) printAudit(b *strings.Builder, snap *store.Snapshot) {
	b.WriteString(rg.styles.section.Render("=== AUDIT TRAIL ===") + "\n")
	n := rg.limit(len(snap.AuditLog))
	for _, e := range snap.AuditLog[:n] {
		fmt.Fprintf(b, "  %s  %-8s %-20s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"),
			e.User, e.Action, e.Details)
	}
	rg.more(b, n, len(snap.AuditLog))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
