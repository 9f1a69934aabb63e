package reporter

import (
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"treasury-reconciler/internal/store"
)

const (
	sheetLedger  = "Ledger"
	sheetBank    = "Bank"
	sheetSummary = "Summary"
	sheetAudit   = "Audit"
)

// generateXLSXReport writes a workbook with one sheet per collection
func (rg *ReportGenerator) generateXLSXReport(snap *store.Snapshot, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetLedger); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	ledger := [][]interface{}{{"ID", "Date", "Money Type", "Payment Type", "Amount", "Group", "Fund Code", "Account Code", "Line Number", "Reconciled"}}
	for _, tx := range rg.ledgerRows(snap) {
		amount, _ := tx.Amount.Float64()
		ledger = append(ledger, []interface{}{
			tx.ID, tx.Date.String(), string(tx.MoneyType), tx.PaymentType, amount,
			tx.Group, tx.FundCode, tx.AccountCode, tx.LineNumber, yesNo(tx.IsReconciled()),
		})
	}
	if err := writeSheet(f, sheetLedger, ledger, headerStyle); err != nil {
		return err
	}

	bank := [][]interface{}{{"ID", "Date", "Description", "Amount", "Account Code", "Reconciled", "NRIT"}}
	for _, tx := range rg.bankRows(snap) {
		amount, _ := tx.Amount.Float64()
		bank = append(bank, []interface{}{
			tx.ID, tx.Date.String(), tx.Description, amount, tx.AccountCode,
			yesNo(tx.IsReconciled()), yesNo(tx.IsNrit()),
		})
	}
	if err := writeSheet(f, sheetBank, bank, headerStyle); err != nil {
		return err
	}

	if rg.config.IncludeSummary {
		s := snap.Stats
		rows := [][]interface{}{
			{"Metric", "Value"},
			{"Ledger transactions", s.TotalLedgerTransactions},
			{"Ledger reconciled", s.ReconciledLedgerTransactions},
			{"Bank transactions", s.TotalBankTransactions},
			{"Bank reconciled", s.ReconciledBankTransactions},
			{"NRIT items", s.NritCount},
			{"Ledger total", s.TotalLedgerAmount.StringFixed(2)},
			{"Bank total", s.TotalBankAmount.StringFixed(2)},
			{"Discrepancy", s.Discrepancy.StringFixed(2)},
			{"Has discrepancy", yesNo(s.HasDiscrepancy)},
			{"Progress %", s.ReconciliationProgress},
			{"Pending suggestions", s.AISuggestionsCount},
		}
		if err := writeSheet(f, sheetSummary, rows, headerStyle); err != nil {
			return err
		}
	}

	audit := [][]interface{}{{"Timestamp", "User", "Action", "Details", "Transactions", "Amount", "Confidence"}}
	for _, e := range snap.AuditLog {
		row := []interface{}{
			e.Timestamp.Format("2006-01-02 15:04:05"), e.User, string(e.Action), e.Details,
			strings.Join(e.TransactionIDs, " "), "", "",
		}
		if e.Amount != nil {
			row[5] = e.Amount.StringFixed(2)
		}
		if e.Confidence != nil {
			row[6] = *e.Confidence
		}
		audit = append(audit, row)
	}
	if err := writeSheet(f, sheetAudit, audit, headerStyle); err != nil {
		return err
	}

	return f.Write(writer)
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}, headerStyle int) error {
	if idx, _ := f.GetSheetIndex(name); idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(name, cell, &r); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return err
		}
		return f.SetCellStyle(name, "A1", last, headerStyle)
	}
	return nil
}
