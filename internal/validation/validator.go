package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// Validate runs every check over the given rows. It never mutates them.
func Validate(ledger []*models.LedgerTransaction, bank []*models.BankTransaction, opts Options) *Report {
	if opts.Today.IsZero() {
		opts.Today = models.Today()
	}
	if opts.LargeAmountFactor.IsZero() {
		opts.LargeAmountFactor = DefaultOptions().LargeAmountFactor
	}

	v := &validator{opts: opts}
	v.duplicates(ledger)
	v.amounts(ledger, bank)
	v.dates(ledger, bank)
	v.missing(ledger, bank)
	v.balance(ledger, bank)
	v.stale(ledger, bank)

	sort.SliceStable(v.issues, func(i, j int) bool {
		return v.issues[i].Severity.order() < v.issues[j].Severity.order()
	})
	r := &Report{Issues: v.issues}
	for _, is := range r.Issues {
		switch is.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		default:
			r.Infos++
		}
	}
	return r
}

type validator struct {
	opts   Options
	issues []Issue
}

func (v *validator) add(is Issue) { v.issues = append(v.issues, is) }

// duplicates flags ledger rows sharing a date and amount
func (v *validator) duplicates(ledger []*models.LedgerTransaction) {
	groups := make(map[string][]string)
	var keys []string
	for _, t := range ledger {
		key := t.Date.String() + "-" + t.Amount.StringFixed(2)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], t.ID)
	}
	for _, key := range keys {
		ids := groups[key]
		if len(ids) < 2 {
			continue
		}
		v.add(Issue{
			ID:            "duplicate-crimson-" + key,
			Severity:      SeverityWarning,
			Category:      CategoryDuplicate,
			Message:       fmt.Sprintf("%d ledger transactions share date and amount: %s", len(ids), strings.Join(ids, ", ")),
			TransactionID: ids[0],
			Suggestion:    "Review for potential duplicates or split transactions",
		})
	}
}

func (v *validator) amounts(ledger []*models.LedgerTransaction, bank []*models.BankTransaction) {
	type row struct {
		id     string
		amount decimal.Decimal
	}
	rows := make([]row, 0, len(ledger)+len(bank))
	for _, t := range ledger {
		rows = append(rows, row{t.ID, t.Amount})
	}
	for _, t := range bank {
		rows = append(rows, row{t.ID, t.Amount})
	}
	if len(rows) == 0 {
		return
	}

	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.amount.Abs())
	}
	limit := total.Div(decimal.NewFromInt(int64(len(rows)))).Mul(v.opts.LargeAmountFactor)

	for _, r := range rows {
		if !r.amount.Equal(r.amount.Round(2)) {
			v.add(Issue{
				ID:            "amount-precision-" + r.id,
				Severity:      SeverityWarning,
				Category:      CategoryFormat,
				Message:       fmt.Sprintf("Amount %s has more than two decimal places", r.amount.String()),
				TransactionID: r.id,
				Suggestion:    "Round the amount to whole cents",
			})
		}
		switch {
		case r.amount.IsZero():
			v.add(Issue{
				ID:            "zero-amount-" + r.id,
				Severity:      SeverityError,
				Category:      CategoryAmount,
				Message:       "Transaction has zero amount",
				TransactionID: r.id,
				Suggestion:    "Enter the correct transaction amount",
			})
		case r.amount.Abs().GreaterThan(limit):
			v.add(Issue{
				ID:            "large-amount-" + r.id,
				Severity:      SeverityWarning,
				Category:      CategoryAmount,
				Message:       fmt.Sprintf("Unusually large amount: %s", r.amount.StringFixed(2)),
				TransactionID: r.id,
				Suggestion:    "Verify this amount is correct",
			})
		}
	}
}

func (v *validator) dates(ledger []*models.LedgerTransaction, bank []*models.BankTransaction) {
	future := func(id string, d models.Date) {
		if !d.After(v.opts.Today) {
			return
		}
		v.add(Issue{
			ID:            "future-date-" + id,
			Severity:      SeverityWarning,
			Category:      CategoryDate,
			Message:       "Transaction is dated in the future: " + d.String(),
			TransactionID: id,
			Suggestion:    "Verify the transaction date is correct",
		})
	}
	for _, t := range ledger {
		future(t.ID, t.Date)
	}
	for _, t := range bank {
		future(t.ID, t.Date)
	}
}

func (v *validator) missing(ledger []*models.LedgerTransaction, bank []*models.BankTransaction) {
	for _, t := range ledger {
		if strings.TrimSpace(t.PaymentType) == "" {
			v.add(Issue{
				ID:            "missing-payment-type-" + t.ID,
				Severity:      SeverityError,
				Category:      CategoryMissing,
				Message:       "Ledger transaction has no payment type",
				TransactionID: t.ID,
				Suggestion:    "Add payment type (CH, CC, JF, etc.)",
			})
		}
	}
	for _, t := range bank {
		if strings.TrimSpace(t.Description) == "" {
			v.add(Issue{
				ID:            "missing-description-" + t.ID,
				Severity:      SeverityError,
				Category:      CategoryMissing,
				Message:       "Bank transaction has no description",
				TransactionID: t.ID,
				Suggestion:    "Add a description for this bank transaction",
			})
		}
	}
}

// balance compares the reconciled ledger total with the reconciled bank
// total. NRIT rows have no ledger counterpart and are left out.
func (v *validator) balance(ledger []*models.LedgerTransaction, bank []*models.BankTransaction) {
	ledgerSum, bankSum := decimal.Zero, decimal.Zero
	for _, t := range ledger {
		if t.IsReconciled() {
			ledgerSum = ledgerSum.Add(t.Amount)
		}
	}
	for _, t := range bank {
		if t.IsReconciled() && !t.IsNrit() {
			bankSum = bankSum.Add(t.Amount)
		}
	}
	diff := ledgerSum.Sub(bankSum)
	if diff.Abs().LessThanOrEqual(v.opts.BalanceTolerance) {
		return
	}
	v.add(Issue{
		ID:       "reconciliation-imbalance",
		Severity: SeverityError,
		Category: CategoryAmount,
		Message: fmt.Sprintf("Reconciled ledger total %s differs from reconciled bank total %s by %s",
			ledgerSum.StringFixed(2), bankSum.StringFixed(2), diff.StringFixed(2)),
		Suggestion: "Review reconciled transactions to identify discrepancy",
	})
}

func (v *validator) stale(ledger []*models.LedgerTransaction, bank []*models.BankTransaction) {
	if v.opts.StaleAfterDays <= 0 {
		return
	}
	cutoff := v.opts.Today.AddDays(-v.opts.StaleAfterDays)
	n := 0
	for _, t := range ledger {
		if !t.IsReconciled() && t.Date.Before(cutoff) {
			n++
		}
	}
	for _, t := range bank {
		if !t.IsReconciled() && !t.IsNrit() && t.Date.Before(cutoff) {
			n++
		}
	}
	if n == 0 {
		return
	}
	v.add(Issue{
		ID:         "old-unreconciled",
		Severity:   SeverityInfo,
		Category:   CategoryDate,
		Message:    fmt.Sprintf("%d transactions have been unreconciled for more than %d days", n, v.opts.StaleAfterDays),
		Suggestion: "Consider reconciling or marking as NRIT if appropriate",
	})
}
