package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/audit"
	"treasury-reconciler/internal/matcher"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// ReconcileIDs names the rows to settle on each side
type ReconcileIDs struct {
	LedgerIDs []string
	BankIDs   []string
}

// ReconcileResult describes an applied reconciliation
type ReconcileResult struct {
	LedgerIDs []string
	BankIDs   []string
	Amount    decimal.Decimal
	Entry     audit.Entry
}

// Count is the number of rows the reconciliation touched
func (r *ReconcileResult) Count() int {
	return len(r.LedgerIDs) + len(r.BankIDs)
}

// ApplyReconciliation marks every listed row that exists as reconciled and
// writes one reconcile audit entry. Unknown ids are ignored. Applying the
// same ids again changes nothing but is audited again.
func (s *Store) ApplyReconciliation(ids ReconcileIDs) *ReconcileResult {
	s.mu.Lock()
	res := s.applyLocked(ids, audit.RecordInput{})
	s.mu.Unlock()

	s.emit(EventReconciled, append(append([]string(nil), res.LedgerIDs...), res.BankIDs...))
	return res
}

// applyLocked must hold s.mu. extra supplies confidence and metadata for the
// audit entry.
func (s *Store) applyLocked(ids ReconcileIDs, extra audit.RecordInput) *ReconcileResult {
	res := &ReconcileResult{Amount: decimal.Zero}

	for _, id := range ids.LedgerIDs {
		if tx := s.findLedger(id); tx != nil {
			tx.Reconcile()
			res.LedgerIDs = append(res.LedgerIDs, id)
			res.Amount = res.Amount.Add(tx.Amount.Abs())
		}
	}
	for _, id := range ids.BankIDs {
		if tx, _ := s.findBank(id); tx != nil {
			tx.Reconcile()
			res.BankIDs = append(res.BankIDs, id)
			res.Amount = res.Amount.Add(tx.Amount.Abs())
		}
	}

	res.Entry = s.audit.Record(audit.RecordInput{
		Action:         audit.ActionReconcile,
		Details:        fmt.Sprintf("Reconciled %d transactions", res.Count()),
		TransactionIDs: append(append([]string{}, res.LedgerIDs...), res.BankIDs...),
		Amount:         audit.Amount(res.Amount),
		Confidence:     extra.Confidence,
		Metadata:       extra.Metadata,
	})
	s.touch()

	s.logger.WithFields(logger.Fields{
		"ledger": len(res.LedgerIDs),
		"bank":   len(res.BankIDs),
		"amount": res.Amount.StringFixed(2),
	}).Info("Applied reconciliation")

	return res
}

// ReconcileSelection settles the current selection. It fails with
// not_eligible unless the selected ledger and bank totals are exactly equal
// and the ledger total is not zero. The selection is cleared on success.
func (s *Store) ReconcileSelection() (*ReconcileResult, error) {
	s.mu.Lock()
	totals := matcher.Totals(s.selection, s.ledger, s.bank)
	if !totals.CanReconcile {
		s.mu.Unlock()
		return nil, errors.InvalidState(errors.CodeNotEligible, "reconcile selection",
			fmt.Sprintf("selected ledger total %s and bank total %s differ by %s",
				totals.LedgerTotal.StringFixed(2), totals.BankTotal.StringFixed(2), totals.Difference.StringFixed(2)))
	}

	ids := ReconcileIDs{LedgerIDs: s.selection.LedgerIDs(), BankIDs: s.selection.BankIDs()}
	res := s.applyLocked(ids, audit.RecordInput{Metadata: map[string]string{"source": "manual"}})
	s.selection.Clear()
	s.mu.Unlock()

	s.emit(EventReconciled, append(append([]string(nil), res.LedgerIDs...), res.BankIDs...))
	return res, nil
}

// AcceptSuggestions reconciles every id referenced by the live suggestions
// and clears them. The zero-sum check of the manual path is not applied.
// Returns nil when there is nothing to accept.
func (s *Store) AcceptSuggestions() *ReconcileResult {
	s.mu.Lock()
	snap := s.engine.Snapshot()
	if snap.Len() == 0 {
		s.mu.Unlock()
		return nil
	}

	flat := snap.Flatten()
	res := s.applyLocked(ReconcileIDs{LedgerIDs: flat.LedgerIDs, BankIDs: flat.BankIDs}, audit.RecordInput{
		Confidence: audit.Confidence(snap.MeanConfidence()),
		Metadata:   map[string]string{"source": "ai_suggestion", "pairs": fmt.Sprint(snap.Len())},
	})
	s.engine.Clear()
	s.mu.Unlock()

	s.emit(EventReconciled, append(append([]string(nil), res.LedgerIDs...), res.BankIDs...))
	s.emit(EventSuggestionsChanged, nil)
	return res
}

// DeclineSuggestions discards all live suggestions without touching any
// transaction. Returns the number discarded.
func (s *Store) DeclineSuggestions() int {
	s.mu.Lock()
	snap := s.engine.Snapshot()
	s.engine.Clear()
	n := snap.Len()
	if n > 0 {
		flat := snap.Flatten()
		s.audit.Record(audit.RecordInput{
			Action:         audit.ActionAIDecline,
			Details:        fmt.Sprintf("Declined %d AI suggestions", n),
			TransactionIDs: append(flat.LedgerIDs, flat.BankIDs...),
		})
	}
	s.mu.Unlock()

	if n > 0 {
		s.emit(EventSuggestionsChanged, nil)
	}
	return n
}

// RequestSuggestions sends the unreconciled rows of both sides to the
// matching collaborator. The store lock is not held during the call, so
// selection and manual reconciliation stay available. Pairs naming a row
// that was settled or split in the meantime are dropped when the response
// lands; a response superseded by a newer request is discarded with
// stale_response.
func (s *Store) RequestSuggestions(ctx context.Context) (*matcher.SuggestionOutcome, error) {
	s.mu.Lock()
	var ledger []models.LedgerRecord
	for _, tx := range s.ledger {
		if !tx.IsReconciled() {
			ledger = append(ledger, tx.Record())
		}
	}
	var bank []models.BankRecord
	for _, tx := range s.bank {
		if !tx.IsReconciled() {
			bank = append(bank, tx.Record())
		}
	}
	s.mu.Unlock()

	resp, err := s.engine.Fetch(ctx, ledger, bank)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	outcome, err := s.engine.Install(resp, s.suggestionLive)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if outcome.Found {
		flat := matcher.FlattenPairs(outcome.Pairs)
		set := matcher.NewSuggestionSet()
		set.Replace(outcome.Pairs)
		s.audit.Record(audit.RecordInput{
			Action:         audit.ActionAISuggest,
			Details:        fmt.Sprintf("AI found %d potential matches", len(outcome.Pairs)),
			TransactionIDs: append(flat.LedgerIDs, flat.BankIDs...),
			Confidence:     audit.Confidence(set.MeanConfidence()),
			Metadata: map[string]string{
				"returned":        fmt.Sprint(outcome.Returned),
				"below_threshold": fmt.Sprint(outcome.BelowThreshold),
				"obsolete":        fmt.Sprint(outcome.Obsolete),
			},
		})
	}
	s.mu.Unlock()

	s.emit(EventSuggestionsChanged, nil)
	return outcome, nil
}

// MarkNrit flags a bank row as a non-reportable item, which also reconciles it
func (s *Store) MarkNrit(id string) error {
	s.mu.Lock()
	tx, _ := s.findBank(id)
	if tx == nil {
		s.mu.Unlock()
		return errors.NotFound(errors.CodeTransactionNotFound, "bank transaction", id)
	}
	tx.MarkNrit()
	s.audit.Record(audit.RecordInput{
		Action:         audit.ActionMarkNrit,
		Details:        fmt.Sprintf("Marked %s as non-reportable", id),
		TransactionIDs: []string{id},
		Amount:         audit.Amount(tx.Amount.Abs()),
	})
	s.touch()
	s.mu.Unlock()

	s.emit(EventNritChanged, []string{id})
	return nil
}

// UnmarkNrit clears the NRIT flag, which also unreconciles the row
func (s *Store) UnmarkNrit(id string) error {
	s.mu.Lock()
	tx, _ := s.findBank(id)
	if tx == nil {
		s.mu.Unlock()
		return errors.NotFound(errors.CodeTransactionNotFound, "bank transaction", id)
	}
	tx.UnmarkNrit()
	s.audit.Record(audit.RecordInput{
		Action:         audit.ActionUnmarkNrit,
		Details:        fmt.Sprintf("Removed non-reportable flag from %s", id),
		TransactionIDs: []string{id},
		Amount:         audit.Amount(tx.Amount.Abs()),
	})
	s.touch()
	s.mu.Unlock()

	s.emit(EventNritChanged, []string{id})
	return nil
}

// BulkMarkNrit marks every known id as NRIT and ignores the rest. Returns
// the number of rows marked.
func (s *Store) BulkMarkNrit(ids []string) int {
	s.mu.Lock()
	var marked []string
	total := decimal.Zero
	for _, id := range ids {
		if tx, _ := s.findBank(id); tx != nil {
			tx.MarkNrit()
			marked = append(marked, id)
			total = total.Add(tx.Amount.Abs())
		}
	}
	if len(marked) > 0 {
		s.audit.Record(audit.RecordInput{
			Action:         audit.ActionBulkAction,
			Details:        fmt.Sprintf("Marked %d transactions as non-reportable", len(marked)),
			TransactionIDs: marked,
			Amount:         audit.Amount(total),
			Metadata:       map[string]string{"operation": string(audit.ActionMarkNrit)},
		})
		s.touch()
	}
	s.mu.Unlock()

	if len(marked) > 0 {
		s.emit(EventNritChanged, marked)
	}
	return len(marked)
}

// Unreconcile returns rows of one side to the unreconciled state. Bank rows
// also lose their NRIT flag. Every id must exist; nothing changes otherwise.
func (s *Store) Unreconcile(side models.Side, ids []string) error {
	if len(ids) == 0 {
		return errors.Validation(errors.CodeMissingField, "ids", ids)
	}

	s.mu.Lock()
	total := decimal.Zero
	var apply []func()
	for _, id := range ids {
		switch side {
		case models.SideLedger:
			tx := s.findLedger(id)
			if tx == nil {
				s.mu.Unlock()
				return errors.NotFound(errors.CodeTransactionNotFound, "ledger transaction", id)
			}
			apply = append(apply, tx.Unreconcile)
			total = total.Add(tx.Amount.Abs())
		case models.SideBank:
			tx, _ := s.findBank(id)
			if tx == nil {
				s.mu.Unlock()
				return errors.NotFound(errors.CodeTransactionNotFound, "bank transaction", id)
			}
			apply = append(apply, tx.Unreconcile)
			total = total.Add(tx.Amount.Abs())
		default:
			s.mu.Unlock()
			return errors.Validation(errors.CodeMissingField, "side", side)
		}
	}
	for _, fn := range apply {
		fn()
	}
	s.audit.Record(audit.RecordInput{
		Action:         audit.ActionUnreconcile,
		Details:        fmt.Sprintf("Unreconciled %d %s transactions", len(ids), side),
		TransactionIDs: append([]string(nil), ids...),
		Amount:         audit.Amount(total),
	})
	s.touch()
	s.mu.Unlock()

	s.emit(EventUnreconciled, ids)
	return nil
}

// SelectLedger adds an unreconciled ledger row to the selection
func (s *Store) SelectLedger(id string) error {
	return s.selectRow(models.SideLedger, id)
}

// SelectBank adds an unreconciled bank row to the selection
func (s *Store) SelectBank(id string) error {
	return s.selectRow(models.SideBank, id)
}

func (s *Store) selectRow(side models.Side, id string) error {
	s.mu.Lock()
	var tx models.Transaction
	if side == models.SideLedger {
		if l := s.findLedger(id); l != nil {
			tx = l
		}
	} else if b, _ := s.findBank(id); b != nil {
		tx = b
	}
	if tx == nil {
		s.mu.Unlock()
		return errors.NotFound(errors.CodeTransactionNotFound, side.String()+" transaction", id)
	}
	if tx.IsReconciled() {
		s.mu.Unlock()
		return errors.InvalidState(errors.CodeNotEligible, "select", id+" is already reconciled")
	}
	s.selection.Select(side, id)
	s.mu.Unlock()

	s.emit(EventSelectionChanged, []string{id})
	return nil
}

// Deselect removes a row from the selection
func (s *Store) Deselect(side models.Side, id string) {
	s.mu.Lock()
	s.selection.Deselect(side, id)
	s.mu.Unlock()
	s.emit(EventSelectionChanged, []string{id})
}

// ClearSelection empties both selection sets
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selection.Clear()
	s.mu.Unlock()
	s.emit(EventSelectionChanged, nil)
}

// SelectionTotals returns the current selection sums
func (s *Store) SelectionTotals() matcher.SelectionTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return matcher.Totals(s.selection, s.ledger, s.bank)
}

// Selected returns the selected ids per side, sorted
func (s *Store) Selected() ReconcileIDs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReconcileIDs{LedgerIDs: s.selection.LedgerIDs(), BankIDs: s.selection.BankIDs()}
}
