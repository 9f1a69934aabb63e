package store

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/audit"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// SplitTolerance is the largest difference allowed between the parts of a
// split and the original amount.
var SplitTolerance = decimal.RequireFromString("0.001")

// SplitPart is one replacement row. Empty date, description and account
// code are taken from the original.
type SplitPart struct {
	Date         models.Date
	Description  string
	Amount       decimal.Decimal
	AccountCode  string
	SplitDetails *models.SplitDetails
}

// SplitBankTransaction replaces a bank row, in place, with the given parts.
// The parts get ids {originalID}-split-{i}, start unreconciled, and must sum
// to the original amount. The original id is retired for good and live
// suggestions naming it are dropped. Reconciled and NRIT rows cannot be
// split.
//
// An unknown originalID is not an error: the collection is left unchanged
// and (nil, nil) is returned.
func (s *Store) SplitBankTransaction(originalID string, parts []SplitPart) ([]*models.BankTransaction, error) {
	if len(parts) == 0 {
		return nil, errors.Validation(errors.CodeMissingField, "parts", parts)
	}

	s.mu.Lock()
	original, index := s.findBank(originalID)
	if original == nil {
		s.mu.Unlock()
		s.logger.WithField("transaction_id", originalID).Warn("Split requested for unknown bank transaction")
		return nil, nil
	}
	if original.IsReconciled() {
		s.mu.Unlock()
		return nil, errors.InvalidState(errors.CodeNotEligible, "split", originalID+" is already reconciled").
			WithSuggestion("unreconcile the transaction before splitting it")
	}

	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(p.Amount)
	}
	if diff := sum.Sub(original.Amount).Abs(); diff.GreaterThan(SplitTolerance) {
		s.mu.Unlock()
		return nil, errors.Validation(errors.CodeAmountMismatch, "parts.amount", sum.String()).
			WithContext("expected", original.Amount.String()).
			WithContext("difference", diff.String())
	}

	created := make([]*models.BankTransaction, 0, len(parts))
	ids := make([]string, 0, len(parts))
	for i, p := range parts {
		tx := &models.BankTransaction{
			ID:           fmt.Sprintf("%s-split-%d", originalID, i),
			Date:         p.Date,
			Description:  p.Description,
			Amount:       p.Amount,
			AccountCode:  p.AccountCode,
			SplitDetails: p.SplitDetails,
		}
		if tx.Date.IsZero() {
			tx.Date = original.Date
		}
		if tx.Description == "" {
			tx.Description = original.Description
		}
		if tx.AccountCode == "" {
			tx.AccountCode = original.AccountCode
		}
		if _, taken := s.retired[tx.ID]; taken || (s.findLedger(tx.ID) != nil) || s.bankIDTaken(tx.ID, originalID) {
			s.mu.Unlock()
			return nil, errors.Validation(errors.CodeDuplicateID, "id", tx.ID)
		}
		created = append(created, tx)
		ids = append(ids, tx.ID)
	}

	replaced := make([]*models.BankTransaction, 0, len(s.bank)-1+len(created))
	replaced = append(replaced, s.bank[:index]...)
	replaced = append(replaced, created...)
	replaced = append(replaced, s.bank[index+1:]...)
	s.bank = replaced
	s.retired[originalID] = struct{}{}

	s.audit.Record(audit.RecordInput{
		Action:         audit.ActionSplit,
		Details:        fmt.Sprintf("Split %s into %d transactions", originalID, len(created)),
		TransactionIDs: append([]string{originalID}, ids...),
		Amount:         audit.Amount(original.Amount.Abs()),
	})
	s.touch()
	dropped := s.engine.Retain(func(p models.MatchedPair) bool {
		for _, id := range p.BankTransactionIDs {
			if id == originalID {
				return false
			}
		}
		return true
	})
	s.mu.Unlock()

	s.logger.WithFields(logger.Fields{"transaction_id": originalID, "parts": len(created)}).Info("Split bank transaction")
	s.emit(EventSplit, ids)
	if dropped > 0 {
		s.emit(EventSuggestionsChanged, nil)
	}
	return cloneBank(created), nil
}

// bankIDTaken reports whether a bank row other than except already uses id.
// Must hold s.mu.
func (s *Store) bankIDTaken(id, except string) bool {
	tx, _ := s.findBank(id)
	return tx != nil && tx.ID != except
}

// LineItem is one expenditure allocation
type LineItem struct {
	Description string          `validate:"omitempty,max=200"`
	Amount      decimal.Decimal `validate:"-"`
	AccountCode string
	LineNumber  string
}

// CreateRequest describes a ledger row derived from a bank transaction, or
// a standalone one when SourceBankID is empty. Date and amount default to
// the source's.
type CreateRequest struct {
	SourceBankID string `validate:"omitempty,max=64"`
	Date         models.Date
	Amount       *decimal.Decimal

	// LineItems, when given, set the amount to their sum
	LineItems []LineItem `validate:"omitempty,dive"`

	PaymentType  string `validate:"omitempty,max=16"`
	FundCode     string `validate:"required,max=32"`
	AccountCode  string `validate:"omitempty,max=64"`
	LineNumber   string `validate:"omitempty,max=16"`
	Description  string `validate:"omitempty,max=200"`
	Counterparty string `validate:"omitempty,max=120"`

	MarkSourceReconciled bool
}

// DefaultPaymentType is used when a request names none
const DefaultPaymentType = "CH"

type createKind struct {
	moneyType    models.MoneyType
	groupPrefix  string
	fallback     string
	action       audit.Action
	absoluteOnly bool
}

var (
	expenditureKind = createKind{models.MoneyTypeDisbursement, "EXP", "Expenditure", audit.ActionCreateExpenditure, true}
	receiptKind     = createKind{models.MoneyTypeOtherReceipt, "REC", "Receipt", audit.ActionCreateReceipt, false}
)

// CreateExpenditure adds a disbursement to the ledger
func (s *Store) CreateExpenditure(req CreateRequest) (*models.LedgerTransaction, error) {
	return s.create(req, expenditureKind)
}

// CreateReceipt adds an other-receipt row to the ledger
func (s *Store) CreateReceipt(req CreateRequest) (*models.LedgerTransaction, error) {
	return s.create(req, receiptKind)
}

func (s *Store) create(req CreateRequest, kind createKind) (*models.LedgerTransaction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	s.mu.Lock()
	var source *models.BankTransaction
	if req.SourceBankID != "" {
		source, _ = s.findBank(req.SourceBankID)
		if source == nil {
			s.mu.Unlock()
			return nil, errors.NotFound(errors.CodeTransactionNotFound, "bank transaction", req.SourceBankID)
		}
	}

	amount, err := requestAmount(req, source)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if kind.absoluteOnly {
		amount = amount.Abs()
	}

	date := req.Date
	if date.IsZero() && source != nil {
		date = source.Date
	}
	if date.IsZero() {
		date = models.Today()
	}

	group := kind.groupPrefix + "-" + uuid.NewString()[:8]
	if source != nil {
		group = kind.groupPrefix + "-" + source.ID
	}

	description := req.Description
	if description == "" {
		description = req.Counterparty
	}
	if description == "" {
		description = kind.fallback
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = DefaultPaymentType
	}

	tx := &models.LedgerTransaction{
		ID:          "C-" + uuid.NewString(),
		Date:        date,
		MoneyType:   kind.moneyType,
		PaymentType: paymentType,
		Amount:      amount,
		Group:       group,
		AccountCode: req.AccountCode,
		FundCode:    req.FundCode,
		LineNumber:  req.LineNumber,
		Description: description,
	}
	if tx.LineNumber == "" && len(req.LineItems) > 0 {
		tx.LineNumber = req.LineItems[0].LineNumber
	}
	s.ledger = append(s.ledger, tx)

	ids := []string{tx.ID}
	if source != nil && req.MarkSourceReconciled {
		source.Reconcile()
		ids = append(ids, source.ID)
	}

	s.audit.Record(audit.RecordInput{
		Action:         kind.action,
		Details:        fmt.Sprintf("Created %s %s", strings.ToLower(kind.fallback), tx.ID),
		TransactionIDs: ids,
		Amount:         audit.Amount(amount.Abs()),
		Metadata:       map[string]string{"group": group},
	})
	s.touch()
	out := tx.Clone()
	s.mu.Unlock()

	s.emit(EventCreated, ids)
	return out, nil
}

func requestAmount(req CreateRequest, source *models.BankTransaction) (decimal.Decimal, error) {
	if len(req.LineItems) > 0 {
		total := decimal.Zero
		for _, item := range req.LineItems {
			total = total.Add(item.Amount)
		}
		return total, nil
	}
	if req.Amount != nil {
		return *req.Amount, nil
	}
	if source != nil {
		return source.Amount, nil
	}
	return decimal.Zero, errors.Validation(errors.CodeMissingField, "amount", nil)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		code := errors.CodeMissingField
		if fe.Tag() != "required" {
			code = errors.CodeInvalidFormat
		}
		return errors.Validation(code, fe.Namespace(), fe.Value()).WithContext("rule", fe.Tag())
	}
	return errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidFormat, "request validation failed")
}

// ImportBankTransactions adds rows at the head of the bank collection.
// Rows are validated first and the whole batch is rejected if any id is
// already in use, retired, or repeated.
func (s *Store) ImportBankTransactions(txs []*models.BankTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return 0, errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidFormat, "invalid bank transaction")
		}
	}

	s.mu.Lock()
	ids, err := s.checkNewIDs(bankIDs(txs))
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	fresh := cloneBank(txs)
	s.bank = append(fresh, s.bank...)
	s.audit.Record(audit.RecordInput{
		Action:         audit.ActionImport,
		Details:        fmt.Sprintf("Imported %d bank transactions", len(fresh)),
		TransactionIDs: ids,
		Amount:         audit.Amount(absTotal(fresh)),
		Metadata:       map[string]string{"side": string(models.SideBank)},
	})
	s.touch()
	s.mu.Unlock()

	s.emit(EventImported, ids)
	return len(fresh), nil
}

// ImportLedgerTransactions appends rows to the ledger with the same checks
// as ImportBankTransactions.
func (s *Store) ImportLedgerTransactions(txs []*models.LedgerTransaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return 0, errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidFormat, "invalid ledger transaction")
		}
	}

	ids := make([]string, len(txs))
	total := decimal.Zero
	for i, tx := range txs {
		ids[i] = tx.ID
		total = total.Add(tx.Amount.Abs())
	}

	s.mu.Lock()
	if _, err := s.checkNewIDs(ids); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.ledger = append(s.ledger, cloneLedger(txs)...)
	s.audit.Record(audit.RecordInput{
		Action:         audit.ActionImport,
		Details:        fmt.Sprintf("Imported %d ledger transactions", len(txs)),
		TransactionIDs: ids,
		Amount:         audit.Amount(total),
		Metadata:       map[string]string{"side": string(models.SideLedger)},
	})
	s.touch()
	s.mu.Unlock()

	s.emit(EventImported, ids)
	return len(txs), nil
}

// checkNewIDs must hold s.mu
func (s *Store) checkNewIDs(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || s.idInUse(id) {
			return nil, errors.Validation(errors.CodeDuplicateID, "id", id)
		}
		seen[id] = struct{}{}
	}
	return ids, nil
}

func bankIDs(txs []*models.BankTransaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func absTotal(txs []*models.BankTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount.Abs())
	}
	return total
}
