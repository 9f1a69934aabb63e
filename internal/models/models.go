package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyType classifies a ledger transaction
type MoneyType string

const (
	MoneyTypeContribution     MoneyType = "Contribution"
	MoneyTypeOtherReceipt     MoneyType = "Other Receipt"
	MoneyTypeDisbursement     MoneyType = "Disbursement"
	MoneyTypeChargeback       MoneyType = "Chargeback"
	MoneyTypeDebit            MoneyType = "Debit"
	MoneyTypeWinred           MoneyType = "Winred"
	MoneyTypeWinredChargeback MoneyType = "Winred Chargeback"
)

// MoneyTypes lists every known money type in display order
var MoneyTypes = []MoneyType{
	MoneyTypeContribution,
	MoneyTypeOtherReceipt,
	MoneyTypeDisbursement,
	MoneyTypeChargeback,
	MoneyTypeDebit,
	MoneyTypeWinred,
	MoneyTypeWinredChargeback,
}

// String returns the string representation of MoneyType
func (m MoneyType) String() string {
	return string(m)
}

// IsValid checks if the money type is one of the known values
func (m MoneyType) IsValid() bool {
	for _, known := range MoneyTypes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMoneyType matches a money type case-insensitively, ignoring spaces,
// so "OtherReceipt" and "other receipt" both resolve.
func ParseMoneyType(s string) (MoneyType, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, known := range MoneyTypes {
		if strings.ToLower(strings.ReplaceAll(string(known), " ", "")) == norm {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown money type: %q", s)
}

// Side identifies which collection a transaction belongs to
type Side string

const (
	SideLedger Side = "ledger"
	SideBank   Side = "bank"
)

func (s Side) String() string { return string(s) }

// Transaction is the capability set shared by ledger and bank transactions
type Transaction interface {
	GetID() string
	GetDate() Date
	GetAmount() decimal.Decimal
	IsReconciled() bool
}

// BatchDetail is one donor allocation inside an aggregated ledger deposit
type BatchDetail struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Donor  string          `json:"donor"`
}

// LedgerTransaction is an internal bookkeeping record
type LedgerTransaction struct {
	ID           string          `json:"id"`
	Date         Date            `json:"date"`
	MoneyType    MoneyType       `json:"moneyType"`
	PaymentType  string          `json:"paymentType"`
	Amount       decimal.Decimal `json:"amount"`
	Group        string          `json:"group"`
	AccountCode  string          `json:"accountCode,omitempty"`
	FundCode     string          `json:"fundCode,omitempty"`
	LineNumber   string          `json:"lineNumber,omitempty"`
	Description  string          `json:"description,omitempty"`
	BatchDetails []BatchDetail   `json:"batchDetails,omitempty"`

	reconciled bool
}

func (t *LedgerTransaction) GetID() string              { return t.ID }
func (t *LedgerTransaction) GetDate() Date              { return t.Date }
func (t *LedgerTransaction) GetAmount() decimal.Decimal { return t.Amount }
func (t *LedgerTransaction) IsReconciled() bool         { return t.reconciled }

// Reconcile marks the transaction as reconciled
func (t *LedgerTransaction) Reconcile() { t.reconciled = true }

// Unreconcile clears the reconciled flag
func (t *LedgerTransaction) Unreconcile() { t.reconciled = false }

// Validate performs basic validation on the LedgerTransaction
func (t *LedgerTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("ledger transaction ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("ledger transaction %s has no date", t.ID)
	}
	if t.MoneyType != "" && !t.MoneyType.IsValid() {
		return fmt.Errorf("ledger transaction %s has invalid money type: %s", t.ID, t.MoneyType)
	}
	return t.ValidateBatch()
}

// ValidateBatch checks that batch allocations sum exactly to the parent amount
func (t *LedgerTransaction) ValidateBatch() error {
	if len(t.BatchDetails) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, b := range t.BatchDetails {
		sum = sum.Add(b.Amount)
	}
	if !sum.Equal(t.Amount) {
		return fmt.Errorf("batch details of %s sum to %s, expected %s", t.ID, sum, t.Amount)
	}
	return nil
}

// Clone returns a deep copy
func (t *LedgerTransaction) Clone() *LedgerTransaction {
	c := *t
	if t.BatchDetails != nil {
		c.BatchDetails = append([]BatchDetail(nil), t.BatchDetails...)
	}
	return &c
}

// Record projects the transaction into the shape sent to the matching
// collaborator, without batch details.
func (t *LedgerTransaction) Record() LedgerRecord {
	amount, _ := t.Amount.Float64()
	return LedgerRecord{
		ID:           t.ID,
		Date:         t.Date.String(),
		MoneyType:    t.MoneyType,
		PaymentType:  t.PaymentType,
		Amount:       amount,
		Group:        t.Group,
		IsReconciled: t.reconciled,
		AccountCode:  t.AccountCode,
		FundCode:     t.FundCode,
		LineNumber:   t.LineNumber,
	}
}

type ledgerJSON struct {
	*ledgerAlias
	IsReconciled bool `json:"isReconciled"`
}

type ledgerAlias LedgerTransaction

// MarshalJSON includes the reconciled flag
func (t *LedgerTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{ledgerAlias: (*ledgerAlias)(t), IsReconciled: t.reconciled})
}

// UnmarshalJSON restores the reconciled flag
func (t *LedgerTransaction) UnmarshalJSON(data []byte) error {
	aux := ledgerJSON{ledgerAlias: (*ledgerAlias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.reconciled = aux.IsReconciled
	return nil
}

// SplitDetails breaks a bank deposit into gross, chargebacks and fees
type SplitDetails struct {
	Gross       decimal.Decimal `json:"gross"`
	Chargebacks decimal.Decimal `json:"chargebacks"`
	Fees        decimal.Decimal `json:"fees"`
}

// Total returns gross + chargebacks + fees
func (s SplitDetails) Total() decimal.Decimal {
	return s.Gross.Add(s.Chargebacks).Add(s.Fees)
}

// BankTransaction is a record sourced from a bank statement or feed.
//
// The reconciled and NRIT flags are only reachable through methods so a
// transaction marked NRIT is always reconciled.
type BankTransaction struct {
	ID           string          `json:"id"`
	Date         Date            `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	AccountCode  string          `json:"accountCode,omitempty"`
	SplitDetails *SplitDetails   `json:"splitDetails,omitempty"`

	reconciled bool
	nrit       bool
}

func (t *BankTransaction) GetID() string              { return t.ID }
func (t *BankTransaction) GetDate() Date              { return t.Date }
func (t *BankTransaction) GetAmount() decimal.Decimal { return t.Amount }
func (t *BankTransaction) IsReconciled() bool         { return t.reconciled }
func (t *BankTransaction) IsNrit() bool               { return t.nrit }

// Reconcile marks the transaction as reconciled
func (t *BankTransaction) Reconcile() { t.reconciled = true }

// Unreconcile clears both the reconciled and NRIT flags
func (t *BankTransaction) Unreconcile() {
	t.reconciled = false
	t.nrit = false
}

// MarkNrit flags the row as a non-reportable item, which also settles it
func (t *BankTransaction) MarkNrit() {
	t.nrit = true
	t.reconciled = true
}

// UnmarkNrit clears the NRIT flag and unreconciles the row
func (t *BankTransaction) UnmarkNrit() {
	t.nrit = false
	t.reconciled = false
}

// IsCredit reports whether the amount is an inflow (zero counts as credit)
func (t *BankTransaction) IsCredit() bool {
	return !t.Amount.IsNegative()
}

// Validate performs basic validation on the BankTransaction
func (t *BankTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("bank transaction ID cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("bank transaction %s has no date", t.ID)
	}
	return t.ValidateSplitDetails()
}

// ValidateSplitDetails checks that the split breakdown sums to the amount
func (t *BankTransaction) ValidateSplitDetails() error {
	if t.SplitDetails == nil {
		return nil
	}
	if total := t.SplitDetails.Total(); !total.Equal(t.Amount) {
		return fmt.Errorf("split details of %s sum to %s, expected %s", t.ID, total, t.Amount)
	}
	return nil
}

// Clone returns a deep copy
func (t *BankTransaction) Clone() *BankTransaction {
	c := *t
	if t.SplitDetails != nil {
		sd := *t.SplitDetails
		c.SplitDetails = &sd
	}
	return &c
}

// Record projects the transaction into the shape sent to the matching
// collaborator, without split details.
func (t *BankTransaction) Record() BankRecord {
	amount, _ := t.Amount.Float64()
	return BankRecord{
		ID:           t.ID,
		Date:         t.Date.String(),
		Description:  t.Description,
		Amount:       amount,
		IsReconciled: t.reconciled,
		IsNrit:       t.nrit,
		AccountCode:  t.AccountCode,
	}
}

type bankAlias BankTransaction

type bankJSON struct {
	*bankAlias
	IsReconciled bool `json:"isReconciled"`
	IsNrit       bool `json:"isNrit,omitempty"`
}

// MarshalJSON includes the reconciled and NRIT flags
func (t *BankTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(bankJSON{bankAlias: (*bankAlias)(t), IsReconciled: t.reconciled, IsNrit: t.nrit})
}

// UnmarshalJSON restores the flags. An NRIT row is always loaded as reconciled.
func (t *BankTransaction) UnmarshalJSON(data []byte) error {
	aux := bankJSON{bankAlias: (*bankAlias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.reconciled = aux.IsReconciled
	t.nrit = false
	if aux.IsNrit {
		t.MarkNrit()
	}
	return nil
}

// MatchedPair is a candidate correspondence between one ledger transaction
// and one or more bank transactions.
type MatchedPair struct {
	LedgerTransactionID string   `json:"crimsonTransactionId"`
	BankTransactionIDs  []string `json:"bankTransactionId"`
	ConfidenceScore     float64  `json:"confidenceScore"`
	Reasoning           string   `json:"reasoning"`
}

// Clone returns a copy that does not share the bank id slice
func (p MatchedPair) Clone() MatchedPair {
	p.BankTransactionIDs = append([]string(nil), p.BankTransactionIDs...)
	return p
}

// LedgerRecord is a plain ledger row as exchanged with the matching collaborator
type LedgerRecord struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	MoneyType    MoneyType `json:"moneyType"`
	PaymentType  string    `json:"paymentType"`
	Amount       float64   `json:"amount"`
	Group        string    `json:"group"`
	IsReconciled bool      `json:"isReconciled"`
	AccountCode  string    `json:"accountCode,omitempty"`
	FundCode     string    `json:"fundCode,omitempty"`
	LineNumber   string    `json:"lineNumber,omitempty"`
}

// BankRecord is a plain bank row as exchanged with the matching collaborator
type BankRecord struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Description  string  `json:"description"`
	Amount       float64 `json:"amount"`
	IsReconciled bool    `json:"isReconciled"`
	IsNrit       bool    `json:"isNrit,omitempty"`
	AccountCode  string  `json:"accountCode,omitempty"`
}

// LedgerRecords projects a slice of ledger transactions
func LedgerRecords(txs []*LedgerTransaction) []LedgerRecord {
	out := make([]LedgerRecord, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Record())
	}
	return out
}

// BankRecords projects a slice of bank transactions
func BankRecords(txs []*BankTransaction) []BankRecord {
	out := make([]BankRecord, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Record())
	}
	return out
}
