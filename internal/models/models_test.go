package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-04-01", "2024-04-01", false},
		{"04/15/2024", "2024-04-15", false},
		{"4/5/2024", "2024-04-05", false},
		{"2024-04-01T18:30:00Z", "2024-04-01", false},
		{"", "", true},
		{"yesterday", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDateOrderingAndJSON(t *testing.T) {
	a := NewDate(2024, time.April, 1)
	b := a.AddDays(6)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 6, DaysBetween(a, b))
	assert.Equal(t, 6, DaysBetween(b, a))

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-04-07"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(b))

	var zero Date
	data, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestParseMoneyType(t *testing.T) {
	mt, err := ParseMoneyType("otherreceipt")
	require.NoError(t, err)
	assert.Equal(t, MoneyTypeOtherReceipt, mt)

	mt, err = ParseMoneyType("Winred Chargeback")
	require.NoError(t, err)
	assert.Equal(t, MoneyTypeWinredChargeback, mt)

	_, err = ParseMoneyType("Refund")
	assert.Error(t, err)
}

func TestBankTransaction_NritCoupling(t *testing.T) {
	tx := &BankTransaction{ID: "B1", Date: NewDate(2024, time.April, 2), Amount: decimal.NewFromInt(-12)}

	tx.MarkNrit()
	assert.True(t, tx.IsNrit())
	assert.True(t, tx.IsReconciled())

	tx.UnmarkNrit()
	assert.False(t, tx.IsNrit())
	assert.False(t, tx.IsReconciled())

	tx.MarkNrit()
	tx.Unreconcile()
	assert.False(t, tx.IsNrit(), "unreconciling must not leave an NRIT row unsettled")
}

func TestBankTransaction_JSONForcesReconciledForNrit(t *testing.T) {
	var tx BankTransaction
	require.NoError(t, json.Unmarshal([]byte(`{"id":"B9","date":"2024-04-03","description":"FEE","amount":-5,"isReconciled":false,"isNrit":true}`), &tx))

	assert.True(t, tx.IsNrit())
	assert.True(t, tx.IsReconciled())
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(-5)))

	data, err := json.Marshal(&tx)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, true, m["isReconciled"])
	assert.Equal(t, true, m["isNrit"])
	assert.Equal(t, "2024-04-03", m["date"])
}

func TestLedgerTransaction_JSONRoundTripKeepsFlag(t *testing.T) {
	tx := &LedgerTransaction{
		ID:          "C1",
		Date:        MustParseDate("2024-04-01"),
		MoneyType:   MoneyTypeContribution,
		PaymentType: "CH",
		Amount:      decimal.RequireFromString("250.00"),
		Group:       "G1",
	}
	tx.Reconcile()

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var back LedgerTransaction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsReconciled())
	assert.Equal(t, "C1", back.ID)
	assert.True(t, back.Amount.Equal(tx.Amount))
}

func TestValidateBatch(t *testing.T) {
	tx := &LedgerTransaction{
		ID:     "C2",
		Date:   MustParseDate("2024-04-02"),
		Amount: decimal.RequireFromString("150.00"),
		BatchDetails: []BatchDetail{
			{ID: "d1", Amount: decimal.RequireFromString("100.00"), Donor: "A"},
			{ID: "d2", Amount: decimal.RequireFromString("50.00"), Donor: "B"},
		},
	}
	assert.NoError(t, tx.Validate())

	tx.BatchDetails[1].Amount = decimal.RequireFromString("49.99")
	assert.Error(t, tx.ValidateBatch())
}

func TestValidateSplitDetails(t *testing.T) {
	tx := &BankTransaction{
		ID:     "B2",
		Date:   MustParseDate("2024-04-02"),
		Amount: decimal.RequireFromString("90.00"),
		SplitDetails: &SplitDetails{
			Gross:       decimal.RequireFromString("100.00"),
			Chargebacks: decimal.RequireFromString("-7.00"),
			Fees:        decimal.RequireFromString("-3.00"),
		},
	}
	assert.NoError(t, tx.Validate())

	tx.SplitDetails.Fees = decimal.RequireFromString("-4.00")
	assert.Error(t, tx.ValidateSplitDetails())
}

func TestClonesDoNotAlias(t *testing.T) {
	ledger := &LedgerTransaction{ID: "C3", BatchDetails: []BatchDetail{{ID: "d1"}}}
	lc := ledger.Clone()
	lc.BatchDetails[0].ID = "changed"
	lc.Reconcile()
	assert.Equal(t, "d1", ledger.BatchDetails[0].ID)
	assert.False(t, ledger.IsReconciled())

	bank := &BankTransaction{ID: "B3", SplitDetails: &SplitDetails{Gross: decimal.NewFromInt(1)}}
	bc := bank.Clone()
	bc.SplitDetails.Gross = decimal.NewFromInt(2)
	assert.True(t, bank.SplitDetails.Gross.Equal(decimal.NewFromInt(1)))

	pair := MatchedPair{LedgerTransactionID: "C3", BankTransactionIDs: []string{"B3"}}
	pc := pair.Clone()
	pc.BankTransactionIDs[0] = "X"
	assert.Equal(t, "B3", pair.BankTransactionIDs[0])
}

func TestRecordsOmitNestedDetail(t *testing.T) {
	bank := &BankTransaction{
		ID:           "B4",
		Date:         MustParseDate("2024-04-04"),
		Description:  "WINRED PAYOUT",
		Amount:       decimal.RequireFromString("1234.56"),
		SplitDetails: &SplitDetails{Gross: decimal.RequireFromString("1234.56")},
	}
	data, err := json.Marshal(BankRecords([]*BankTransaction{bank}))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"B4","date":"2024-04-04","description":"WINRED PAYOUT","amount":1234.56,"isReconciled":false}]`, string(data))

	pair := MatchedPair{LedgerTransactionID: "C1", BankTransactionIDs: []string{"B4"}, ConfidenceScore: 0.9, Reasoning: "same amount"}
	data, err = json.Marshal(pair)
	require.NoError(t, err)
	assert.JSONEq(t, `{"crimsonTransactionId":"C1","bankTransactionId":["B4"],"confidenceScore":0.9,"reasoning":"same amount"}`, string(data))
}
