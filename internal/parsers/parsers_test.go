package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
)

func createTempCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"500", "500", false},
		{"-1,250.50", "-1250.5", false},
		{"$2,000.00", "2000", false},
		{"(45.10)", "-45.1", false},
		{" 0.01 ", "0.01", false},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestLedgerParser(t *testing.T) {
	input := "ID,Date,Money Type,Payment Type,Amount,Group,Fund Code,Account,Line Number\n" +
		"C1,2024-04-01,Contribution,CH,500.00,G-1,P2026,P2026,SA11AI\n" +
		"C2,04/02/2024,other receipt,EFT,\"1,200.00\",G-2,G2026,,SA15\n" +
		"\n" +
		"C3,2024-04-03,Disbursement,CH,-75.25,G-3,P2026,P2026,SB23\n"

	ledger, stats, err := NewLedgerParser(nil).Parse(context.Background(), strings.NewReader(input), "ledger.csv")
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	assert.False(t, stats.HasErrors(), stats.GetSampleErrors(3))
	assert.Equal(t, 3, stats.RecordsValid)

	assert.Equal(t, "C1", ledger[0].ID)
	assert.Equal(t, models.MoneyTypeContribution, ledger[0].MoneyType)
	assert.Equal(t, "SA11AI", ledger[0].LineNumber)
	assert.Equal(t, "P2026", ledger[0].FundCode)

	assert.Equal(t, "2024-04-02", ledger[1].Date.String())
	assert.Equal(t, models.MoneyTypeOtherReceipt, ledger[1].MoneyType)
	assert.True(t, ledger[1].Amount.Equal(decimal.RequireFromString("1200")))
	assert.Empty(t, ledger[1].AccountCode)

	assert.True(t, ledger[2].Amount.IsNegative())
	for _, tx := range ledger {
		assert.False(t, tx.IsReconciled())
	}
}

func TestLedgerParserCollectsRowErrors(t *testing.T) {
	input := "id,date,moneyType,amount\n" +
		"C1,2024-04-01,Contribution,10\n" +
		",2024-04-01,Contribution,10\n" +
		"C3,yesterday,Contribution,10\n" +
		"C4,2024-04-01,Contribution,ten\n" +
		"C5,2024-04-01,Gift,10\n" +
		"C1,2024-04-02,Contribution,20\n"

	ledger, stats, err := NewLedgerParser(nil).Parse(context.Background(), strings.NewReader(input), "ledger.csv")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, 6, stats.RecordsParsed)
	assert.Equal(t, 5, stats.ErrorCount)

	codes := []errors.ErrorCode{
		errors.CodeMissingField,
		errors.CodeInvalidDate,
		errors.CodeInvalidAmount,
		errors.CodeInvalidFormat,
		errors.CodeDuplicateID,
	}
	for i, code := range codes {
		assert.True(t, errors.HasCode(stats.Errors[i], code), "error %d: %v", i, stats.Errors[i])
	}
	assert.Equal(t, 3, stats.Errors[0].Line)
	assert.Equal(t, 7, stats.Errors[4].Line)
}

func TestLedgerParserMissingColumn(t *testing.T) {
	_, _, err := NewLedgerParser(nil).Parse(context.Background(), strings.NewReader("id,date\nC1,2024-04-01\n"), "ledger.csv")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMissingColumn))

	_, _, err = NewLedgerParser(nil).Parse(context.Background(), strings.NewReader(""), "empty.csv")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidFormat))
}

func TestBankParser(t *testing.T) {
	input := "\xef\xbb\xbfReference,Posted Date,Memo,Amount,Account\n" +
		"B1,2024-04-01,WINRED DEPOSIT,500.00,P2026\n" +
		"B2,2024-04-02,CHECK 1043,(75.25),P2026\n"

	bank, stats, err := NewBankParser(nil).Parse(context.Background(), strings.NewReader(input), "bank.csv")
	require.NoError(t, err)
	require.Len(t, bank, 2)
	assert.Zero(t, stats.ErrorCount)

	assert.Equal(t, "B1", bank[0].ID)
	assert.Equal(t, "WINRED DEPOSIT", bank[0].Description)
	assert.True(t, bank[0].IsCredit())
	assert.True(t, bank[1].Amount.Equal(decimal.RequireFromString("-75.25")))
	assert.False(t, bank[1].IsNrit())
}

func TestParseFile(t *testing.T) {
	path := createTempCSVFile(t, "id,date,description,amount\nB1,2024-04-01,Deposit,10\n")
	bank, _, err := NewBankParser(nil).ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, bank, 1)

	_, _, err = NewBankParser(nil).ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidFormat))
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewBankParser(nil).Parse(ctx, strings.NewReader("id,date,amount\nB1,2024-04-01,1\n"), "bank.csv")
	assert.Error(t, err)
}

func TestParseStats(t *testing.T) {
	stats := NewParseStats()
	assert.False(t, stats.HasErrors())
	assert.Nil(t, stats.GetSampleErrors(3))

	for i := 0; i < 5; i++ {
		stats.AddError(&ParseError{Line: i + 2, Field: "amount", Value: "x", Message: "invalid amount"})
	}
	assert.True(t, stats.HasErrors())
	assert.Len(t, stats.GetSampleErrors(3), 3)
	assert.Equal(t, "line 2 (amount='x'): invalid amount", stats.GetSampleErrors(1)[0])
}

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240408120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240401120000[0:GMT]
<DTEND>20240407120000[0:GMT]
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240402120000[0:GMT]
<TRNAMT>1200.00
<FITID>OFX-1
<NAME>WINRED DEPOSIT
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240403120000[0:GMT]
<TRNAMT>-75.25
<FITID>OFX-2
<NAME>DEBIT
<MEMO>PRINT SHOP INVOICE 88
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240403120000[0:GMT]
<TRNAMT>-75.25
<FITID>OFX-2
<NAME>DEBIT
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>5000.00
<DTASOF>20240407120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestParseOFX(t *testing.T) {
	bank, err := ParseOFX(context.Background(), strings.NewReader(sampleOFX), "P2026")
	require.NoError(t, err)
	require.Len(t, bank, 2, "duplicate FITIDs are dropped")

	assert.Equal(t, "OFX-1", bank[0].ID)
	assert.Equal(t, "2024-04-02", bank[0].Date.String())
	assert.True(t, bank[0].Amount.Equal(decimal.RequireFromString("1200")))
	assert.Equal(t, "WINRED DEPOSIT", bank[0].Description)
	assert.Equal(t, "P2026", bank[0].AccountCode)

	assert.True(t, bank[1].Amount.Equal(decimal.RequireFromString("-75.25")))
	assert.Equal(t, "DEBIT", bank[1].Description)
}

func TestParseOFXRejectsGarbage(t *testing.T) {
	_, err := ParseOFX(context.Background(), strings.NewReader("not an ofx file"), "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidFormat))
}
