package parsers

import (
	"context"
	"io"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
)

var ledgerColumns = []Column{
	{Name: "id", Aliases: []string{"transactionId", "trxId", "crimsonId"}, Required: true},
	{Name: "date", Aliases: []string{"transactionDate", "postedDate", "receiptDate"}, Required: true},
	{Name: "amount", Required: true},
	{Name: "moneyType", Aliases: []string{"type"}},
	{Name: "paymentType", Aliases: []string{"payment", "paymentMethod"}},
	{Name: "group", Aliases: []string{"batch", "batchId", "groupId"}},
	{Name: "fundCode", Aliases: []string{"fund"}},
	{Name: "accountCode", Aliases: []string{"account"}},
	{Name: "lineNumber", Aliases: []string{"line", "fecLine"}},
	{Name: "description", Aliases: []string{"memo", "note"}},
}

// LedgerParser reads internal bookkeeping exports
type LedgerParser struct {
	*BaseParser
}

// NewLedgerParser creates a LedgerParser; a nil config uses DefaultParseConfig
func NewLedgerParser(config *ParseConfig) *LedgerParser {
	return &LedgerParser{BaseParser: NewBaseParser(config, "ledger_parser")}
}

// Parse reads ledger transactions from r. source names the input in errors.
func (lp *LedgerParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.LedgerTransaction, *ParseStats, error) {
	return parseRows(ctx, lp.BaseParser, r, source, ledgerColumns, lp.parseRecord)
}

// ParseFile opens path and parses it
func (lp *LedgerParser) ParseFile(ctx context.Context, path string) ([]*models.LedgerTransaction, *ParseStats, error) {
	file, err := lp.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return lp.Parse(ctx, file, path)
}

func (lp *LedgerParser) parseRecord(record []string, parseCtx *ParseContext) (*models.LedgerTransaction, *ParseError) {
	id := parseCtx.Field(record, "id")
	if id == "" {
		return nil, fieldError(parseCtx, errors.CodeMissingField, "id", id, nil)
	}

	rawDate := parseCtx.Field(record, "date")
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return nil, fieldError(parseCtx, errors.CodeInvalidDate, "date", rawDate, err)
	}

	rawAmount := parseCtx.Field(record, "amount")
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, fieldError(parseCtx, errors.CodeInvalidAmount, "amount", rawAmount, err)
	}

	var moneyType models.MoneyType
	if raw := parseCtx.Field(record, "moneyType"); raw != "" {
		moneyType, err = models.ParseMoneyType(raw)
		if err != nil {
			return nil, fieldError(parseCtx, errors.CodeInvalidFormat, "moneyType", raw, err)
		}
	}

	tx := &models.LedgerTransaction{
		ID:          id,
		Date:        date,
		MoneyType:   moneyType,
		PaymentType: parseCtx.Field(record, "paymentType"),
		Amount:      amount,
		Group:       parseCtx.Field(record, "group"),
		FundCode:    parseCtx.Field(record, "fundCode"),
		AccountCode: parseCtx.Field(record, "accountCode"),
		LineNumber:  parseCtx.Field(record, "lineNumber"),
		Description: parseCtx.Field(record, "description"),
	}
	if err := tx.Validate(); err != nil {
		return nil, &ParseError{
			Line:    parseCtx.LineNumber,
			Field:   "transaction",
			Value:   id,
			Message: "validation failed",
			Err:     errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidFormat, err.Error()),
		}
	}
	return tx, nil
}
