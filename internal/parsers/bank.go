package parsers

import (
	"context"
	"io"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
)

var bankColumns = []Column{
	{Name: "id", Aliases: []string{"transactionId", "reference", "fitid"}, Required: true},
	{Name: "date", Aliases: []string{"postedDate", "postingDate", "transactionDate"}, Required: true},
	{Name: "amount", Required: true},
	{Name: "description", Aliases: []string{"memo", "payee", "name", "details"}},
	{Name: "accountCode", Aliases: []string{"account"}},
}

// BankParser reads bank statement CSV exports
type BankParser struct {
	*BaseParser
}

// NewBankParser creates a BankParser; a nil config uses DefaultParseConfig
func NewBankParser(config *ParseConfig) *BankParser {
	return &BankParser{BaseParser: NewBaseParser(config, "bank_parser")}
}

// Parse reads bank transactions from r. source names the input in errors.
func (bp *BankParser) Parse(ctx context.Context, r io.Reader, source string) ([]*models.BankTransaction, *ParseStats, error) {
	return parseRows(ctx, bp.BaseParser, r, source, bankColumns, bp.parseRecord)
}

// ParseFile opens path and parses it
func (bp *BankParser) ParseFile(ctx context.Context, path string) ([]*models.BankTransaction, *ParseStats, error) {
	file, err := bp.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return bp.Parse(ctx, file, path)
}

func (bp *BankParser) parseRecord(record []string, parseCtx *ParseContext) (*models.BankTransaction, *ParseError) {
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

	return &models.BankTransaction{
		ID:          id,
		Date:        date,
		Description: parseCtx.Field(record, "description"),
		Amount:      amount,
		AccountCode: parseCtx.Field(record, "accountCode"),
	}, nil
}
