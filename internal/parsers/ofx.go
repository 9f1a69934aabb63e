package parsers

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

var (
	severityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML exports sometimes drop the closing bracket of a bare tag line
	tagFix = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityFix.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFix.ReplaceAllString(content, "$1>")
}

// ParseOFX reads bank and credit card statement transactions from an
// OFX/QFX document. FITID becomes the transaction id and amounts keep their
// sign, so debits are negative. accountCode is stamped on every row.
func ParseOFX(ctx context.Context, r io.Reader, accountCode string) ([]*models.BankTransaction, error) {
	log := logger.GetGlobalLogger().WithComponent("ofx_parser")

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "failed to read OFX input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "failed to parse OFX document").
			WithSuggestion("Export the statement again as OFX or QFX")
	}

	var lists []*ofxgo.TransactionList
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}

	var out []*models.BankTransaction
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, ofxTx := range list.Transactions {
			tx, err := convertOFX(ofxTx, accountCode)
			if err != nil {
				log.WithError(err).WithField("fitid", string(ofxTx.FiTID)).Warn("Skipping OFX transaction")
				continue
			}
			if seen[tx.ID] {
				log.WithField("fitid", tx.ID).Warn("Skipping duplicate FITID")
				continue
			}
			seen[tx.ID] = true
			out = append(out, tx)
		}
	}

	log.WithFields(logger.Fields{
		"transactions": len(out),
		"statements":   len(lists),
	}).Info("Parsed OFX document")
	return out, nil
}

func convertOFX(ofxTx ofxgo.Transaction, accountCode string) (*models.BankTransaction, error) {
	id := strings.TrimSpace(string(ofxTx.FiTID))
	if id == "" {
		return nil, fmt.Errorf("transaction has no FITID")
	}
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(2))
	if err != nil {
		return nil, err
	}
	tx := &models.BankTransaction{
		ID:          id,
		Date:        models.DateOf(ofxTx.DtPosted.Time),
		Description: ofxDescription(ofxTx),
		Amount:      amount,
		AccountCode: accountCode,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// ofxDescription prefers the payee name, then NAME, then MEMO
func ofxDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	if name := strings.TrimSpace(string(tx.Name)); name != "" {
		return name
	}
	return strings.TrimSpace(string(tx.Memo))
}
