// Package parsers imports ledger and bank transactions from CSV exports and
// bank OFX/QFX statements.
//
// CSV headers are matched case-insensitively and ignoring spaces, underscores
// and hyphens, so "Money Type", "money_type" and "moneyType" all resolve to
// the same column. Each column also accepts a few common aliases.
//
// Rows that fail to parse are skipped and reported in ParseStats; only
// unreadable input or missing required columns fail the whole parse.
//
// Example usage:
//
//	parser := NewLedgerParser(nil)
//	ledger, stats, err := parser.ParseFile(ctx, "ledger.csv")
//	if stats.HasErrors() {
//		log.Println(stats.GetSampleErrors(3))
//	}
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// ParseError describes one rejected row
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds CSV reader settings
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
}

// DefaultParseConfig returns the settings used for both ledger and bank exports
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		Comment:          0,
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1000000,
	}
}

// Column is a logical column with the header names it may appear under
type Column struct {
	Name     string
	Aliases  []string
	Required bool
}

// BaseParser holds the CSV plumbing shared by the ledger and bank parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a BaseParser; a nil config uses DefaultParseConfig
func NewBaseParser(config *ParseConfig, component string) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent(component),
	}
}

// OpenFile opens path for reading
func (bp *BaseParser) OpenFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open file")
		return nil, errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat,
			fmt.Sprintf("cannot open %s", path)).
			WithContext("file", path).
			WithSuggestion("Check that the file exists and is readable")
	}
	return file, nil
}

// NewReader wraps r in a csv.Reader configured from the parser settings.
// A UTF-8 byte order mark at the start of the input is dropped.
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	buffered := bufio.NewReader(r)
	if bom, err := buffered.Peek(3); err == nil && string(bom) == "\xef\xbb\xbf" {
		_, _ = buffered.Discard(3)
	}

	reader := csv.NewReader(buffered)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

// ReadHeaders reads the header row and resolves columns against it
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns []Column) error {
	headers, err := reader.Read()
	if err == io.EOF {
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 1, "headers", "",
			fmt.Errorf("file is empty"))
	}
	if err != nil {
		return errors.ParseError(errors.CodeInvalidFormat, parseCtx.Source, 1, "headers", "", err)
	}
	parseCtx.LineNumber = 1
	parseCtx.Headers = headers

	byName := make(map[string]int, len(headers))
	for i, h := range headers {
		key := normalizeHeader(h)
		if _, dup := byName[key]; !dup {
			byName[key] = i
		}
	}

	for _, col := range columns {
		index := -1
		for _, name := range append([]string{col.Name}, col.Aliases...) {
			if i, ok := byName[normalizeHeader(name)]; ok {
				index = i
				break
			}
		}
		if index < 0 {
			if col.Required {
				bp.logger.WithFields(logger.Fields{
					"column":  col.Name,
					"headers": headers,
				}).Error("Required column missing")
				return errors.ParseError(errors.CodeMissingColumn, parseCtx.Source, 1, col.Name, "", nil).
					WithContext("available_headers", headers)
			}
			continue
		}
		parseCtx.HeaderMap[col.Name] = index
	}
	return nil
}

// ReadRecord returns the next non-empty record, or io.EOF
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			var csvErr *csv.ParseError
			if stderrors.As(err, &csvErr) {
				parseCtx.LineNumber = csvErr.Line
			}
			return nil, err
		}
		parseCtx.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		for i, field := range record {
			if !utf8.ValidString(field) {
				return nil, fmt.Errorf("field %d is not valid UTF-8", i+1)
			}
			if bp.config.MaxFieldSize > 0 && len(field) > bp.config.MaxFieldSize {
				return nil, fmt.Errorf("field %d exceeds maximum size of %d bytes", i+1, bp.config.MaxFieldSize)
			}
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// normalizeHeader lowercases and drops spaces, underscores and hyphens
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '_', '-', '\ufeff':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseContext tracks position and column layout while reading one input
type ParseContext struct {
	ctx        context.Context
	Source     string
	Headers    []string
	HeaderMap  map[string]int
	LineNumber int
}

// NewParseContext creates a context for the named source
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		ctx:       ctx,
		Source:    source,
		HeaderMap: make(map[string]int),
	}
}

// Field returns the trimmed value of a logical column, or "" when the
// column is absent from the file or the row is short
func (pc *ParseContext) Field(record []string, column string) string {
	index, ok := pc.HeaderMap[column]
	if !ok || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// HasColumn reports whether the file carries the logical column
func (pc *ParseContext) HasColumn(column string) bool {
	_, ok := pc.HeaderMap[column]
	return ok
}

// IsCancelled reports whether the parse should stop
func (pc *ParseContext) IsCancelled() bool {
	return pc.ctx.Err() != nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples error messages
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// ParseAmount accepts plain decimals plus the usual export decorations:
// a leading currency symbol, thousands separators and accounting-style
// parentheses for negatives.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.TrimSpace(s)

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// parseRows drives the read loop shared by the CSV parsers: headers first,
// then one build call per non-empty record. Row failures go to stats.
func parseRows[T interface{ GetID() string }](
	ctx context.Context,
	bp *BaseParser,
	r io.Reader,
	source string,
	columns []Column,
	build func(record []string, parseCtx *ParseContext) (T, *ParseError),
) ([]T, *ParseStats, error) {
	log := bp.logger.WithField("source", source)
	log.Info("Starting parse")

	reader := bp.NewReader(r)
	parseCtx := NewParseContext(ctx, source)
	stats := NewParseStats()

	if err := bp.ReadHeaders(reader, parseCtx, columns); err != nil {
		return nil, stats, err
	}

	var out []T
	seen := make(map[string]int)
	for {
		if parseCtx.IsCancelled() {
			log.Warn("Parse was cancelled")
			return out, stats, errors.Wrap(parseCtx.ctx.Err(), errors.CategoryInternal,
				errors.CodeUnexpectedError, "parsing cancelled")
		}

		record, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   "record",
				Message: "unreadable record",
				Err:     errors.ParseError(errors.CodeInvalidFormat, source, parseCtx.LineNumber, "record", "", err),
			})
			continue
		}
		stats.RecordsParsed++

		tx, perr := build(record, parseCtx)
		if perr != nil {
			stats.AddError(perr)
			continue
		}

		id := tx.GetID()
		if first, dup := seen[id]; dup {
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   "id",
				Value:   id,
				Message: fmt.Sprintf("duplicate id, first seen on line %d", first),
				Err:     errors.Validation(errors.CodeDuplicateID, "id", id),
			})
			continue
		}
		seen[id] = parseCtx.LineNumber

		out = append(out, tx)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	log.WithFields(logger.Fields{
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Info("Parse completed")
	if stats.HasErrors() {
		log.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}
	return out, stats, nil
}

// fieldError builds the ParseError for a bad value in a named column
func fieldError(parseCtx *ParseContext, code errors.ErrorCode, field, value string, err error) *ParseError {
	return &ParseError{
		Line:    parseCtx.LineNumber,
		Field:   field,
		Value:   value,
		Message: "invalid " + field,
		Err:     errors.ParseError(code, parseCtx.Source, parseCtx.LineNumber, field, value, err),
	}
}
