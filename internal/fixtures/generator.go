// Package fixtures generates paired ledger and bank CSV files with a known
// reconciliation outcome, for demos, load tests and regression tests.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
)

// Scenario selects which kinds of rows a dataset contains
type Scenario string

const (
	// ScenarioMatched pairs every ledger row with a bank row on the same
	// date for the same amount.
	ScenarioMatched Scenario = "matched"

	// ScenarioDrift posts each bank row one to three days after its ledger row
	ScenarioDrift Scenario = "drift"

	// ScenarioBatch rolls several contributions into one bank deposit
	ScenarioBatch Scenario = "batch"

	// ScenarioMixed combines the above with ledger-only rows and bank-only
	// fees that should end up as NRIT.
	ScenarioMixed Scenario = "mixed"
)

// Scenarios lists the accepted scenario names
var Scenarios = []Scenario{ScenarioMatched, ScenarioDrift, ScenarioBatch, ScenarioMixed}

// ParseScenario resolves a scenario name
func ParseScenario(s string) (Scenario, error) {
	for _, sc := range Scenarios {
		if string(sc) == s {
			return sc, nil
		}
	}
	return "", errors.Validation(errors.CodeInvalidFormat, "scenario", s).
		WithSuggestion("use one of: matched, drift, batch, mixed")
}

var (
	ledgerHeader = []string{"id", "date", "moneyType", "paymentType", "amount", "group", "fundCode", "lineNumber", "description"}
	bankHeader   = []string{"id", "date", "description", "amount"}

	fundCodes     = []string{"P2026", "G2026"}
	receiptLines  = []string{"SA11AI", "SA11B", "SA11C", "SA15"}
	paymentTypes  = []string{"CH", "EFT", "CC"}
	disburseLines = []string{"SB21B", "SB23", "SB29"}
)

// Generator builds datasets. The same Seed always yields the same rows.
type Generator struct {
	Seed      int64
	Count     int
	Start     models.Date
	Days      int
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// DefaultGenerator covers the first week of April 2024 with 50 rows
func DefaultGenerator(seed int64) *Generator {
	return &Generator{
		Seed:      seed,
		Count:     50,
		Start:     models.MustParseDate("2024-04-01"),
		Days:      7,
		MinAmount: decimal.NewFromInt(5),
		MaxAmount: decimal.NewFromInt(5000),
	}
}

// Validate checks the generator settings
func (g *Generator) Validate() error {
	switch {
	case g.Count < 1:
		return errors.Validation(errors.CodeInvalidFormat, "count", g.Count)
	case g.Days < 1:
		return errors.Validation(errors.CodeInvalidFormat, "days", g.Days)
	case g.Start.IsZero():
		return errors.Validation(errors.CodeMissingField, "start", "")
	case !g.MinAmount.IsPositive() || g.MaxAmount.LessThan(g.MinAmount):
		return errors.Validation(errors.CodeInvalidAmount, "amount range", g.MinAmount.String()+".."+g.MaxAmount.String())
	}
	return nil
}

// Dataset is one generated ledger and bank pair plus the outcome a correct
// reconciliation reaches.
type Dataset struct {
	Scenario Scenario
	Ledger   [][]string
	Bank     [][]string

	// Expected maps each ledger id that has a counterpart to its bank ids
	Expected map[string][]string

	// Unmatched ledger ids have no bank counterpart
	Unmatched []string

	// Nrit bank ids are fees and interest with no ledger counterpart
	Nrit []string
}

// Generate builds a dataset for scenario
func (g *Generator) Generate(scenario Scenario) (*Dataset, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	b := &builder{
		gen: g,
		rng: rand.New(rand.NewSource(g.Seed)),
		ds: &Dataset{
			Scenario: scenario,
			Ledger:   [][]string{ledgerHeader},
			Bank:     [][]string{bankHeader},
			Expected: make(map[string][]string),
		},
	}

	switch scenario {
	case ScenarioMatched:
		for i := 0; i < g.Count; i++ {
			b.pair(0)
		}
	case ScenarioDrift:
		for i := 0; i < g.Count; i++ {
			b.pair(1 + b.rng.Intn(3))
		}
	case ScenarioBatch:
		for b.ledgerRows() < g.Count {
			b.batch(2 + b.rng.Intn(3))
		}
	case ScenarioMixed:
		for b.ledgerRows() < g.Count {
			switch roll := b.rng.Intn(10); {
			case roll < 5:
				b.pair(0)
			case roll < 7:
				b.pair(1 + b.rng.Intn(2))
			case roll < 8:
				b.batch(2 + b.rng.Intn(2))
			case roll < 9:
				b.ledgerOnly()
			default:
				b.bankFee()
			}
		}
	default:
		return nil, errors.Validation(errors.CodeInvalidFormat, "scenario", string(scenario))
	}
	return b.ds, nil
}

type builder struct {
	gen *Generator
	rng *rand.Rand
	ds  *Dataset
	seq int
}

func (b *builder) ledgerRows() int { return len(b.ds.Ledger) - 1 }

func (b *builder) next() int {
	b.seq++
	return b.seq
}

// amount returns a value from the configured range, shifted by whole spans
// past the first hundred rows. The cents and the shift encode n so no two
// generated amounts collide.
func (b *builder) amount(n int) decimal.Decimal {
	lo := b.gen.MinAmount.IntPart()
	span := b.gen.MaxAmount.IntPart() - lo
	if span < 1 {
		span = 1
	}
	dollars := lo + b.rng.Int63n(span)
	return decimal.NewFromInt(dollars).Add(decimal.New(int64(n%100), -2)).
		Add(decimal.NewFromInt(int64(n / 100 * int(span))))
}

func (b *builder) date() models.Date {
	return b.gen.Start.AddDays(b.rng.Intn(b.gen.Days))
}

func pick(rng *rand.Rand, from []string) string { return from[rng.Intn(len(from))] }

func (b *builder) ledgerRow(id string, date models.Date, receipt bool, amount decimal.Decimal, group string) {
	moneyType, line := models.MoneyTypeContribution, pick(b.rng, receiptLines)
	if !receipt {
		moneyType, line = models.MoneyTypeDisbursement, pick(b.rng, disburseLines)
		amount = amount.Neg()
	}
	b.ds.Ledger = append(b.ds.Ledger, []string{
		id, date.String(), moneyType.String(), pick(b.rng, paymentTypes),
		amount.StringFixed(2), group, pick(b.rng, fundCodes), line, "",
	})
}

func (b *builder) bankRow(id string, date models.Date, description string, amount decimal.Decimal) {
	b.ds.Bank = append(b.ds.Bank, []string{id, date.String(), description, amount.StringFixed(2)})
}

// pair adds one ledger row and its bank counterpart, drift days later
func (b *builder) pair(drift int) {
	n := b.next()
	lid, bid := fmt.Sprintf("L%05d", n), fmt.Sprintf("B%05d", n)
	date := b.date()
	receipt := b.rng.Intn(4) != 0
	amount := b.amount(n)

	b.ledgerRow(lid, date, receipt, amount, "")
	description := "DEPOSIT"
	if !receipt {
		amount = amount.Neg()
		description = "CHECK PAID"
	}
	b.bankRow(bid, date.AddDays(drift), fmt.Sprintf("%s %d", description, n), amount)
	b.ds.Expected[lid] = []string{bid}
}

// batch adds size contributions sharing a group and one deposit for their sum
func (b *builder) batch(size int) {
	n := b.next()
	group := fmt.Sprintf("BATCH-%04d", n)
	bid := fmt.Sprintf("B%05d", n)
	date := b.date()
	total := decimal.Zero
	var members []string
	for i := 0; i < size; i++ {
		m := b.next()
		lid := fmt.Sprintf("L%05d", m)
		amount := b.amount(m)
		b.ledgerRow(lid, date, true, amount, group)
		total = total.Add(amount)
		members = append(members, lid)
	}
	b.bankRow(bid, date, "WINRED BATCH "+group, total)
	for _, lid := range members {
		b.ds.Expected[lid] = []string{bid}
	}
}

func (b *builder) ledgerOnly() {
	n := b.next()
	lid := fmt.Sprintf("L%05d", n)
	b.ledgerRow(lid, b.date(), true, b.amount(n), "")
	b.ds.Unmatched = append(b.ds.Unmatched, lid)
}

func (b *builder) bankFee() {
	n := b.next()
	bid := fmt.Sprintf("B%05d", n)
	fee := decimal.New(int64(100+b.rng.Intn(4900)), -2)
	if b.rng.Intn(2) == 0 {
		b.bankRow(bid, b.date(), "SERVICE CHARGE", fee.Neg())
	} else {
		b.bankRow(bid, b.date(), "INTEREST", fee)
	}
	b.ds.Nrit = append(b.ds.Nrit, bid)
}

// WriteTo writes ledger.csv and bank.csv into dir and returns their paths
func (d *Dataset) WriteTo(dir string) (ledgerPath, bankPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.Persistence("create fixture directory", dir, err)
	}
	ledgerPath = filepath.Join(dir, "ledger.csv")
	bankPath = filepath.Join(dir, "bank.csv")
	if err := writeCSVFile(ledgerPath, d.Ledger); err != nil {
		return "", "", err
	}
	if err := writeCSVFile(bankPath, d.Bank); err != nil {
		return "", "", err
	}
	return ledgerPath, bankPath, nil
}

func writeCSVFile(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Persistence("create fixture file", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return errors.Persistence("write fixture file", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.Persistence("close fixture file", path, err)
	}
	return nil
}

// WriteCSV writes rows to w
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// Discrepancy is one difference between a reconciliation and the expected
// outcome
type Discrepancy struct {
	LedgerID string
	Want     []string
	Got      []string
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s: want %v, got %v", d.LedgerID, d.Want, d.Got)
}

// Verify compares the ledger-to-bank pairing a reconciliation produced with
// the expected one. Unmatched ledger ids must not appear in got.
func (d *Dataset) Verify(got map[string][]string) []Discrepancy {
	var out []Discrepancy
	for lid, want := range d.Expected {
		if !sameIDs(want, got[lid]) {
			out = append(out, Discrepancy{LedgerID: lid, Want: want, Got: got[lid]})
		}
	}
	for _, lid := range d.Unmatched {
		if len(got[lid]) > 0 {
			out = append(out, Discrepancy{LedgerID: lid, Got: got[lid]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a = append([]string(nil), a...)
	b = append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
