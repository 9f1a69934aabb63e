package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// HeuristicSuggester proposes pairs locally with a weighted amount/date/sign
// score. It is the collaborator used when no AI service is configured.
type HeuristicSuggester struct {
	Config *MatchingConfig
}

// NewHeuristicSuggester creates a suggester with config, or the defaults
func NewHeuristicSuggester(config *MatchingConfig) *HeuristicSuggester {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	return &HeuristicSuggester{Config: config}
}

// ScoredMatch is one scored ledger/bank combination
type ScoredMatch struct {
	Ledger          models.LedgerRecord
	Bank            []*BankEntry
	MatchType       MatchType
	ConfidenceScore float64
	Reasons         []string
}

// Pair converts the match to the collaborator output shape
func (m *ScoredMatch) Pair() models.MatchedPair {
	ids := make([]string, 0, len(m.Bank))
	for _, b := range m.Bank {
		ids = append(ids, b.Record.ID)
	}
	return models.MatchedPair{
		LedgerTransactionID: m.Ledger.ID,
		BankTransactionIDs:  ids,
		ConfidenceScore:     math.Round(m.ConfidenceScore*10000) / 10000,
		Reasoning:           strings.Join(m.Reasons, "; "),
	}
}

// Suggest implements Suggester. Each bank row is used at most once; ledger
// rows are considered in input order and take their best-scoring candidate.
func (h *HeuristicSuggester) Suggest(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) ([]models.MatchedPair, error) {
	if err := h.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	index := NewBankIndex(bank)
	used := make(map[string]bool)
	var pairs []models.MatchedPair

	for _, rec := range ledger {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date, err := models.ParseDate(rec.Date)
		if err != nil {
			continue
		}
		amount := decimal.NewFromFloat(rec.Amount)

		best := h.bestSingle(rec, amount, date, index, used)
		if best == nil && h.Config.MaxAggregateSize > 1 {
			best = h.bestAggregate(rec, amount, date, index, used)
		}
		if best == nil {
			continue
		}

		for _, b := range best.Bank {
			used[b.Record.ID] = true
		}
		pairs = append(pairs, best.Pair())
	}

	return pairs, nil
}

// FindMatches scores every unused single candidate for one ledger record,
// best first. Candidates below MinConfidenceScore are omitted.
func (h *HeuristicSuggester) FindMatches(rec models.LedgerRecord, bank []models.BankRecord) ([]*ScoredMatch, error) {
	date, err := models.ParseDate(rec.Date)
	if err != nil {
		return nil, err
	}
	index := NewBankIndex(bank)
	return h.scoreCandidates(rec, decimal.NewFromFloat(rec.Amount), date, index.GetCandidates(decimal.NewFromFloat(rec.Amount), date, h.Config), nil), nil
}

func (h *HeuristicSuggester) bestSingle(rec models.LedgerRecord, amount decimal.Decimal, date models.Date, index *BankIndex, used map[string]bool) *ScoredMatch {
	scores := h.scoreCandidates(rec, amount, date, index.GetCandidates(amount, date, h.Config), used)
	if len(scores) == 0 {
		return nil
	}
	return scores[0]
}

func (h *HeuristicSuggester) scoreCandidates(rec models.LedgerRecord, amount decimal.Decimal, date models.Date, candidates []*BankEntry, used map[string]bool) []*ScoredMatch {
	var results []*ScoredMatch
	for _, entry := range candidates {
		if used[entry.Record.ID] {
			continue
		}
		result := h.scoreMatch(rec, amount, date, []*BankEntry{entry})
		if result.ConfidenceScore >= h.Config.MinConfidenceScore {
			results = append(results, result)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ConfidenceScore > results[j].ConfidenceScore
	})
	return results
}

// bestAggregate looks for 2..MaxAggregateSize unused bank rows in the date
// window, on the same side of zero as the ledger amount, summing exactly to it.
func (h *HeuristicSuggester) bestAggregate(rec models.LedgerRecord, amount decimal.Decimal, date models.Date, index *BankIndex, used map[string]bool) *ScoredMatch {
	var pool []*BankEntry
	for _, entry := range index.GetByDateWindow(date, h.Config) {
		if used[entry.Record.ID] || entry.Amount.IsZero() {
			continue
		}
		if entry.Amount.IsNegative() != amount.IsNegative() {
			continue
		}
		if entry.Amount.Abs().GreaterThan(amount.Abs()) {
			continue
		}
		pool = append(pool, entry)
	}
	if len(pool) > h.Config.MaxCandidatesPerTransaction {
		pool = pool[:h.Config.MaxCandidatesPerTransaction]
	}

	var best *ScoredMatch
	for size := 2; size <= h.Config.MaxAggregateSize && size <= len(pool); size++ {
		for _, combo := range combinations(pool, size) {
			sum := decimal.Zero
			for _, e := range combo {
				sum = sum.Add(e.Amount)
			}
			if !sum.Equal(amount) {
				continue
			}
			result := h.scoreMatch(rec, amount, date, combo)
			if result.ConfidenceScore < h.Config.MinConfidenceScore {
				continue
			}
			if best == nil || result.ConfidenceScore > best.ConfidenceScore {
				best = result
			}
		}
		if best != nil {
			// fewer parts is always preferred
			return best
		}
	}
	return nil
}

// combinations returns every k-element combination of entries, preserving order
func combinations(entries []*BankEntry, k int) [][]*BankEntry {
	var out [][]*BankEntry
	current := make([]*BankEntry, 0, k)

	var walk func(start int)
	walk = func(start int) {
		if len(current) == k {
			out = append(out, append([]*BankEntry(nil), current...))
			return
		}
		for i := start; i <= len(entries)-(k-len(current)); i++ {
			current = append(current, entries[i])
			walk(i + 1)
			current = current[:len(current)-1]
		}
	}
	walk(0)
	return out
}

// scoreMatch calculates the weighted score of a ledger row against one or
// more bank rows.
func (h *HeuristicSuggester) scoreMatch(rec models.LedgerRecord, amount decimal.Decimal, date models.Date, bank []*BankEntry) *ScoredMatch {
	sum := decimal.Zero
	dateScore := 0.0
	signScore := 1.0
	for _, b := range bank {
		sum = sum.Add(b.Amount)
		dateScore += h.calculateDateScore(date, b.Date)
		if h.Config.EnableSignMatching && b.Amount.IsNegative() != amount.IsNegative() {
			signScore = 0.0
		}
	}
	dateScore /= float64(len(bank))

	amountScore := h.calculateAmountScore(amount, sum)

	weights := h.Config.Weights
	confidence := amountScore*weights.AmountWeight + dateScore*weights.DateWeight + signScore*weights.SignWeight

	// each extra part costs a little confidence
	confidence -= 0.02 * float64(len(bank)-1)
	confidence = math.Max(0.0, math.Min(1.0, confidence))

	result := &ScoredMatch{
		Ledger:          rec,
		Bank:            bank,
		ConfidenceScore: confidence,
	}
	result.MatchType = h.determineMatchType(confidence, amountScore, dateScore, len(bank))
	result.Reasons = h.generateMatchReasons(amountScore, dateScore, signScore, len(bank))
	return result
}

// calculateAmountScore is 1 for an exact match, decaying linearly to 0 at the
// edge of the tolerance.
func (h *HeuristicSuggester) calculateAmountScore(ledgerAmount, bankAmount decimal.Decimal) float64 {
	if ledgerAmount.Equal(bankAmount) {
		return 1.0
	}

	tolerance := h.Config.GetAmountTolerance(ledgerAmount)
	if tolerance.IsZero() {
		return 0.0
	}

	difference := ledgerAmount.Sub(bankAmount).Abs()
	if difference.LessThanOrEqual(tolerance) {
		diffRatio := difference.Div(tolerance).InexactFloat64()
		return math.Max(0.0, 1.0-diffRatio)
	}
	return 0.0
}

// calculateDateScore is 1 on the same date, decaying linearly to 0 past the tolerance
func (h *HeuristicSuggester) calculateDateScore(a, b models.Date) float64 {
	if a.Equal(b) {
		return 1.0
	}
	if h.Config.DateToleranceDays == 0 || !h.Config.IsWithinDateTolerance(a, b) {
		return 0.0
	}

	distance := float64(h.Config.DayDistance(a, b))
	return math.Max(0.0, 1.0-distance/float64(h.Config.DateToleranceDays+1))
}

func (h *HeuristicSuggester) determineMatchType(confidence, amountScore, dateScore float64, parts int) MatchType {
	if parts > 1 && confidence >= h.Config.MinConfidenceScore {
		return MatchAggregate
	}
	if confidence >= 0.95 && amountScore == 1.0 && dateScore == 1.0 {
		return MatchExact
	}
	if confidence >= 0.85 {
		return MatchClose
	}
	if confidence >= h.Config.MinConfidenceScore {
		return MatchPossible
	}
	return MatchNone
}

func (h *HeuristicSuggester) generateMatchReasons(amountScore, dateScore, signScore float64, parts int) []string {
	var reasons []string

	switch {
	case parts > 1 && amountScore == 1.0:
		reasons = append(reasons, fmt.Sprintf("%d bank deposits sum to the ledger amount", parts))
	case amountScore == 1.0:
		reasons = append(reasons, "Exact amount match")
	case amountScore > 0.8:
		reasons = append(reasons, "Close amount match")
	case amountScore > 0.0:
		reasons = append(reasons, "Amount within tolerance")
	}

	switch {
	case dateScore == 1.0:
		reasons = append(reasons, "Same date")
	case dateScore > 0.5:
		reasons = append(reasons, "Close date match")
	case dateScore > 0.0:
		reasons = append(reasons, "Date within tolerance")
	}

	if h.Config.EnableSignMatching {
		if signScore == 1.0 {
			reasons = append(reasons, "Direction matches")
		} else {
			reasons = append(reasons, "Direction mismatch")
		}
	}

	return reasons
}
