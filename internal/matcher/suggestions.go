package matcher

import (
	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// SuggestionSet is the ordered list of live suggestions. A ledger id, and
// likewise a bank id, appears in at most one pair.
type SuggestionSet struct {
	pairs  []models.MatchedPair
	ledger map[string]int
	bank   map[string]int
}

// NewSuggestionSet returns an empty set
func NewSuggestionSet() *SuggestionSet {
	return &SuggestionSet{
		ledger: make(map[string]int),
		bank:   make(map[string]int),
	}
}

// Replace swaps in a new batch and returns the pairs that were dropped for
// overlapping an earlier pair in the same batch. Pairs without bank ids are
// dropped as well.
func (s *SuggestionSet) Replace(pairs []models.MatchedPair) []models.MatchedPair {
	s.Clear()

	var rejected []models.MatchedPair
	for _, p := range pairs {
		if !s.fits(p) {
			rejected = append(rejected, p.Clone())
			continue
		}
		idx := len(s.pairs)
		s.pairs = append(s.pairs, p.Clone())
		s.ledger[p.LedgerTransactionID] = idx
		for _, id := range p.BankTransactionIDs {
			s.bank[id] = idx
		}
	}
	return rejected
}

func (s *SuggestionSet) fits(p models.MatchedPair) bool {
	if p.LedgerTransactionID == "" || len(p.BankTransactionIDs) == 0 {
		return false
	}
	if _, taken := s.ledger[p.LedgerTransactionID]; taken {
		return false
	}
	seen := make(map[string]struct{}, len(p.BankTransactionIDs))
	for _, id := range p.BankTransactionIDs {
		if id == "" {
			return false
		}
		if _, taken := s.bank[id]; taken {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

// Clear discards every suggestion
func (s *SuggestionSet) Clear() {
	s.pairs = nil
	s.ledger = make(map[string]int)
	s.bank = make(map[string]int)
}

// Len returns the number of live suggestions
func (s *SuggestionSet) Len() int { return len(s.pairs) }

// Pairs returns a copy of the live suggestions in order
func (s *SuggestionSet) Pairs() []models.MatchedPair {
	out := make([]models.MatchedPair, 0, len(s.pairs))
	for _, p := range s.pairs {
		out = append(out, p.Clone())
	}
	return out
}

func (s *SuggestionSet) ReferencesLedger(id string) bool {
	_, ok := s.ledger[id]
	return ok
}

func (s *SuggestionSet) ReferencesBank(id string) bool {
	_, ok := s.bank[id]
	return ok
}

// MeanConfidence averages the confidence of the live suggestions
func (s *SuggestionSet) MeanConfidence() float64 {
	if len(s.pairs) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, p := range s.pairs {
		sum = sum.Add(decimal.NewFromFloat(p.ConfidenceScore))
	}
	mean, _ := sum.Div(decimal.NewFromInt(int64(len(s.pairs)))).Round(4).Float64()
	return mean
}

// FlattenedIDs is every id referenced by a suggestion set
type FlattenedIDs struct {
	LedgerIDs []string
	BankIDs   []string
}

// Flatten collects every ledger id and every bank id, without duplicates, in
// suggestion order.
func (s *SuggestionSet) Flatten() FlattenedIDs {
	return FlattenPairs(s.pairs)
}

// FlattenPairs is Flatten over an arbitrary list of pairs
func FlattenPairs(pairs []models.MatchedPair) FlattenedIDs {
	var out FlattenedIDs
	seenLedger := make(map[string]struct{})
	seenBank := make(map[string]struct{})
	for _, p := range pairs {
		if _, ok := seenLedger[p.LedgerTransactionID]; !ok {
			seenLedger[p.LedgerTransactionID] = struct{}{}
			out.LedgerIDs = append(out.LedgerIDs, p.LedgerTransactionID)
		}
		for _, id := range p.BankTransactionIDs {
			if _, ok := seenBank[id]; !ok {
				seenBank[id] = struct{}{}
				out.BankIDs = append(out.BankIDs, id)
			}
		}
	}
	return out
}
