package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// BankEntry is a bank record with its amount and date parsed once
type BankEntry struct {
	Record models.BankRecord
	Amount decimal.Decimal
	Date   models.Date
	order  int
}

// BankIndex provides indexed lookups over bank records for candidate selection
type BankIndex struct {
	// ExactAmountIndex maps exact amounts to entries
	ExactAmountIndex map[string][]*BankEntry

	// DateIndex maps date strings (YYYY-MM-DD) to entries
	DateIndex map[string][]*BankEntry

	// AmountRangeIndex is every entry sorted by amount
	AmountRangeIndex []*BankEntry

	// All holds entries in input order
	All []*BankEntry
}

// NewBankIndex indexes records. Records with an unparseable date are kept
// for amount lookups and never match on date.
func NewBankIndex(records []models.BankRecord) *BankIndex {
	index := &BankIndex{
		ExactAmountIndex: make(map[string][]*BankEntry),
		DateIndex:        make(map[string][]*BankEntry),
	}

	for i, rec := range records {
		date, _ := models.ParseDate(rec.Date)
		entry := &BankEntry{
			Record: rec,
			Amount: decimal.NewFromFloat(rec.Amount),
			Date:   date,
			order:  i,
		}
		index.All = append(index.All, entry)
		index.ExactAmountIndex[entry.Amount.String()] = append(index.ExactAmountIndex[entry.Amount.String()], entry)
		if !date.IsZero() {
			index.DateIndex[date.String()] = append(index.DateIndex[date.String()], entry)
		}
	}

	index.AmountRangeIndex = append([]*BankEntry(nil), index.All...)
	sort.SliceStable(index.AmountRangeIndex, func(i, j int) bool {
		return index.AmountRangeIndex[i].Amount.LessThan(index.AmountRangeIndex[j].Amount)
	})

	return index
}

// GetByExactAmount returns entries with exactly amount
func (bi *BankIndex) GetByExactAmount(amount decimal.Decimal) []*BankEntry {
	return bi.ExactAmountIndex[amount.String()]
}

// GetByAmountRange returns entries with min <= amount <= max
func (bi *BankIndex) GetByAmountRange(minAmount, maxAmount decimal.Decimal) []*BankEntry {
	start := sort.Search(len(bi.AmountRangeIndex), func(i int) bool {
		return bi.AmountRangeIndex[i].Amount.GreaterThanOrEqual(minAmount)
	})

	var out []*BankEntry
	for i := start; i < len(bi.AmountRangeIndex); i++ {
		if bi.AmountRangeIndex[i].Amount.GreaterThan(maxAmount) {
			break
		}
		out = append(out, bi.AmountRangeIndex[i])
	}
	return out
}

// GetByDateWindow returns entries within the configured date tolerance of date
func (bi *BankIndex) GetByDateWindow(date models.Date, config *MatchingConfig) []*BankEntry {
	var out []*BankEntry
	for _, entry := range bi.All {
		if !entry.Date.IsZero() && config.IsWithinDateTolerance(date, entry.Date) {
			out = append(out, entry)
		}
	}
	return out
}

// GetCandidates returns bank entries whose amount is within tolerance of the
// ledger amount and whose date is within tolerance, closest amount first.
func (bi *BankIndex) GetCandidates(amount decimal.Decimal, date models.Date, config *MatchingConfig) []*BankEntry {
	tolerance := config.GetAmountTolerance(amount)

	var candidates []*BankEntry
	for _, entry := range bi.GetByAmountRange(amount.Sub(tolerance), amount.Add(tolerance)) {
		if entry.Date.IsZero() || !config.IsWithinDateTolerance(date, entry.Date) {
			continue
		}
		candidates = append(candidates, entry)
	}

	sortByCloseness(candidates, amount)

	if config.MaxCandidatesPerTransaction > 0 && len(candidates) > config.MaxCandidatesPerTransaction {
		candidates = candidates[:config.MaxCandidatesPerTransaction]
	}
	return candidates
}

func sortByCloseness(entries []*BankEntry, amount decimal.Decimal) {
	sort.SliceStable(entries, func(i, j int) bool {
		di := entries[i].Amount.Sub(amount).Abs()
		dj := entries[j].Amount.Sub(amount).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return entries[i].order < entries[j].order
	})
}

// IndexStats describes the index contents
type IndexStats struct {
	TotalEntries   int
	UniqueAmounts  int
	UniqueDates    int
	UndatedEntries int
}

// GetIndexStats returns statistics about the index
func (bi *BankIndex) GetIndexStats() IndexStats {
	dated := 0
	for _, entries := range bi.DateIndex {
		dated += len(entries)
	}
	return IndexStats{
		TotalEntries:   len(bi.All),
		UniqueAmounts:  len(bi.ExactAmountIndex),
		UniqueDates:    len(bi.DateIndex),
		UndatedEntries: len(bi.All) - dated,
	}
}
