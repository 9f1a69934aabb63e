// Package matcher holds the matching engine: manual selection totals and
// eligibility, the live AI suggestion set and its request lifecycle, and a
// local heuristic suggester.
//
// The heuristic suggester scores ledger/bank pairs on three criteria:
//   - amount agreement, exact or within a percentage tolerance
//   - date proximity within a day tolerance, optionally counting business days
//   - sign agreement (inflow vs outflow)
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.DateToleranceDays = 2
//
//	engine := matcher.NewEngine(matcher.NewHeuristicSuggester(config), matcher.DefaultConfig(), log)
//	outcome, err := engine.RequestSuggestions(ctx, ledger, bank)
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
)

// DefaultConfidenceThreshold is the score a suggestion must exceed to be kept
const DefaultConfidenceThreshold = 0.85

// Config controls the suggestion request boundary
type Config struct {
	// ConfidenceThreshold is exclusive: a pair scoring exactly this is dropped
	ConfidenceThreshold float64 `json:"confidence_threshold" mapstructure:"confidence_threshold"`

	// RequestTimeout bounds a single collaborator call; zero means no limit
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RequestTimeout:      60 * time.Second,
	}
}

// Validate checks the engine configuration
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0.0 || c.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence threshold must be between 0.0 and 1.0: %f", c.ConfidenceThreshold)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative: %s", c.RequestTimeout)
	}
	return nil
}

// MatchType represents the quality of a heuristic match
type MatchType int

const (
	// MatchExact is an exact amount on the same date with agreeing sign
	MatchExact MatchType = iota

	// MatchClose is within tolerances with a high score
	MatchClose

	// MatchAggregate pairs one ledger row with several bank rows whose sum
	// equals the ledger amount
	MatchAggregate

	// MatchPossible meets the minimum score only
	MatchPossible

	MatchNone
)

// String returns the string representation of MatchType
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "Exact"
	case MatchClose:
		return "Close"
	case MatchAggregate:
		return "Aggregate"
	case MatchPossible:
		return "Possible"
	case MatchNone:
		return "None"
	default:
		return "Unknown"
	}
}

// MatchingConfig holds the heuristic suggester's tolerances and weights.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): balanced approach for most use cases
//   - StrictMatchingConfig(): exact amount and date only
//   - RelaxedMatchingConfig(): loose tolerances for exploratory matching
type MatchingConfig struct {
	// DateToleranceDays defines the number of days tolerance for date matching
	DateToleranceDays int `json:"date_tolerance_days" mapstructure:"date_tolerance_days"`

	// AmountPrecision defines the number of decimal places for amount comparison
	AmountPrecision int `json:"amount_precision" mapstructure:"amount_precision"`

	// AmountTolerancePercent defines percentage tolerance for amount matching (0.0 to 100.0)
	AmountTolerancePercent float64 `json:"amount_tolerance_percent" mapstructure:"amount_tolerance_percent"`

	// MaxCandidatesPerTransaction limits the number of candidates to consider per transaction
	MaxCandidatesPerTransaction int `json:"max_candidates_per_transaction" mapstructure:"max_candidates_per_transaction"`

	// MinConfidenceScore defines the minimum confidence score for a match
	MinConfidenceScore float64 `json:"min_confidence_score" mapstructure:"min_confidence_score"`

	// EnableSignMatching requires inflow/outflow agreement
	EnableSignMatching bool `json:"enable_sign_matching" mapstructure:"enable_sign_matching"`

	// MaxAggregateSize is the most bank rows one ledger row may be paired with.
	// 1 disables aggregate matching.
	MaxAggregateSize int `json:"max_aggregate_size" mapstructure:"max_aggregate_size"`

	// IgnoreWeekends excludes weekends from date tolerance calculations
	IgnoreWeekends bool `json:"ignore_weekends" mapstructure:"ignore_weekends"`

	Weights MatchingWeights `json:"weights" mapstructure:"weights"`
}

// MatchingWeights defines the relative importance of different matching criteria
type MatchingWeights struct {
	AmountWeight float64 `json:"amount_weight" mapstructure:"amount_weight"`
	DateWeight   float64 `json:"date_weight" mapstructure:"date_weight"`
	SignWeight   float64 `json:"sign_weight" mapstructure:"sign_weight"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:           3,
		AmountPrecision:             2,
		AmountTolerancePercent:      0.0,
		MaxCandidatesPerTransaction: 10,
		MinConfidenceScore:          0.8,
		EnableSignMatching:          true,
		MaxAggregateSize:            3,
		IgnoreWeekends:              true,
		Weights: MatchingWeights{
			AmountWeight: 0.6,
			DateWeight:   0.3,
			SignWeight:   0.1,
		},
	}
}

// StrictMatchingConfig returns a configuration for strict matching
func StrictMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:           0,
		AmountPrecision:             2,
		AmountTolerancePercent:      0.0,
		MaxCandidatesPerTransaction: 5,
		MinConfidenceScore:          0.95,
		EnableSignMatching:          true,
		MaxAggregateSize:            1,
		IgnoreWeekends:              false,
		Weights: MatchingWeights{
			AmountWeight: 0.7,
			DateWeight:   0.2,
			SignWeight:   0.1,
		},
	}
}

// RelaxedMatchingConfig returns a configuration for relaxed matching
func RelaxedMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DateToleranceDays:           7,
		AmountPrecision:             2,
		AmountTolerancePercent:      10.0,
		MaxCandidatesPerTransaction: 20,
		MinConfidenceScore:          0.6,
		EnableSignMatching:          false,
		MaxAggregateSize:            4,
		IgnoreWeekends:              true,
		Weights: MatchingWeights{
			AmountWeight: 0.5,
			DateWeight:   0.4,
			SignWeight:   0.1,
		},
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days cannot be negative: %d", mc.DateToleranceDays)
	}

	if mc.AmountPrecision < 0 || mc.AmountPrecision > 10 {
		return fmt.Errorf("amount precision must be between 0 and 10: %d", mc.AmountPrecision)
	}

	if mc.AmountTolerancePercent < 0.0 || mc.AmountTolerancePercent > 100.0 {
		return fmt.Errorf("amount tolerance percent must be between 0.0 and 100.0: %f", mc.AmountTolerancePercent)
	}

	if mc.MaxCandidatesPerTransaction <= 0 {
		return fmt.Errorf("max candidates per transaction must be positive: %d", mc.MaxCandidatesPerTransaction)
	}

	if mc.MinConfidenceScore < 0.0 || mc.MinConfidenceScore > 1.0 {
		return fmt.Errorf("minimum confidence score must be between 0.0 and 1.0: %f", mc.MinConfidenceScore)
	}

	if mc.MaxAggregateSize < 1 {
		return fmt.Errorf("max aggregate size must be at least 1: %d", mc.MaxAggregateSize)
	}

	if err := mc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Validate checks if the matching weights are valid
func (mw *MatchingWeights) Validate() error {
	if mw.AmountWeight < 0.0 || mw.AmountWeight > 1.0 {
		return fmt.Errorf("amount weight must be between 0.0 and 1.0: %f", mw.AmountWeight)
	}

	if mw.DateWeight < 0.0 || mw.DateWeight > 1.0 {
		return fmt.Errorf("date weight must be between 0.0 and 1.0: %f", mw.DateWeight)
	}

	if mw.SignWeight < 0.0 || mw.SignWeight > 1.0 {
		return fmt.Errorf("sign weight must be between 0.0 and 1.0: %f", mw.SignWeight)
	}

	// Weights should sum to approximately 1.0 (allow some tolerance)
	total := mw.AmountWeight + mw.DateWeight + mw.SignWeight
	if total < 0.9 || total > 1.1 {
		return fmt.Errorf("weights should sum to approximately 1.0, got %f", total)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	c := *mc
	return &c
}

// GetAmountTolerance calculates the amount tolerance for a given amount
func (mc *MatchingConfig) GetAmountTolerance(amount decimal.Decimal) decimal.Decimal {
	if mc.AmountTolerancePercent == 0.0 {
		return decimal.Zero
	}

	percentage := decimal.NewFromFloat(mc.AmountTolerancePercent / 100.0)
	tolerance := amount.Abs().Mul(percentage)

	return tolerance.Round(int32(mc.AmountPrecision))
}

// IsWithinDateTolerance checks if two dates are within the configured tolerance
func (mc *MatchingConfig) IsWithinDateTolerance(a, b models.Date) bool {
	if mc.DateToleranceDays == 0 {
		return a.Equal(b)
	}

	if !mc.IgnoreWeekends {
		return models.DaysBetween(a, b) <= mc.DateToleranceDays
	}

	return mc.businessDaysBetween(a, b) <= mc.DateToleranceDays
}

// DayDistance is the distance used for date scoring: business days when
// weekends are ignored, calendar days otherwise.
func (mc *MatchingConfig) DayDistance(a, b models.Date) int {
	if mc.IgnoreWeekends {
		return mc.businessDaysBetween(a, b)
	}
	return models.DaysBetween(a, b)
}

// businessDaysBetween counts weekdays stepped over going from the earlier
// date to the later one.
func (mc *MatchingConfig) businessDaysBetween(a, b models.Date) int {
	if a.After(b) {
		a, b = b, a
	}

	businessDays := 0
	for current := a; current.Before(b); current = current.AddDays(1) {
		wd := current.Time().Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			businessDays++
		}
	}
	return businessDays
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DateTolerance: %d days, AmountTolerance: %.2f%%, MinConfidence: %.2f, MaxAggregate: %d}",
		mc.DateToleranceDays, mc.AmountTolerancePercent, mc.MinConfidenceScore, mc.MaxAggregateSize)
}
