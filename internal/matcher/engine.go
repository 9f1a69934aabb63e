package matcher

import (
	"context"
	stderrors "errors"
	"sync"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// Suggester is the matching collaborator. It receives the unreconciled rows
// of both sides and proposes pairs. It must report failure as an error and
// never hide it behind an empty result.
type Suggester interface {
	Suggest(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) ([]models.MatchedPair, error)
}

// SuggesterFunc adapts a function to the Suggester interface
type SuggesterFunc func(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) ([]models.MatchedPair, error)

func (f SuggesterFunc) Suggest(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) ([]models.MatchedPair, error) {
	return f(ctx, ledger, bank)
}

// SuggestionOutcome describes a completed suggestion request
type SuggestionOutcome struct {
	// Pairs are the suggestions now live, in collaborator order
	Pairs []models.MatchedPair
	// Found is false when the collaborator succeeded but nothing survived
	Found bool
	// Returned is the raw number of pairs the collaborator produced
	Returned int
	// BelowThreshold counts pairs dropped for low confidence or no bank ids
	BelowThreshold int
	// Overlapping counts pairs dropped for reusing an id of an earlier pair
	Overlapping int
	// Obsolete counts pairs dropped because a row they name was settled or
	// split while the request was outstanding
	Obsolete int
}

// Engine owns the live suggestion set and the request lifecycle around the
// collaborator: one request at a time, a confidence floor applied on this
// side of the boundary, and discarding of responses superseded by a newer
// request.
type Engine struct {
	suggester Suggester
	config    Config
	logger    logger.Logger

	mu          sync.Mutex
	inFlight    bool
	generation  uint64
	suggestions *SuggestionSet
}

// NewEngine creates an engine around suggester
func NewEngine(suggester Suggester, config Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		suggester:   suggester,
		config:      config,
		logger:      log.WithComponent("matcher"),
		suggestions: NewSuggestionSet(),
	}
}

// Config returns the engine configuration
func (e *Engine) Config() Config { return e.config }

// InFlight reports whether a request is outstanding
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// RequestSuggestions asks the collaborator for pairs and installs the ones
// scoring above the threshold as the live suggestion set.
//
// A second call while one is outstanding fails with request_in_flight. A
// collaborator failure is returned as a collaborator-unavailable error and
// leaves the current suggestions untouched. If a newer request started, or
// Clear ran, while the call was outstanding, the response is discarded with
// stale_response.
func (e *Engine) RequestSuggestions(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) (*SuggestionOutcome, error) {
	resp, err := e.Fetch(ctx, ledger, bank)
	if err != nil {
		return nil, err
	}
	return e.Install(resp, nil)
}

// Response is a collaborator answer that has passed the confidence floor but
// is not live yet
type Response struct {
	generation uint64
	pairs      []models.MatchedPair
	returned   int
	below      int
}

// Fetch runs the collaborator call of a request without installing the
// result. Starting a fetch supersedes any response not yet installed.
func (e *Engine) Fetch(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) (*Response, error) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, errors.InvalidState(errors.CodeRequestInFlight, "request suggestions", "a suggestion request is already outstanding")
	}
	if e.suggester == nil {
		e.mu.Unlock()
		return nil, errors.CollaboratorUnavailable(errors.CodeServiceUnavailable, "matching service", nil)
	}
	e.inFlight = true
	e.generation++
	resp := &Response{generation: e.generation}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	var pairs []models.MatchedPair
	if len(ledger) > 0 && len(bank) > 0 {
		callCtx := ctx
		if e.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.config.RequestTimeout)
			defer cancel()
		}

		var err error
		pairs, err = e.suggester.Suggest(callCtx, ledger, bank)
		if err != nil {
			e.logger.WithFields(logger.Fields{"ledger_rows": len(ledger), "bank_rows": len(bank)}).
				WithError(err).Warn("Suggestion request failed")
			return nil, asUnavailable(err)
		}
	}

	resp.returned = len(pairs)
	for _, p := range pairs {
		if p.ConfidenceScore > e.config.ConfidenceThreshold && len(p.BankTransactionIDs) > 0 {
			resp.pairs = append(resp.pairs, p)
		} else {
			resp.below++
		}
	}
	return resp, nil
}

// Install makes resp the live suggestion set. Pairs for which keep returns
// false are dropped first; keep runs under the engine lock and must not call
// back into the engine. A nil keep admits every pair.
func (e *Engine) Install(resp *Response, keep func(models.MatchedPair) bool) (*SuggestionOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.logger.WithField("returned", resp.returned)
	if e.generation != resp.generation {
		log.Info("Discarding suggestions for a superseded request")
		return nil, errors.InvalidState(errors.CodeStaleResponse, "request suggestions", "a newer request superseded this one")
	}

	admitted := resp.pairs
	obsolete := 0
	if keep != nil {
		admitted = make([]models.MatchedPair, 0, len(resp.pairs))
		for _, p := range resp.pairs {
			if keep(p) {
				admitted = append(admitted, p)
			} else {
				obsolete++
			}
		}
	}

	rejected := e.suggestions.Replace(admitted)
	for _, r := range rejected {
		log.WithField("ledger_id", r.LedgerTransactionID).Warn("Dropping suggestion that overlaps an earlier one")
	}

	outcome := &SuggestionOutcome{
		Pairs:          e.suggestions.Pairs(),
		Found:          e.suggestions.Len() > 0,
		Returned:       resp.returned,
		BelowThreshold: resp.below,
		Overlapping:    len(rejected),
		Obsolete:       obsolete,
	}

	log.WithFields(logger.Fields{
		"kept":            len(outcome.Pairs),
		"below_threshold": resp.below,
		"overlapping":     len(rejected),
		"obsolete":        obsolete,
	}).Info("Suggestion request completed")

	return outcome, nil
}

func asUnavailable(err error) error {
	if errors.IsCollaboratorUnavailable(err) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.CollaboratorUnavailable(errors.CodeTimeout, "matching service", err)
	}
	return errors.CollaboratorUnavailable(errors.CodeServiceUnavailable, "matching service", err)
}

// Retain drops live suggestions for which keep returns false and reports how
// many went. Outstanding requests are unaffected.
func (e *Engine) Retain(keep func(models.MatchedPair) bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var kept []models.MatchedPair
	for _, p := range e.suggestions.pairs {
		if keep(p) {
			kept = append(kept, p)
		}
	}
	dropped := e.suggestions.Len() - len(kept)
	if dropped > 0 {
		e.suggestions.Replace(kept)
	}
	return dropped
}

// Clear discards the live suggestions and supersedes any outstanding request
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.suggestions.Clear()
}

// Suggestions returns a copy of the live suggestions
func (e *Engine) Suggestions() []models.MatchedPair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suggestions.Pairs()
}

// Snapshot returns an independent copy of the live suggestion set
func (e *Engine) Snapshot() *SuggestionSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := NewSuggestionSet()
	snap.Replace(e.suggestions.pairs)
	return snap
}

// Count returns the number of live suggestions
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suggestions.Len()
}
