// Package store holds the authoritative reconciliation state: both
// transaction collections, the working selection, the live suggestions and
// the audit log. Every mutation and its audit entry happen under one lock.
package store

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"treasury-reconciler/internal/audit"
	"treasury-reconciler/internal/filter"
	"treasury-reconciler/internal/matcher"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// EventKind identifies what changed
type EventKind string

const (
	EventReconciled         EventKind = "reconciled"
	EventUnreconciled       EventKind = "unreconciled"
	EventNritChanged        EventKind = "nrit_changed"
	EventSplit              EventKind = "split"
	EventCreated            EventKind = "created"
	EventImported           EventKind = "imported"
	EventSuggestionsChanged EventKind = "suggestions_changed"
	EventSelectionChanged   EventKind = "selection_changed"
)

// Event is delivered to subscribers after a successful mutation
type Event struct {
	Kind           EventKind
	TransactionIDs []string
}

// Options configures a Store
type Options struct {
	// Suggester is the matching collaborator; nil disables suggestion requests
	Suggester matcher.Suggester
	Matcher   matcher.Config
	Audit     *audit.Recorder
	Logger    logger.Logger
}

// Store is safe for concurrent use
type Store struct {
	mu        sync.Mutex
	ledger    []*models.LedgerTransaction
	bank      []*models.BankTransaction
	retired   map[string]struct{}
	selection *matcher.Selection

	engine   *matcher.Engine
	audit    *audit.Recorder
	validate *validator.Validate
	logger   logger.Logger

	subMu       sync.Mutex
	nextSub     int
	subscribers map[int]func(Event)
}

// New creates a store seeded with copies of ledger and bank. Duplicate ids
// within a side are rejected.
func New(ledger []*models.LedgerTransaction, bank []*models.BankTransaction, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	rec := opts.Audit
	if rec == nil {
		rec = audit.NewRecorder()
	}
	cfg := opts.Matcher
	if cfg.ConfidenceThreshold == 0 && cfg.RequestTimeout == 0 {
		cfg = matcher.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError("matcher", cfg, err)
	}

	s := &Store{
		retired:     make(map[string]struct{}),
		selection:   matcher.NewSelection(),
		engine:      matcher.NewEngine(opts.Suggester, cfg, log),
		audit:       rec,
		validate:    validator.New(),
		logger:      log.WithComponent("store"),
		subscribers: make(map[int]func(Event)),
	}

	seen := make(map[string]struct{}, len(ledger))
	for _, tx := range ledger {
		if _, dup := seen[tx.ID]; dup {
			return nil, errors.Validation(errors.CodeDuplicateID, "ledger.id", tx.ID)
		}
		seen[tx.ID] = struct{}{}
		s.ledger = append(s.ledger, tx.Clone())
	}
	seen = make(map[string]struct{}, len(bank))
	for _, tx := range bank {
		if _, dup := seen[tx.ID]; dup {
			return nil, errors.Validation(errors.CodeDuplicateID, "bank.id", tx.ID)
		}
		seen[tx.ID] = struct{}{}
		s.bank = append(s.bank, tx.Clone())
	}

	return s, nil
}

// Subscribe registers fn for change notifications. Notifications are sent
// after the store lock is released, so fn may read the store.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store) emit(kind EventKind, ids []string) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(Event{Kind: kind, TransactionIDs: append([]string(nil), ids...)})
	}
}

// touch runs after every change to the collections. Must hold s.mu.
func (s *Store) touch() {
	s.pruneSelection()
}

// suggestionLive reports whether every row p names still exists and is
// unreconciled. Must hold s.mu.
func (s *Store) suggestionLive(p models.MatchedPair) bool {
	if tx := s.findLedger(p.LedgerTransactionID); tx == nil || tx.IsReconciled() {
		return false
	}
	for _, id := range p.BankTransactionIDs {
		if tx, _ := s.findBank(id); tx == nil || tx.IsReconciled() {
			return false
		}
	}
	return true
}

// pruneSelection drops selected ids that are gone or already reconciled.
// Must hold s.mu.
func (s *Store) pruneSelection() {
	s.selection.Retain(models.SideLedger, func(id string) bool {
		tx := s.findLedger(id)
		return tx != nil && !tx.IsReconciled()
	})
	s.selection.Retain(models.SideBank, func(id string) bool {
		tx, _ := s.findBank(id)
		return tx != nil && !tx.IsReconciled()
	})
}

func (s *Store) findLedger(id string) *models.LedgerTransaction {
	for _, tx := range s.ledger {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}

func (s *Store) findBank(id string) (*models.BankTransaction, int) {
	for i, tx := range s.bank {
		if tx.ID == id {
			return tx, i
		}
	}
	return nil, -1
}

func (s *Store) idInUse(id string) bool {
	if _, gone := s.retired[id]; gone {
		return true
	}
	if s.findLedger(id) != nil {
		return true
	}
	tx, _ := s.findBank(id)
	return tx != nil
}

// Ledger returns copies of the ledger transactions in collection order
func (s *Store) Ledger() []*models.LedgerTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLedger(s.ledger)
}

// Bank returns copies of the bank transactions in collection order
func (s *Store) Bank() []*models.BankTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBank(s.bank)
}

// LedgerTransaction returns a copy of one ledger row
func (s *Store) LedgerTransaction(id string) (*models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.findLedger(id)
	if tx == nil {
		return nil, errors.NotFound(errors.CodeTransactionNotFound, "ledger transaction", id)
	}
	return tx.Clone(), nil
}

// BankTransaction returns a copy of one bank row
func (s *Store) BankTransaction(id string) (*models.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, _ := s.findBank(id)
	if tx == nil {
		return nil, errors.NotFound(errors.CodeTransactionNotFound, "bank transaction", id)
	}
	return tx.Clone(), nil
}

// AuditLog returns the audit entries, newest first
func (s *Store) AuditLog() []audit.Entry {
	return s.audit.Entries()
}

// Audit exposes the recorder so other components can share the log
func (s *Store) Audit() *audit.Recorder {
	return s.audit
}

// Suggestions returns the live suggestions
func (s *Store) Suggestions() []models.MatchedPair {
	return s.engine.Suggestions()
}

// SuggestionInFlight reports whether a suggestion request is outstanding
func (s *Store) SuggestionInFlight() bool {
	return s.engine.InFlight()
}

// Stats computes summary statistics over the current state
func (s *Store) Stats() summary.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return summary.Compute(s.ledger, s.bank, s.engine.Suggestions())
}

// LedgerFiltered applies spec to the ledger side
func (s *Store) LedgerFiltered(spec filter.Spec) []*models.LedgerTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLedger(filter.Apply(s.ledger, spec, models.SideLedger, s.engine.Snapshot()))
}

// BankFiltered applies spec to the bank side
func (s *Store) BankFiltered(spec filter.Spec) []*models.BankTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBank(filter.Apply(s.bank, spec, models.SideBank, s.engine.Snapshot()))
}

// Filtered returns the ids of one side's rows that pass spec
func (s *Store) Filtered(side models.Side, spec filter.Spec) []string {
	var ids []string
	if side == models.SideLedger {
		for _, tx := range s.LedgerFiltered(spec) {
			ids = append(ids, tx.ID)
		}
		return ids
	}
	for _, tx := range s.BankFiltered(spec) {
		ids = append(ids, tx.ID)
	}
	return ids
}

// Snapshot is a consistent, independent copy of the full state
type Snapshot struct {
	Ledger         []*models.LedgerTransaction `json:"crimsonTransactions"`
	Bank           []*models.BankTransaction   `json:"bankTransactions"`
	Suggestions    []models.MatchedPair        `json:"suggestions"`
	AuditLog       []audit.Entry               `json:"auditLog"`
	Stats          summary.Stats               `json:"stats"`
	FundResults    []summary.Breakdown         `json:"fundResults"`
	LineResults    []summary.Breakdown         `json:"lineResults"`
	SelectedLedger []string                    `json:"selectedCrimsonIds"`
	SelectedBank   []string                    `json:"selectedBankIds"`
}

// Snapshot captures the state for reporting or session creation
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	suggestions := s.engine.Suggestions()
	return &Snapshot{
		Ledger:         cloneLedger(s.ledger),
		Bank:           cloneBank(s.bank),
		Suggestions:    suggestions,
		AuditLog:       s.audit.Entries(),
		Stats:          summary.Compute(s.ledger, s.bank, suggestions),
		FundResults:    summary.ByFund(s.ledger),
		LineResults:    summary.ByLineNumber(s.ledger),
		SelectedLedger: s.selection.LedgerIDs(),
		SelectedBank:   s.selection.BankIDs(),
	}
}

func cloneLedger(txs []*models.LedgerTransaction) []*models.LedgerTransaction {
	out := make([]*models.LedgerTransaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	return out
}

func cloneBank(txs []*models.BankTransaction) []*models.BankTransaction {
	out := make([]*models.BankTransaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	return out
}
