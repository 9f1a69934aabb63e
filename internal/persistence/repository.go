package persistence

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/session"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// Storage keys
const (
	KeyCashOnHand = "cashOnHandData"
	KeyPeriod     = "reconciliationPeriod"
	KeySessions   = "reconciliationSessions"
)

// DefaultPeriod is the working period used before one is saved
func DefaultPeriod() session.Period {
	return session.Period{
		Start: models.MustParseDate("2024-04-01"),
		End:   models.MustParseDate("2024-04-07"),
		Type:  session.PeriodCustom,
	}
}

// CashSource records where a balance came from
type CashSource string

const (
	SourcePreviousSession CashSource = "previous_session"
	SourceManualEntry     CashSource = "manual_entry"
)

// CashOnHand is the opening and closing balance of one account
type CashOnHand struct {
	AccountCode     string          `json:"accountCode"`
	AccountName     string          `json:"accountName"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
	EndingBalance   decimal.Decimal `json:"endingBalance"`
	StartDate       models.Date     `json:"startDate"`
	EndDate         models.Date     `json:"endDate"`
	LastUpdated     time.Time       `json:"lastUpdated"`
	Source          CashSource      `json:"source"`
}

// NetChange is ending minus starting balance
func (c CashOnHand) NetChange() decimal.Decimal {
	return c.EndingBalance.Sub(c.StartingBalance)
}

// CashOnHandPatch holds the fields to change; nil fields are left alone
type CashOnHandPatch struct {
	AccountName     *string
	StartingBalance *decimal.Decimal
	EndingBalance   *decimal.Decimal
	StartDate       *models.Date
	EndDate         *models.Date
	Source          *CashSource
}

func (p CashOnHandPatch) apply(c *CashOnHand) {
	if p.AccountName != nil {
		c.AccountName = *p.AccountName
	}
	if p.StartingBalance != nil {
		c.StartingBalance = *p.StartingBalance
	}
	if p.EndingBalance != nil {
		c.EndingBalance = *p.EndingBalance
	}
	if p.StartDate != nil {
		c.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		c.EndDate = *p.EndDate
	}
	if p.Source != nil {
		c.Source = *p.Source
	}
}

// DefaultCashOnHand returns the seed balances
func DefaultCashOnHand(now time.Time) []CashOnHand {
	period := DefaultPeriod()
	return []CashOnHand{
		{
			AccountCode:     "P2026",
			AccountName:     "Primary Campaign Account",
			StartingBalance: decimal.RequireFromString("45750.00"),
			EndingBalance:   decimal.RequireFromString("47250.00"),
			StartDate:       period.Start,
			EndDate:         period.End,
			LastUpdated:     now,
			Source:          SourcePreviousSession,
		},
		{
			AccountCode:     "G2026",
			AccountName:     "General Fund Account",
			StartingBalance: decimal.RequireFromString("12500.00"),
			EndingBalance:   decimal.RequireFromString("14000.00"),
			StartDate:       period.Start,
			EndDate:         period.End,
			LastUpdated:     now,
			Source:          SourcePreviousSession,
		},
	}
}

// loadJSON decodes key into dest. It returns false when the key is missing
// or holds undecodable data; corrupt data is logged, not returned.
func loadJSON(ctx context.Context, kv KeyValueStore, key string, dest interface{}, log logger.Logger) (bool, error) {
	data, err := kv.Load(ctx, key)
	if stderrors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.WithError(err).WithField("key", key).Warn("Ignoring unreadable saved data")
		return false, nil
	}
	return true, nil
}

func saveJSON(ctx context.Context, kv KeyValueStore, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Persistence("encode", key, err)
	}
	return kv.Save(ctx, key, data)
}

// PeriodRepository stores the working reconciliation period
type PeriodRepository struct {
	kv     KeyValueStore
	logger logger.Logger
}

// NewPeriodRepository creates a repository over kv
func NewPeriodRepository(kv KeyValueStore, log logger.Logger) *PeriodRepository {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &PeriodRepository{kv: kv, logger: log.WithComponent("persistence")}
}

// Load returns the saved period or DefaultPeriod
func (r *PeriodRepository) Load(ctx context.Context) (session.Period, error) {
	var p session.Period
	ok, err := loadJSON(ctx, r.kv, KeyPeriod, &p, r.logger)
	if err != nil {
		return session.Period{}, err
	}
	if !ok || p.Validate() != nil {
		return DefaultPeriod(), nil
	}
	return p, nil
}

// Save validates and stores the period
func (r *PeriodRepository) Save(ctx context.Context, p session.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return saveJSON(ctx, r.kv, KeyPeriod, p)
}

// CashOnHandRepository stores per-account balances
type CashOnHandRepository struct {
	kv      KeyValueStore
	periods *PeriodRepository
	now     func() time.Time
	logger  logger.Logger
}

// NewCashOnHandRepository creates a repository over kv
func NewCashOnHandRepository(kv KeyValueStore, log logger.Logger) *CashOnHandRepository {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &CashOnHandRepository{
		kv:      kv,
		periods: NewPeriodRepository(kv, log),
		now:     time.Now,
		logger:  log.WithComponent("persistence"),
	}
}

// Load returns the saved balances, or the defaults when nothing usable is saved
func (r *CashOnHandRepository) Load(ctx context.Context) ([]CashOnHand, error) {
	var entries []CashOnHand
	ok, err := loadJSON(ctx, r.kv, KeyCashOnHand, &entries, r.logger)
	if err != nil {
		return nil, err
	}
	if !ok {
		return DefaultCashOnHand(r.now()), nil
	}
	return entries, nil
}

// Get returns one account's balances
func (r *CashOnHandRepository) Get(ctx context.Context, accountCode string) (*CashOnHand, error) {
	entries, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].AccountCode == accountCode {
			return &entries[i], nil
		}
	}
	return nil, errors.NotFound(errors.CodeTransactionNotFound, "cash-on-hand account", accountCode)
}

// Update applies patch to accountCode, creating the entry if needed, and
// saves the full list. New entries start at zero over the working period.
func (r *CashOnHandRepository) Update(ctx context.Context, accountCode string, patch CashOnHandPatch) (*CashOnHand, error) {
	if accountCode == "" {
		return nil, errors.Validation(errors.CodeMissingField, "accountCode", accountCode)
	}
	entries, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}

	index := -1
	for i := range entries {
		if entries[i].AccountCode == accountCode {
			index = i
			break
		}
	}
	if index < 0 {
		period, err := r.periods.Load(ctx)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CashOnHand{
			AccountCode:     accountCode,
			AccountName:     "Account " + accountCode,
			StartingBalance: decimal.Zero,
			EndingBalance:   decimal.Zero,
			StartDate:       period.Start,
			EndDate:         period.End,
			Source:          SourceManualEntry,
		})
		index = len(entries) - 1
	}

	entry := &entries[index]
	patch.apply(entry)
	entry.LastUpdated = r.now()

	if err := saveJSON(ctx, r.kv, KeyCashOnHand, entries); err != nil {
		return nil, err
	}
	r.logger.WithField("account", accountCode).Info("Updated cash on hand")
	out := *entry
	return &out, nil
}

// SetPeriod saves a new working period and moves every entry onto it
func (r *CashOnHandRepository) SetPeriod(ctx context.Context, p session.Period) ([]CashOnHand, error) {
	if err := r.periods.Save(ctx, p); err != nil {
		return nil, err
	}
	entries, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	for i := range entries {
		entries[i].StartDate = p.Start
		entries[i].EndDate = p.End
		entries[i].LastUpdated = now
	}
	if err := saveJSON(ctx, r.kv, KeyCashOnHand, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SessionRepository stores the session history
type SessionRepository struct {
	kv     KeyValueStore
	logger logger.Logger
}

// NewSessionRepository creates a repository over kv
func NewSessionRepository(kv KeyValueStore, log logger.Logger) *SessionRepository {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &SessionRepository{kv: kv, logger: log.WithComponent("persistence")}
}

// Load returns saved sessions, or none
func (r *SessionRepository) Load(ctx context.Context) ([]*session.Session, error) {
	var sessions []*session.Session
	ok, err := loadJSON(ctx, r.kv, KeySessions, &sessions, r.logger)
	if err != nil || !ok {
		return nil, err
	}
	return sessions, nil
}

// Save replaces the stored history
func (r *SessionRepository) Save(ctx context.Context, sessions []*session.Session) error {
	return saveJSON(ctx, r.kv, KeySessions, sessions)
}
