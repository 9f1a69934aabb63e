// Package audit keeps the append-only activity log.
package audit

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the kind of a logged operation
type Action string

const (
	ActionReconcile         Action = "reconcile"
	ActionUnreconcile       Action = "unreconcile"
	ActionMarkNrit          Action = "mark_nrit"
	ActionUnmarkNrit        Action = "unmark_nrit"
	ActionSplit             Action = "split"
	ActionImport            Action = "import"
	ActionAISuggest         Action = "ai_suggest"
	ActionAIDecline         Action = "ai_decline"
	ActionBulkAction        Action = "bulk_action"
	ActionCreateExpenditure Action = "create_expenditure"
	ActionCreateReceipt     Action = "create_receipt"
	ActionSessionTransition Action = "session_transition"
)

// DefaultUser attributes entries when no user is configured
const DefaultUser = "system"

// Entry is one immutable log record
type Entry struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	User           string            `json:"user"`
	Action         Action            `json:"action"`
	Details        string            `json:"details"`
	TransactionIDs []string          `json:"transactionIds"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Confidence     *float64          `json:"confidence,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (e Entry) clone() Entry {
	e.TransactionIDs = append([]string(nil), e.TransactionIDs...)
	if e.Amount != nil {
		a := *e.Amount
		e.Amount = &a
	}
	if e.Confidence != nil {
		c := *e.Confidence
		e.Confidence = &c
	}
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

// RecordInput is what a caller supplies; id and time are filled in
type RecordInput struct {
	// User overrides the recorder's user for this entry
	User           string
	Action         Action
	Details        string
	TransactionIDs []string
	Amount         *decimal.Decimal
	Confidence     *float64
	Metadata       map[string]string
}

// Recorder holds the log. Entries are stored in append order and read
// newest first.
type Recorder struct {
	mu      sync.RWMutex
	entries []Entry
	user    string
	now     func() time.Time
	newID   func() string
}

// Option configures a Recorder
type Option func(*Recorder)

// WithUser sets the user every entry is attributed to
func WithUser(user string) Option {
	return func(r *Recorder) {
		if user != "" {
			r.user = user
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator replaces the uuid-based id source
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

// NewRecorder creates an empty recorder
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		user:  DefaultUser,
		now:   time.Now,
		newID: func() string { return "audit-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record adds an entry as the newest in the log and returns it. It never fails.
func (r *Recorder) Record(in RecordInput) Entry {
	user := r.user
	if in.User != "" {
		user = in.User
	}
	entry := Entry{
		ID:             r.newID(),
		Timestamp:      r.now(),
		User:           user,
		Action:         in.Action,
		Details:        in.Details,
		TransactionIDs: in.TransactionIDs,
		Amount:         in.Amount,
		Confidence:     in.Confidence,
		Metadata:       in.Metadata,
	}
	if entry.TransactionIDs == nil {
		entry.TransactionIDs = []string{}
	}
	entry = entry.clone()

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	return entry.clone()
}

// Len returns the number of entries
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a copy of the log, newest first
func (r *Recorder) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.entries)
	out := make([]Entry, n)
	for i, e := range r.entries {
		out[n-1-i] = e.clone()
	}
	return out
}

// Users lists distinct users in the log, sorted
func (r *Recorder) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var users []string
	for _, e := range r.entries {
		if _, ok := seen[e.User]; !ok {
			seen[e.User] = struct{}{}
			users = append(users, e.User)
		}
	}
	sort.Strings(users)
	return users
}

// Query filters the log. Empty fields match everything.
type Query struct {
	Action Action
	User   string
	// Text matches case-insensitively against details or any transaction id
	Text string
}

// Matches reports whether e passes q
func (q Query) Matches(e Entry) bool {
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.User != "" && e.User != q.User {
		return false
	}
	if q.Text == "" {
		return true
	}
	needle := strings.ToLower(q.Text)
	if strings.Contains(strings.ToLower(e.Details), needle) {
		return true
	}
	for _, id := range e.TransactionIDs {
		if strings.Contains(strings.ToLower(id), needle) {
			return true
		}
	}
	return false
}

// Find returns matching entries newest first without touching the log
func (r *Recorder) Find(q Query) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; q.Matches(e) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Filter applies q to an already copied slice of entries
func Filter(entries []Entry, q Query) []Entry {
	var out []Entry
	for _, e := range entries {
		if q.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Amount is a helper for building RecordInput
func Amount(d decimal.Decimal) *decimal.Decimal { return &d }

// Confidence is a helper for building RecordInput
func Confidence(c float64) *float64 { return &c }
