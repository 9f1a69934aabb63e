package session

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"treasury-reconciler/internal/audit"
	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// Manager owns the sessions and enforces the status lifecycle
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	audit    *audit.Recorder
	now      func() time.Time
	validate *validator.Validate
	logger   logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithAudit records every transition in rec
func WithAudit(rec *audit.Recorder) Option {
	return func(m *Manager) { m.audit = rec }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) { m.logger = log.WithComponent("session") }
}

// NewManager creates an empty manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
		validate: validator.New(),
		logger:   logger.GetGlobalLogger().WithComponent("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads previously saved sessions, replacing any with the same id
func (m *Manager) Restore(sessions []*Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.sessions[s.ID] = s.Clone()
	}
}

// Start opens a new in_progress session carrying a snapshot of the current
// statistics and breakdowns.
func (m *Manager) Start(name string, period Period, user string, stats summary.Stats, fundResults, lineResults []summary.Breakdown) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Validation(errors.CodeMissingField, "name", name)
	}
	if strings.TrimSpace(user) == "" {
		return nil, errors.Validation(errors.CodeMissingField, "user", user)
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:          "session-" + uuid.NewString(),
		Name:        name,
		Period:      period,
		Status:      StatusInProgress,
		CreatedBy:   user,
		CreatedAt:   m.now(),
		Summary:     stats,
		FundResults: append([]summary.Breakdown(nil), fundResults...),
		LineResults: append([]summary.Breakdown(nil), lineResults...),
		Actions:     []Action{},
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.record(s, "", StatusInProgress, user)
	return s.Clone(), nil
}

// Complete moves an in_progress session to completed
func (m *Manager) Complete(id string) (*Session, error) {
	return m.transition(id, StatusCompleted, "", func(s *Session, at time.Time) {
		s.Completion = &Completion{CompletedAt: at}
	})
}

// Certify moves a completed session to certified, recording who signed off
func (m *Manager) Certify(id, user string) (*Session, error) {
	if strings.TrimSpace(user) == "" {
		return nil, errors.Validation(errors.CodeMissingField, "certifiedBy", user)
	}
	return m.transition(id, StatusCertified, user, func(s *Session, at time.Time) {
		s.Certification = &Certification{CertifiedAt: at, CertifiedBy: user}
	})
}

// Archive moves a completed or certified session to archived
func (m *Manager) Archive(id string) (*Session, error) {
	return m.transition(id, StatusArchived, "", func(s *Session, at time.Time) {
		s.Archival = &Archival{ArchivedAt: at}
	})
}

// transition credits the audit entry to user, or to the recorder's user when
// user is empty
func (m *Manager) transition(id string, next Status, user string, stamp func(*Session, time.Time)) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, errors.NotFound(errors.CodeSessionNotFound, "session", id)
	}
	from := s.Status
	if !from.CanTransitionTo(next) {
		m.mu.Unlock()
		return nil, errors.InvalidState(errors.CodeInvalidTransition, "session transition",
			fmt.Sprintf("cannot move session %s from %s to %s", id, from, next))
	}
	s.Status = next
	stamp(s, m.now())
	out := s.Clone()
	m.mu.Unlock()

	m.record(out, from, next, user)
	return out, nil
}

func (m *Manager) record(s *Session, from, to Status, user string) {
	m.logger.WithFields(logger.Fields{
		"session_id": s.ID,
		"from":       string(from),
		"to":         string(to),
	}).Info("Session status changed")

	if m.audit == nil {
		return
	}
	details := fmt.Sprintf("Started session %q", s.Name)
	if from != "" {
		details = fmt.Sprintf("Session %q moved from %s to %s", s.Name, from, to)
	}
	metadata := map[string]string{
		"session_id": s.ID,
		"from":       string(from),
		"to":         string(to),
	}
	if s.Certification != nil && to == StatusCertified {
		metadata["certified_by"] = s.Certification.CertifiedBy
	}
	m.audit.Record(audit.RecordInput{
		User:     user,
		Action:   audit.ActionSessionTransition,
		Details:  details,
		Metadata: metadata,
	})
}

// Get returns a copy of one session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound(errors.CodeSessionNotFound, "session", id)
	}
	return s.Clone(), nil
}

// List returns copies of all sessions, most recently created first
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// RecordAction appends a reviewer action. Certified and archived sessions
// no longer accept actions.
func (m *Manager) RecordAction(id, user string, action Action) (*Action, error) {
	if err := m.validate.Struct(action); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			return nil, errors.Validation(errors.CodeInvalidFormat, verrs[0].Namespace(), verrs[0].Value())
		}
		return nil, errors.Wrap(err, errors.CategoryValidation, errors.CodeInvalidFormat, "invalid session action")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound(errors.CodeSessionNotFound, "session", id)
	}
	if !s.Editable() {
		return nil, errors.InvalidState(errors.CodeInvalidTransition, "record action",
			fmt.Sprintf("session %s is %s", id, s.Status))
	}

	action.ID = "action-" + uuid.NewString()
	action.Timestamp = m.now()
	action.User = user
	action.TransactionIDs = append([]string{}, action.TransactionIDs...)
	s.Actions = append(s.Actions, action)
	return &action, nil
}

// UpdateNotes replaces the compliance notes of an editable session
func (m *Manager) UpdateNotes(id string, notes Notes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return errors.NotFound(errors.CodeSessionNotFound, "session", id)
	}
	if !s.Editable() {
		return errors.InvalidState(errors.CodeInvalidTransition, "update notes",
			fmt.Sprintf("session %s is %s", id, s.Status))
	}
	s.Notes = notes
	return nil
}
