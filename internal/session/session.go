// Package session tracks reconciliation sessions: a named period of work
// with a summary snapshot taken at start and a one-way status lifecycle.
package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/errors"
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCertified  Status = "certified"
	StatusArchived   Status = "archived"
)

var transitions = map[Status][]Status{
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {StatusCertified, StatusArchived},
	StatusCertified:  {StatusArchived},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// PeriodType is the kind of reporting period
type PeriodType string

const (
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodAnnual    PeriodType = "annual"
	PeriodCustom    PeriodType = "custom"
)

// Period is an inclusive date range
type Period struct {
	Start models.Date `json:"start"`
	End   models.Date `json:"end"`
	Type  PeriodType  `json:"type"`
}

// Validate checks the bounds and type
func (p Period) Validate() error {
	if p.Start.IsZero() {
		return errors.Validation(errors.CodeMissingField, "period.start", nil)
	}
	if p.End.IsZero() {
		return errors.Validation(errors.CodeMissingField, "period.end", nil)
	}
	if p.End.Before(p.Start) {
		return errors.Validation(errors.CodeInvalidDate, "period.end", p.End.String()).
			WithContext("start", p.Start.String())
	}
	switch p.Type {
	case PeriodMonthly, PeriodQuarterly, PeriodAnnual, PeriodCustom:
		return nil
	default:
		return errors.Validation(errors.CodeInvalidFormat, "period.type", p.Type)
	}
}

// Contains reports whether d falls inside the period
func (p Period) Contains(d models.Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s (%s)", p.Start, p.End, p.Type)
}

// Completion is recorded when a session is completed
type Completion struct {
	CompletedAt time.Time `json:"completedAt"`
}

// Certification is recorded when a session is certified
type Certification struct {
	CertifiedAt time.Time `json:"certifiedAt"`
	CertifiedBy string    `json:"certifiedBy"`
}

// Archival is recorded when a session is archived
type Archival struct {
	ArchivedAt time.Time `json:"archivedAt"`
}

// ActionType classifies a reviewer action inside a session
type ActionType string

const (
	ActionManualMatch        ActionType = "manual_match"
	ActionOverrideSuggestion ActionType = "override_suggestion"
	ActionCreateAdjustment   ActionType = "create_adjustment"
	ActionMarkResolved       ActionType = "mark_resolved"
	ActionAddNote            ActionType = "add_note"
)

// Action is a reviewer action recorded against a session
type Action struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	User           string           `json:"user"`
	Type           ActionType       `json:"type" validate:"required,oneof=manual_match override_suggestion create_adjustment mark_resolved add_note"`
	Description    string           `json:"description" validate:"required,max=500"`
	TransactionIDs []string         `json:"transactionIds"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Justification  string           `json:"justification,omitempty" validate:"max=1000"`
}

// Notes are the free-text compliance fields of a session
type Notes struct {
	Compliance            string `json:"complianceNotes"`
	MaterialDiscrepancies string `json:"materialDiscrepancies"`
	InternalControls      string `json:"internalControlsAssessment"`
}

// Session is one reconciliation run
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Period    Period    `json:"period"`
	Status    Status    `json:"status"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`

	Summary     summary.Stats       `json:"summary"`
	FundResults []summary.Breakdown `json:"fundResults"`
	LineResults []summary.Breakdown `json:"fecLineResults"`
	Actions     []Action            `json:"actions"`
	Notes       Notes               `json:"notes"`

	Completion    *Completion    `json:"completion,omitempty"`
	Certification *Certification `json:"certification,omitempty"`
	Archival      *Archival      `json:"archival,omitempty"`
}

// Editable reports whether actions and notes may still be added
func (s *Session) Editable() bool {
	return s.Status == StatusInProgress || s.Status == StatusCompleted
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.FundResults = append([]summary.Breakdown(nil), s.FundResults...)
	c.LineResults = append([]summary.Breakdown(nil), s.LineResults...)
	c.Actions = make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		a.TransactionIDs = append([]string(nil), a.TransactionIDs...)
		if a.Amount != nil {
			amt := *a.Amount
			a.Amount = &amt
		}
		c.Actions[i] = a
	}
	if s.Completion != nil {
		v := *s.Completion
		c.Completion = &v
	}
	if s.Certification != nil {
		v := *s.Certification
		c.Certification = &v
	}
	if s.Archival != nil {
		v := *s.Archival
		c.Archival = &v
	}
	return &c
}
