package session

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-reconciler/internal/audit"
	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

var april = Period{Start: models.MustParseDate("2024-04-01"), End: models.MustParseDate("2024-04-30"), Type: PeriodMonthly}

func newManager(t *testing.T) (*Manager, *audit.Recorder) {
	t.Helper()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := audit.NewRecorder(audit.WithUser("treasurer"))
	m := NewManager(
		WithAudit(rec),
		WithLogger(logger.Discard()),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
	)
	return m, rec
}

func startSession(t *testing.T, m *Manager, name string) *Session {
	t.Helper()
	stats := summary.Stats{TotalLedgerTransactions: 4, ReconciledLedgerTransactions: 3}
	s, err := m.Start(name, april, "treasurer", stats, []summary.Breakdown{{Key: "P2026", Total: 4}}, nil)
	require.NoError(t, err)
	return s
}

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusInProgress, StatusCompleted, StatusCertified, StatusArchived}
	allowed := map[[2]Status]bool{
		{StatusInProgress, StatusCompleted}: true,
		{StatusCompleted, StatusCertified}:  true,
		{StatusCompleted, StatusArchived}:   true,
		{StatusCertified, StatusArchived}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusArchived.IsTerminal())
	assert.False(t, StatusCertified.IsTerminal())
}

func TestLifecycle(t *testing.T) {
	m, rec := newManager(t)
	s := startSession(t, m, "April 2024 Monthly Rec")

	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, 3, s.Summary.ReconciledLedgerTransactions)
	assert.Equal(t, "P2026", s.FundResults[0].Key)

	_, err := m.Certify(s.ID, "auditor")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidTransition), "must complete before certifying")

	completed, err := m.Complete(s.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.Completion)

	certified, err := m.Certify(s.ID, "auditor")
	require.NoError(t, err)
	assert.Equal(t, StatusCertified, certified.Status)
	assert.Equal(t, "auditor", certified.Certification.CertifiedBy)
	assert.True(t, certified.Certification.CertifiedAt.After(completed.Completion.CompletedAt))

	archived, err := m.Archive(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)
	require.NotNil(t, archived.Archival)

	assert.Equal(t, 4, rec.Len())
	assert.Len(t, rec.Find(audit.Query{Action: audit.ActionSessionTransition}), 4)
	assert.Equal(t, "archived", rec.Entries()[0].Metadata["to"])
}

func TestTransitionsCreditTheActingUser(t *testing.T) {
	m, rec := newManager(t)
	s, err := m.Start("April 2024 Monthly Rec", april, "deputy", summary.Stats{}, nil, nil)
	require.NoError(t, err)
	_, err = m.Complete(s.ID)
	require.NoError(t, err)
	_, err = m.Certify(s.ID, "auditor")
	require.NoError(t, err)

	entries := rec.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "auditor", entries[0].User)
	assert.Equal(t, "auditor", entries[0].Metadata["certified_by"])
	assert.Equal(t, "treasurer", entries[1].User)
	assert.Empty(t, entries[1].Metadata["certified_by"])
	assert.Equal(t, "deputy", entries[2].User)
}

func TestNoBackwardOrTerminalExit(t *testing.T) {
	m, _ := newManager(t)
	s := startSession(t, m, "Q2")
	_, err := m.Complete(s.ID)
	require.NoError(t, err)
	_, err = m.Certify(s.ID, "auditor")
	require.NoError(t, err)

	_, err = m.Complete(s.ID)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidState(err))

	_, err = m.Archive(s.ID)
	require.NoError(t, err)
	for _, op := range []func() (*Session, error){
		func() (*Session, error) { return m.Complete(s.ID) },
		func() (*Session, error) { return m.Certify(s.ID, "auditor") },
		func() (*Session, error) { return m.Archive(s.ID) },
	} {
		_, err := op()
		assert.True(t, errors.HasCode(err, errors.CodeInvalidTransition))
	}

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, got.Status)
}

func TestArchiveFromCompleted(t *testing.T) {
	m, _ := newManager(t)
	s := startSession(t, m, "Annual")
	_, err := m.Complete(s.ID)
	require.NoError(t, err)
	archived, err := m.Archive(s.ID)
	require.NoError(t, err)
	assert.Nil(t, archived.Certification)
}

func TestStartValidation(t *testing.T) {
	m, _ := newManager(t)
	tests := []struct {
		name   string
		sname  string
		user   string
		period Period
	}{
		{"blank name", " ", "u", april},
		{"blank user", "n", "", april},
		{"missing start", "n", "u", Period{End: april.End, Type: PeriodCustom}},
		{"end before start", "n", "u", Period{Start: april.End, End: april.Start, Type: PeriodCustom}},
		{"unknown type", "n", "u", Period{Start: april.Start, End: april.End, Type: "weekly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Start(tt.sname, tt.period, tt.user, summary.Stats{}, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
	assert.Empty(t, m.List())
}

func TestUnknownSession(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Complete("missing")
	assert.True(t, errors.IsNotFound(err))
	_, err = m.Get("missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestListMostRecentFirst(t *testing.T) {
	m, _ := newManager(t)
	first := startSession(t, m, "first")
	second := startSession(t, m, "second")

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestRecordAction(t *testing.T) {
	m, _ := newManager(t)
	s := startSession(t, m, "April")

	amount := decimal.RequireFromString("125.50")
	a, err := m.RecordAction(s.ID, "treasurer", Action{
		Type:           ActionManualMatch,
		Description:    "Matched check 1041",
		TransactionIDs: []string{"C1", "B1"},
		Amount:         &amount,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "treasurer", a.User)

	_, err = m.RecordAction(s.ID, "treasurer", Action{Type: "shred", Description: "x"})
	assert.True(t, errors.IsValidation(err))

	require.NoError(t, m.UpdateNotes(s.ID, Notes{Compliance: "All receipts itemized"}))

	_, err = m.Complete(s.ID)
	require.NoError(t, err)
	_, err = m.Certify(s.ID, "auditor")
	require.NoError(t, err)

	_, err = m.RecordAction(s.ID, "treasurer", Action{Type: ActionAddNote, Description: "late note"})
	assert.True(t, errors.IsInvalidState(err), "certified sessions are frozen")
	assert.True(t, errors.IsInvalidState(m.UpdateNotes(s.ID, Notes{})))

	got, _ := m.Get(s.ID)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, "All receipts itemized", got.Notes.Compliance)
}

func TestReturnedSessionsAreCopies(t *testing.T) {
	m, _ := newManager(t)
	s := startSession(t, m, "April")
	s.Status = StatusArchived
	s.FundResults[0].Key = "changed"

	got, _ := m.Get(s.ID)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, "P2026", got.FundResults[0].Key)
}

func TestRestore(t *testing.T) {
	m, _ := newManager(t)
	s := startSession(t, m, "April")
	_, err := m.Complete(s.ID)
	require.NoError(t, err)
	saved := m.List()

	other, _ := newManager(t)
	other.Restore(saved)
	_, err = other.Certify(s.ID, "auditor")
	require.NoError(t, err)
}
