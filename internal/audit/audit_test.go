package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRecorder(user string) *Recorder {
	n := 0
	base := time.Date(2024, 4, 7, 9, 0, 0, 0, time.UTC)
	return NewRecorder(
		WithUser(user),
		WithClock(func() time.Time { return base.Add(time.Duration(n) * time.Minute) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("audit-%d", n) }),
	)
}

func TestRecordFillsAttributionNewestFirst(t *testing.T) {
	r := fixedRecorder("Sarah Johnson")

	first := r.Record(RecordInput{Action: ActionReconcile, Details: "Reconciled 2 transactions", TransactionIDs: []string{"C1", "B1"}, Amount: Amount(decimal.NewFromInt(500))})
	second := r.Record(RecordInput{Action: ActionMarkNrit, Details: "Marked B9 as NRIT", TransactionIDs: []string{"B9"}})

	assert.Equal(t, "audit-1", first.ID)
	assert.Equal(t, "Sarah Johnson", first.User)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(500)))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)
}

func TestRecordUserOverride(t *testing.T) {
	r := fixedRecorder("treasurer")
	r.Record(RecordInput{Action: ActionImport})
	e := r.Record(RecordInput{User: "auditor", Action: ActionSessionTransition})

	assert.Equal(t, "auditor", e.User)
	assert.Equal(t, "treasurer", r.Entries()[1].User)
	assert.Equal(t, []string{"auditor", "treasurer"}, r.Users())
	assert.Len(t, r.Find(Query{User: "auditor"}), 1)
}

func TestLongLogKeepsNewestFirstOrder(t *testing.T) {
	r := fixedRecorder("u")
	const n = 2000
	for i := 0; i < n; i++ {
		r.Record(RecordInput{Action: ActionImport, Details: fmt.Sprintf("import %d", i)})
	}

	entries := r.Entries()
	require.Len(t, entries, n)
	assert.Equal(t, fmt.Sprintf("import %d", n-1), entries[0].Details)
	assert.Equal(t, "import 0", entries[n-1].Details)

	found := r.Find(Query{Text: "import 199"})
	require.NotEmpty(t, found)
	assert.Equal(t, "import 1999", found[0].Details)
	assert.Equal(t, "import 199", found[len(found)-1].Details)
}

func TestEntriesAreCopies(t *testing.T) {
	r := NewRecorder()
	ids := []string{"C1"}
	r.Record(RecordInput{Action: ActionReconcile, TransactionIDs: ids, Metadata: map[string]string{"source": "manual"}})

	ids[0] = "mutated by caller"
	got := r.Entries()
	got[0].TransactionIDs[0] = "mutated by reader"
	got[0].Metadata["source"] = "mutated"

	again := r.Entries()
	assert.Equal(t, []string{"C1"}, again[0].TransactionIDs)
	assert.Equal(t, "manual", again[0].Metadata["source"])
	assert.Equal(t, DefaultUser, again[0].User)
}

func TestLogIsAppendOnly(t *testing.T) {
	r := fixedRecorder("u")
	var snapshots [][]Entry

	for i := 0; i < 5; i++ {
		r.Record(RecordInput{Action: ActionImport, Details: fmt.Sprintf("import %d", i)})
		snapshots = append(snapshots, r.Entries())
	}

	for i := 1; i < len(snapshots); i++ {
		prev, cur := snapshots[i-1], snapshots[i]
		require.Equal(t, len(prev)+1, len(cur))
		// every earlier entry is unchanged, shifted by one
		assert.Equal(t, prev, cur[1:])
	}
}

func TestQuery(t *testing.T) {
	r := fixedRecorder("alice")
	r.Record(RecordInput{Action: ActionReconcile, Details: "Reconciled 2 transactions", TransactionIDs: []string{"C1", "B1"}})
	r.Record(RecordInput{Action: ActionSplit, Details: "Split deposit", TransactionIDs: []string{"B7"}})
	r.Record(RecordInput{Action: ActionReconcile, Details: "Reconciled 3 transactions", TransactionIDs: []string{"C2", "B2", "B3"}})

	before := r.Entries()

	assert.Len(t, r.Find(Query{}), 3)
	assert.Len(t, r.Find(Query{Action: ActionReconcile}), 2)
	assert.Len(t, r.Find(Query{User: "bob"}), 0)
	assert.Len(t, r.Find(Query{Text: "SPLIT"}), 1)

	byID := r.Find(Query{Text: "b3"})
	require.Len(t, byID, 1)
	assert.Equal(t, "Reconciled 3 transactions", byID[0].Details)

	assert.Len(t, Filter(before, Query{Action: ActionSplit, Text: "b7"}), 1)
	assert.Equal(t, before, r.Entries(), "queries must not change the log")
	assert.Equal(t, []string{"alice"}, r.Users())
}
