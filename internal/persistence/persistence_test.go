package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/internal/session"
	"treasury-reconciler/internal/summary"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

func backends(t *testing.T) map[string]KeyValueStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "reconciler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]KeyValueStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestKeyValueStores(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Save(ctx, "k", []byte(`{"a":1}`)))
			require.NoError(t, kv.Save(ctx, "k", []byte(`{"a":2}`)))

			got, err := kv.Load(ctx, "k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "r.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, KeyPeriod, []byte(`"x"`)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Load(ctx, KeyPeriod)
	require.NoError(t, err)
	assert.Equal(t, `"x"`, string(got))
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(" ")
	require.Error(t, err)
	assert.Equal(t, 4, errors.GetExitCode(err))
}

func TestRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStoreFromURL("not a url", "")
	require.Error(t, err)

	r, err := NewRedisStoreFromURL("redis://localhost:6379/2", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRedisPrefix, r.prefix)
	require.NoError(t, r.Close())
}

func TestCashOnHandDefaults(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	repo := NewCashOnHandRepository(kv, logger.Discard())

	entries, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "P2026", entries[0].AccountCode)
	assert.Equal(t, "Primary Campaign Account", entries[0].AccountName)
	assert.True(t, entries[0].NetChange().Equal(decimal.RequireFromString("1500")))
	assert.Equal(t, "2024-04-07", entries[1].EndDate.String())
	assert.Equal(t, SourcePreviousSession, entries[1].Source)

	require.NoError(t, kv.Save(ctx, KeyCashOnHand, []byte("{not json")))
	entries, err = repo.Load(ctx)
	require.NoError(t, err, "corrupt data falls back to defaults")
	assert.Len(t, entries, 2)
}

func TestCashOnHandUpdate(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := NewCashOnHandRepository(kv, logger.Discard())
			fixed := time.Date(2024, 4, 8, 12, 0, 0, 0, time.UTC)
			repo.now = func() time.Time { return fixed }

			ending := decimal.RequireFromString("48000.25")
			updated, err := repo.Update(ctx, "P2026", CashOnHandPatch{EndingBalance: &ending})
			require.NoError(t, err)
			assert.True(t, updated.EndingBalance.Equal(ending))
			assert.Equal(t, "Primary Campaign Account", updated.AccountName)
			assert.Equal(t, fixed, updated.LastUpdated)

			starting := decimal.RequireFromString("100")
			created, err := repo.Update(ctx, "L2026", CashOnHandPatch{StartingBalance: &starting})
			require.NoError(t, err)
			assert.Equal(t, "Account L2026", created.AccountName)
			assert.Equal(t, SourceManualEntry, created.Source)
			assert.True(t, created.EndingBalance.IsZero())
			assert.Equal(t, "2024-04-01", created.StartDate.String())

			entries, err := repo.Load(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.True(t, entries[0].EndingBalance.Equal(ending))

			got, err := repo.Get(ctx, "L2026")
			require.NoError(t, err)
			assert.True(t, got.NetChange().Equal(decimal.RequireFromString("-100")))

			_, err = repo.Get(ctx, "Z9")
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestSetPeriodMovesEntries(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	repo := NewCashOnHandRepository(kv, logger.Discard())

	may := session.Period{Start: models.MustParseDate("2024-05-01"), End: models.MustParseDate("2024-05-31"), Type: session.PeriodMonthly}
	entries, err := repo.SetPeriod(ctx, may)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, "2024-05-01", e.StartDate.String())
		assert.Equal(t, "2024-05-31", e.EndDate.String())
	}

	p, err := NewPeriodRepository(kv, logger.Discard()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, may, p)

	starting := decimal.RequireFromString("5")
	created, err := repo.Update(ctx, "N1", CashOnHandPatch{StartingBalance: &starting})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", created.StartDate.String(), "new entries use the saved period")

	_, err = repo.SetPeriod(ctx, session.Period{Start: may.End, End: may.Start, Type: session.PeriodCustom})
	assert.True(t, errors.IsValidation(err))
}

func TestPeriodDefault(t *testing.T) {
	p, err := NewPeriodRepository(NewMemoryStore(), logger.Discard()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriod(), p)
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	repo := NewSessionRepository(kv, logger.Discard())

	none, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	m := session.NewManager(session.WithLogger(logger.Discard()))
	s, err := m.Start("April", DefaultPeriod(), "treasurer", summary.Stats{TotalLedgerTransactions: 3}, nil, nil)
	require.NoError(t, err)
	_, err = m.Complete(s.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, m.List()))
	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, session.StatusCompleted, loaded[0].Status)
	assert.Equal(t, 3, loaded[0].Summary.TotalLedgerTransactions)
	require.NotNil(t, loaded[0].Completion)
}
