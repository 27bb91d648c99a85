package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/infrastructure/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SnapshotLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap, err := store.LoadSnapshot(ctx, "REAL")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, store.SaveSnapshot(ctx, "REAL", domain.Snapshot{
		TotalWins:    7,
		LevelEntries: map[int]float64{1: 6, 2: 9},
	}))

	snap, err = store.LoadSnapshot(ctx, "REAL")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 7, snap.TotalWins)
	assert.Equal(t, map[int]float64{1: 6, 2: 9}, snap.LevelEntries)

	// upsert replaces the whole row
	require.NoError(t, store.SaveSnapshot(ctx, "REAL", domain.Snapshot{
		TotalWins:    2,
		LevelEntries: map[int]float64{1: 6.5},
	}))
	snap, err = store.LoadSnapshot(ctx, "REAL")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalWins)
	assert.Equal(t, map[int]float64{1: 6.5}, snap.LevelEntries)

	require.NoError(t, store.DeleteSnapshot(ctx, "REAL"))
	snap, err = store.LoadSnapshot(ctx, "REAL")
	require.NoError(t, err)
	assert.Nil(t, snap)

	// deleting a missing row is not an error
	assert.NoError(t, store.DeleteSnapshot(ctx, "REAL"))
}

func TestSQLiteStore_AccountsAreSeparateRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "REAL", domain.Snapshot{TotalWins: 5, LevelEntries: map[int]float64{1: 6, 2: 9}}))
	require.NoError(t, store.SaveSnapshot(ctx, "PRACTICE", domain.Snapshot{TotalWins: 1, LevelEntries: map[int]float64{1: 100}}))

	all, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 5, all["REAL"].TotalWins)
	assert.Equal(t, 100.0, all["PRACTICE"].LevelEntries[1])
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, "REAL", domain.Snapshot{TotalWins: 11, LevelEntries: map[int]float64{1: 6, 2: 9, 3: 13.5}}))
	require.NoError(t, store.Close())

	store, err = storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.LoadSnapshot(ctx, "REAL")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 11, snap.TotalWins)
	assert.Equal(t, 13.5, snap.LevelEntries[3])
}

func TestSQLiteStore_Trades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	trades := []*domain.Trade{
		{ID: "t1", AccountID: "REAL", Asset: "EURUSD", Direction: domain.DirectionCall, Outcome: domain.OutcomeWin, Profit: 5.1, Stake: 6, FinalBalance: 65.1, CreatedAt: base},
		{ID: "t2", AccountID: "PRACTICE", Asset: "GBPUSD", Direction: domain.DirectionPut, Outcome: domain.OutcomeLoss, Profit: -10, Stake: 10, FinalBalance: 90, CreatedAt: base.Add(time.Minute)},
		{ID: "t3", AccountID: "REAL", Asset: "EURUSD", Direction: domain.DirectionPut, Outcome: domain.OutcomeLoss, Profit: -6, Stake: 6, FinalBalance: 59.1, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, tr := range trades {
		require.NoError(t, store.SaveTrade(ctx, tr))
	}

	realTrades, err := store.ListTrades(ctx, "REAL", 10)
	require.NoError(t, err)
	require.Len(t, realTrades, 2)
	assert.Equal(t, "t3", realTrades[0].ID)
	assert.Equal(t, domain.DirectionPut, realTrades[0].Direction)
	assert.Equal(t, domain.OutcomeLoss, realTrades[0].Outcome)
	assert.Equal(t, -6.0, realTrades[0].Profit)
	assert.True(t, realTrades[0].CreatedAt.Equal(base.Add(2*time.Minute)))

	limited, err := store.ListTrades(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "t3", limited[0].ID)
	assert.Equal(t, "t2", limited[1].ID)

	require.NoError(t, store.DeleteTrades(ctx, "REAL"))
	all, err := store.ListTrades(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "PRACTICE", all[0].AccountID)

	require.NoError(t, store.DeleteTrades(ctx, ""))
	all, err = store.ListTrades(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}
