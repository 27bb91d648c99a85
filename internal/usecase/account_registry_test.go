package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/usecase"
)

// MockStateStore keeps snapshots in memory and can be told to fail or block.
type MockStateStore struct {
	mu        sync.Mutex
	snapshots map[string]domain.Snapshot
	loadErr   error
	saveErr   error
	deleteErr error
	block     bool
	panics    bool
	loads     int
	saves     int
	deletes   int
}

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{snapshots: make(map[string]domain.Snapshot)}
}

func (m *MockStateStore) LoadSnapshot(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	snap, ok := m.snapshots[accountID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MockStateStore) SaveSnapshot(ctx context.Context, accountID string, snap domain.Snapshot) error {
	m.mu.Lock()
	block, panics := m.block, m.panics
	m.mu.Unlock()
	if panics {
		panic("snapshot store crashed")
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshots[accountID] = snap
	return nil
}

func (m *MockStateStore) DeleteSnapshot(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.snapshots, accountID)
	return nil
}

func (m *MockStateStore) get(accountID string) (domain.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[accountID]
	return snap, ok
}

func TestAccountRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	store := NewMockStateStore()
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)
	ctx := context.Background()

	first := reg.GetOrCreate(ctx, "REAL", 60)
	second := reg.GetOrCreate(ctx, "REAL", 5000)

	assert.Same(t, first, second)
	assert.Equal(t, 6.0, second.NextStake())
	assert.Equal(t, 1, store.loads)
}

func TestAccountRegistry_SeedsFromStore(t *testing.T) {
	store := NewMockStateStore()
	store.snapshots["REAL"] = domain.Snapshot{TotalWins: 6, LevelEntries: map[int]float64{1: 6, 2: 9}}
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)

	stake := reg.NextStake(context.Background(), "REAL", 1000)
	assert.Equal(t, 9.0, stake)

	st, ok := reg.GetState("REAL")
	require.True(t, ok)
	assert.Equal(t, 6, st.TotalWins)
	assert.Equal(t, 2, st.CurrentLevel)
}

func TestAccountRegistry_LoadFailureStartsFresh(t *testing.T) {
	store := NewMockStateStore()
	store.loadErr = errors.New("disk on fire")
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)

	assert.Equal(t, 6.0, reg.NextStake(context.Background(), "REAL", 60))
}

func TestAccountRegistry_ProcessResultPersists(t *testing.T) {
	store := NewMockStateStore()
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)
	ctx := context.Background()

	var st domain.AccountState
	for i := 0; i < 5; i++ {
		st = reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	}
	assert.Equal(t, 2, st.CurrentLevel)
	assert.Equal(t, 9.0, st.NextStake)

	snap, ok := store.get("REAL")
	require.True(t, ok)
	assert.Equal(t, 5, snap.TotalWins)
	assert.Equal(t, map[int]float64{1: 6, 2: 9}, snap.LevelEntries)
	assert.Equal(t, 5, store.saves)
}

func TestAccountRegistry_SaveFailureDoesNotBlockState(t *testing.T) {
	store := NewMockStateStore()
	store.saveErr = errors.New("db locked")
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)

	st := reg.ProcessResult(context.Background(), "REAL", domain.OutcomeWin, 60)
	assert.Equal(t, 1, st.TotalWins)

	got, ok := reg.GetState("REAL")
	require.True(t, ok)
	assert.Equal(t, 1, got.TotalWins)
}

func TestAccountRegistry_PersistTimeout(t *testing.T) {
	store := NewMockStateStore()
	store.block = true
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil,
		usecase.WithPersistTimeout(20*time.Millisecond))

	start := time.Now()
	st := reg.ProcessResult(context.Background(), "REAL", domain.OutcomeWin, 60)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, st.TotalWins)

	_, saved := store.get("REAL")
	assert.False(t, saved)
}

func TestAccountRegistry_CancelledRequestStillPersists(t *testing.T) {
	store := NewMockStateStore()
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)

	snap, ok := store.get("REAL")
	require.True(t, ok)
	assert.Equal(t, 1, snap.TotalWins)
}

func TestAccountRegistry_GetStateUnknown(t *testing.T) {
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), NewMockStateStore(), nil)

	_, ok := reg.GetState("NOPE")
	assert.False(t, ok)
	assert.Empty(t, reg.Accounts())
}

func TestAccountRegistry_Reset(t *testing.T) {
	store := NewMockStateStore()
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	}

	st := reg.Reset(ctx, "REAL", 60)
	assert.Equal(t, 0, st.TotalWins)
	assert.Equal(t, 1, st.CurrentLevel)
	assert.Equal(t, 6.0, st.NextStake)
	assert.Equal(t, 6.0, reg.NextStake(ctx, "REAL", 60))

	got, ok := reg.GetState("REAL")
	require.True(t, ok)
	assert.Equal(t, 0, got.TotalWins)

	_, stored := store.get("REAL")
	assert.False(t, stored)
	assert.Equal(t, 1, store.deletes)
}

func TestAccountRegistry_ResetUnknownAccount(t *testing.T) {
	store := NewMockStateStore()
	store.deleteErr = errors.New("gone")
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)

	st := reg.Reset(context.Background(), "PRACTICE", 100)
	assert.Equal(t, 10.0, st.NextStake)
	assert.Equal(t, []string{"PRACTICE"}, reg.Accounts())
}

func TestAccountRegistry_AccountsAreIsolated(t *testing.T) {
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), NewMockStateStore(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	}
	assert.Equal(t, 9.0, reg.NextStake(ctx, "REAL", 60))
	assert.Equal(t, 10.0, reg.NextStake(ctx, "PRACTICE", 100))

	practice, ok := reg.GetState("PRACTICE")
	require.True(t, ok)
	assert.Equal(t, 0, practice.TotalWins)
	assert.Equal(t, []string{"PRACTICE", "REAL"}, reg.Accounts())
}

func TestAccountRegistry_ConcurrentAccounts(t *testing.T) {
	cfg := domain.DefaultStakingConfig()
	cfg.WinsToLevelUp = 1000
	reg := usecase.NewAccountRegistry(cfg, NewMockStateStore(), nil)
	ctx := context.Background()

	accounts := []string{"A", "B", "C"}
	const perWorker = 50
	const workers = 8

	var wg sync.WaitGroup
	for _, id := range accounts {
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					reg.ProcessResult(ctx, id, domain.OutcomeWin, 60)
					reg.NextStake(ctx, id, 60)
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range accounts {
		st, ok := reg.GetState(id)
		require.True(t, ok)
		assert.Equal(t, perWorker*workers, st.TotalWins, id)
	}
}

func TestAccountRegistry_StateListener(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []domain.AccountState
	)
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), nil, nil,
		usecase.WithStateListener(func(st domain.AccountState) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		}))
	ctx := context.Background()

	reg.NextStake(ctx, "REAL", 60)
	reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	reg.Reset(ctx, "REAL", 60)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].TotalWins)
	assert.Equal(t, "REAL", seen[0].AccountID)
	assert.Equal(t, 0, seen[1].TotalWins)
}

func TestAccountRegistry_QuoteReadsOneState(t *testing.T) {
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), NewMockStateStore(), nil)
	ctx := context.Background()

	first := reg.Quote(ctx, "REAL", 60)
	assert.Equal(t, 6.0, first.NextStake)
	assert.Equal(t, 1, first.CurrentLevel)

	for i := 0; i < 5; i++ {
		reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	}
	q := reg.Quote(ctx, "REAL", 60)
	assert.Equal(t, 2, q.CurrentLevel)
	assert.Equal(t, q.LevelEntries[q.CurrentLevel], q.NextStake)
	assert.Equal(t, 9.0, q.NextStake)
	assert.Greater(t, q.Version, first.Version)

	again := reg.Quote(ctx, "REAL", 60)
	assert.Equal(t, q.Version, again.Version, "reads do not bump the version")
}

func TestAccountRegistry_VersionGrowsAcrossReset(t *testing.T) {
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), nil, nil)
	ctx := context.Background()

	a := reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	b := reg.Reset(ctx, "REAL", 60)
	c := reg.ProcessResult(ctx, "REAL", domain.OutcomeLoss, 60)

	assert.Less(t, a.Version, b.Version)
	assert.Less(t, b.Version, c.Version)
}

func TestAccountRegistry_StorePanicReleasesAccount(t *testing.T) {
	store := NewMockStateStore()
	reg := usecase.NewAccountRegistry(domain.DefaultStakingConfig(), store, nil)
	ctx := context.Background()
	reg.NextStake(ctx, "REAL", 60)

	store.mu.Lock()
	store.panics = true
	store.mu.Unlock()

	assert.Panics(t, func() {
		reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
	})

	store.mu.Lock()
	store.panics = false
	store.mu.Unlock()

	done := make(chan domain.AccountState, 1)
	go func() { done <- reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60) }()
	select {
	case st := <-done:
		assert.Equal(t, 2, st.TotalWins)
	case <-time.After(2 * time.Second):
		t.Fatal("account stayed locked after a store panic")
	}
}

func TestAccountRegistry_ResetRacesProcessResult(t *testing.T) {
	cfg := domain.DefaultStakingConfig()
	cfg.WinsToLevelUp = 3
	store := NewMockStateStore()

	var (
		mu   sync.Mutex
		seen []domain.AccountState
	)
	reg := usecase.NewAccountRegistry(cfg, store, nil,
		usecase.WithStateListener(func(st domain.AccountState) {
			mu.Lock()
			seen = append(seen, st)
			mu.Unlock()
		}))
	ctx := context.Background()

	const workers = 6
	const rounds = 40

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				reg.ProcessResult(ctx, "REAL", domain.OutcomeWin, 60)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds/2; i++ {
			reg.Reset(ctx, "REAL", 60)
		}
	}()
	wg.Wait()

	final, ok := reg.GetState("REAL")
	require.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, workers*rounds+rounds/2)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i].Version, seen[i-1].Version, "listener saw states out of order at %d", i)
	}
	last := seen[len(seen)-1]
	assert.Equal(t, last, final)
	assert.Equal(t, final.TotalWins/cfg.WinsToLevelUp+1, final.CurrentLevel)
	assert.Equal(t, final.LevelEntries[final.CurrentLevel], final.NextStake)

	snap, stored := store.get("REAL")
	if stored {
		assert.Equal(t, final.TotalWins, snap.TotalWins)
		assert.Equal(t, final.LevelEntries, snap.LevelEntries)
	} else {
		assert.Equal(t, 0, final.TotalWins, "only a trailing reset leaves no snapshot")
	}
}
