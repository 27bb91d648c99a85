package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

const defaultPersistTimeout = 2 * time.Second

// accountSlot owns one account's engine. mu is created on first access and never removed.
type accountSlot struct {
	mu      sync.Mutex
	engine  *StakingEngine
	version uint64 // bumped on every mutation, survives Reset
}

func (s *accountSlot) state(accountID string) domain.AccountState {
	st := s.engine.State(accountID)
	st.Version = s.version
	return st
}

// AccountRegistry owns one StakingEngine per account id and pushes every mutation to the store.
type AccountRegistry struct {
	cfg            domain.StakingConfig
	store          domain.StateStore
	logger         *zap.Logger
	persistTimeout time.Duration

	mu    sync.Mutex // guards slots only for insert-if-absent
	slots map[string]*accountSlot

	// onChange receives the new state after every mutation, under the account lock.
	// It must not block or call back into the registry.
	onChange func(domain.AccountState)
}

type RegistryOption func(*AccountRegistry)

func WithPersistTimeout(d time.Duration) RegistryOption {
	return func(r *AccountRegistry) {
		if d > 0 {
			r.persistTimeout = d
		}
	}
}

func WithStateListener(fn func(domain.AccountState)) RegistryOption {
	return func(r *AccountRegistry) { r.onChange = fn }
}

func NewAccountRegistry(cfg domain.StakingConfig, store domain.StateStore, logger *zap.Logger, opts ...RegistryOption) *AccountRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AccountRegistry{
		cfg:            cfg,
		store:          store,
		logger:         logger,
		persistTimeout: defaultPersistTimeout,
		slots:          make(map[string]*accountSlot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *AccountRegistry) Config() domain.StakingConfig { return r.cfg }

func (r *AccountRegistry) slot(accountID string) *accountSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[accountID]
	if !ok {
		s = &accountSlot{}
		r.slots[accountID] = s
	}
	return s
}

// lookup returns the slot without creating it.
func (r *AccountRegistry) lookup(accountID string) (*accountSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[accountID]
	return s, ok
}

// getOrCreateLocked requires s.mu to be held.
func (r *AccountRegistry) getOrCreateLocked(ctx context.Context, s *accountSlot, accountID string, bankroll float64) *StakingEngine {
	if s.engine != nil {
		return s.engine
	}

	snap, err := r.load(ctx, accountID)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		r.logger.Warn("Failed to load snapshot, starting fresh",
			zap.String("account", accountID), zap.Error(err))
		snap = nil
	}

	if snap != nil {
		s.engine = RestoreStakingEngine(*snap, bankroll, r.cfg)
		r.logger.Info("Staking state restored",
			zap.String("account", accountID),
			zap.Int("total_wins", s.engine.TotalWins()),
			zap.Int("level", s.engine.CurrentLevel()))
	} else {
		s.engine = NewStakingEngine(bankroll, r.cfg)
		r.logger.Info("Staking state initialized",
			zap.String("account", accountID),
			zap.Float64("bankroll", bankroll),
			zap.Float64("stake", s.engine.NextStake()))
	}
	s.version++
	metrics.CurrentLevel.WithLabelValues(metrics.AccountLabel(accountID)).Set(float64(s.engine.CurrentLevel()))
	return s.engine
}

// GetOrCreate returns the account's engine, creating it from the store or the bankroll on first use.
// The returned engine must not be mutated outside the registry.
func (r *AccountRegistry) GetOrCreate(ctx context.Context, accountID string, bankroll float64) *StakingEngine {
	s := r.slot(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.getOrCreateLocked(ctx, s, accountID, bankroll)
}

// Quote returns the account's state, stake and level read under one lock.
func (r *AccountRegistry) Quote(ctx context.Context, accountID string, bankroll float64) domain.AccountState {
	s := r.slot(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	r.getOrCreateLocked(ctx, s, accountID, bankroll)
	metrics.StakesComputed.WithLabelValues(metrics.AccountLabel(accountID)).Inc()
	return s.state(accountID)
}

// NextStake returns the stake for the account's next trade.
func (r *AccountRegistry) NextStake(ctx context.Context, accountID string, bankroll float64) float64 {
	return r.Quote(ctx, accountID, bankroll).NextStake
}

// ProcessResult applies the outcome and persists the snapshot. Store failures are logged only.
func (r *AccountRegistry) ProcessResult(ctx context.Context, accountID string, outcome domain.Outcome, bankroll float64) domain.AccountState {
	state, oldLevel := r.processLocked(ctx, accountID, outcome, bankroll)

	label := metrics.AccountLabel(accountID)
	metrics.ResultsProcessed.WithLabelValues(label, string(outcome)).Inc()
	metrics.CurrentLevel.WithLabelValues(label).Set(float64(state.CurrentLevel))
	if state.CurrentLevel != oldLevel {
		r.logger.Info("Level changed",
			zap.String("account", accountID),
			zap.Int("from", oldLevel),
			zap.Int("to", state.CurrentLevel),
			zap.Float64("stake", state.NextStake))
	}
	return state
}

func (r *AccountRegistry) processLocked(ctx context.Context, accountID string, outcome domain.Outcome, bankroll float64) (domain.AccountState, int) {
	s := r.slot(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	engine := r.getOrCreateLocked(ctx, s, accountID, bankroll)
	oldLevel := engine.CurrentLevel()
	engine.ProcessResult(outcome, bankroll)
	s.version++

	if err := r.save(ctx, accountID, engine.Snapshot()); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save").Inc()
		r.logger.Error("Failed to save snapshot",
			zap.String("account", accountID), zap.Error(err))
	}

	state := s.state(accountID)
	r.notify(state)
	return state, oldLevel
}

// GetState returns the account's state, or false if it was never touched in this process.
func (r *AccountRegistry) GetState(accountID string) (domain.AccountState, bool) {
	s, ok := r.lookup(accountID)
	if !ok {
		return domain.AccountState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return domain.AccountState{}, false
	}
	return s.state(accountID), true
}

// Reset drops the account's engine and stored snapshot, then seeds a fresh level-1 engine.
func (r *AccountRegistry) Reset(ctx context.Context, accountID string, bankroll float64) domain.AccountState {
	state := r.resetLocked(ctx, accountID, bankroll)

	metrics.CurrentLevel.WithLabelValues(metrics.AccountLabel(accountID)).Set(1)
	r.logger.Info("Staking state reset",
		zap.String("account", accountID),
		zap.Float64("bankroll", bankroll),
		zap.Float64("stake", state.NextStake))
	return state
}

func (r *AccountRegistry) resetLocked(ctx context.Context, accountID string, bankroll float64) domain.AccountState {
	s := r.slot(accountID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine = nil
	if err := r.delete(ctx, accountID); err != nil {
		metrics.PersistenceFailures.WithLabelValues("delete").Inc()
		r.logger.Error("Failed to delete snapshot",
			zap.String("account", accountID), zap.Error(err))
	}
	s.engine = NewStakingEngine(bankroll, r.cfg)
	s.version++

	state := s.state(accountID)
	r.notify(state)
	return state
}

// Accounts lists account ids that have an engine in this process.
func (r *AccountRegistry) Accounts() []string {
	r.mu.Lock()
	slots := make(map[string]*accountSlot, len(r.slots))
	for id, s := range r.slots {
		slots[id] = s
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(slots))
	for id, s := range slots {
		s.mu.Lock()
		if s.engine != nil {
			ids = append(ids, id)
		}
		s.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

func (r *AccountRegistry) notify(state domain.AccountState) {
	if r.onChange != nil {
		r.onChange(state)
	}
}

// storeCtx detaches store calls from the caller's cancellation and bounds them by persistTimeout.
func (r *AccountRegistry) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
}

func (r *AccountRegistry) load(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	if r.store == nil {
		return nil, nil
	}
	ctx, cancel := r.storeCtx(ctx)
	defer cancel()
	return r.store.LoadSnapshot(ctx, accountID)
}

func (r *AccountRegistry) save(ctx context.Context, accountID string, snap domain.Snapshot) error {
	if r.store == nil {
		return nil
	}
	ctx, cancel := r.storeCtx(ctx)
	defer cancel()
	err := r.store.SaveSnapshot(ctx, accountID, snap)
	if err == nil {
		r.logger.Debug("Snapshot saved",
			zap.String("account", accountID),
			zap.Int("total_wins", snap.TotalWins),
			zap.Int("levels", len(snap.LevelEntries)))
	}
	return err
}

func (r *AccountRegistry) delete(ctx context.Context, accountID string) error {
	if r.store == nil {
		return nil
	}
	ctx, cancel := r.storeCtx(ctx)
	defer cancel()
	return r.store.DeleteSnapshot(ctx, accountID)
}
