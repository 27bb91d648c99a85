package usecase

import (
	"math"

	"github.com/vitos/stake_leveling/internal/domain"
)

// StakingEngine is the leveling state machine of one account.
// It is not safe for concurrent use; AccountRegistry serializes access.
type StakingEngine struct {
	cfg       domain.StakingConfig
	totalWins int
	entries   map[int]float64 // level -> stake
}

// NewStakingEngine seeds level 1 from the bankroll.
func NewStakingEngine(bankroll float64, cfg domain.StakingConfig) *StakingEngine {
	e := &StakingEngine{
		cfg:     cfg,
		entries: make(map[int]float64),
	}
	e.entries[1] = e.baseline(bankroll)
	return e
}

// RestoreStakingEngine rebuilds an engine from a persisted snapshot without re-seeding.
// bankroll is only used if the snapshot lacks an entry for its current level.
func RestoreStakingEngine(snap domain.Snapshot, bankroll float64, cfg domain.StakingConfig) *StakingEngine {
	e := &StakingEngine{
		cfg:       cfg,
		totalWins: snap.TotalWins,
		entries:   make(map[int]float64, len(snap.LevelEntries)),
	}
	if e.totalWins < 0 {
		e.totalWins = 0
	}
	current := e.CurrentLevel()
	for lvl, stake := range snap.LevelEntries {
		// entries above the reachable level are stale
		if lvl < 1 || lvl > current {
			continue
		}
		e.entries[lvl] = math.Max(cfg.MinimumStake, domain.RoundCurrency(stake))
	}
	if _, ok := e.entries[1]; !ok {
		e.entries[1] = e.baseline(bankroll)
	}
	e.ensureEntry(current, bankroll)
	return e
}

func (e *StakingEngine) baseline(bankroll float64) float64 {
	return e.clamp(domain.PercentOf(bankroll, e.cfg.EntryPercentage))
}

func (e *StakingEngine) clamp(stake float64) float64 {
	if math.IsNaN(stake) || math.IsInf(stake, 0) || stake < e.cfg.MinimumStake {
		return e.cfg.MinimumStake
	}
	return stake
}

func (e *StakingEngine) ensureEntry(level int, bankroll float64) {
	if _, ok := e.entries[level]; !ok {
		e.entries[level] = e.baseline(bankroll)
	}
}

func (e *StakingEngine) TotalWins() int { return e.totalWins }

func (e *StakingEngine) CurrentLevel() int { return e.cfg.LevelFor(e.totalWins) }

// NextStake returns the cached stake of the current level.
func (e *StakingEngine) NextStake() float64 {
	if stake, ok := e.entries[e.CurrentLevel()]; ok {
		return stake
	}
	return e.cfg.MinimumStake
}

// ProcessResult applies a settled outcome. bankroll is the balance after settlement and
// is only used to re-base a level whose entry was evicted.
func (e *StakingEngine) ProcessResult(outcome domain.Outcome, bankroll float64) {
	oldLevel := e.CurrentLevel()

	switch outcome {
	case domain.OutcomeWin:
		e.totalWins++
		newLevel := e.CurrentLevel()
		if newLevel > oldLevel {
			if _, ok := e.entries[newLevel]; !ok {
				prev, ok := e.entries[oldLevel]
				if !ok {
					prev = e.baseline(bankroll)
				}
				e.entries[newLevel] = e.clamp(domain.RoundCurrency(prev * e.cfg.LevelUpMultiplier))
			}
		}
	case domain.OutcomeLoss:
		penalty := e.cfg.LossCompensation
		if e.cfg.BoundaryLossPenalty > 0 && oldLevel > 1 && e.totalWins%e.cfg.WinsToLevelUp == 0 {
			penalty += e.cfg.BoundaryLossPenalty
		}
		e.totalWins -= penalty
		if e.totalWins < 0 {
			e.totalWins = 0
		}
		newLevel := e.CurrentLevel()
		if newLevel < oldLevel {
			for lvl := range e.entries {
				if lvl > newLevel {
					delete(e.entries, lvl)
				}
			}
		}
	default:
		return
	}

	e.ensureEntry(e.CurrentLevel(), bankroll)
}

// Snapshot returns a copy of the durable state.
func (e *StakingEngine) Snapshot() domain.Snapshot {
	entries := make(map[int]float64, len(e.entries))
	for lvl, stake := range e.entries {
		entries[lvl] = stake
	}
	return domain.Snapshot{TotalWins: e.totalWins, LevelEntries: entries}
}

func (e *StakingEngine) State(accountID string) domain.AccountState {
	snap := e.Snapshot()
	return domain.AccountState{
		AccountID:    accountID,
		TotalWins:    snap.TotalWins,
		CurrentLevel: e.CurrentLevel(),
		LevelEntries: snap.LevelEntries,
		NextStake:    e.NextStake(),
	}
}
