package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Outcome is the settled result of a trade.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

var ErrInvalidOutcome = errors.New("invalid outcome")

// ParseOutcome accepts win/loss in any case. "lose" is kept for older clients.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WIN":
		return OutcomeWin, nil
	case "LOSS", "LOSE":
		return OutcomeLoss, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// StakingConfig drives the leveling progression. It is read-only once the process serves requests.
type StakingConfig struct {
	EntryPercentage   float64 `yaml:"entry_percentage"`    // % of bankroll used to seed a level
	WinsToLevelUp     int     `yaml:"wins_to_level_up"`    // wins per level
	LossCompensation  int     `yaml:"loss_compensation"`   // wins removed by a loss
	MinimumStake      float64 `yaml:"minimum_stake"`       // floor for every stake
	LevelUpMultiplier float64 `yaml:"level_up_multiplier"` // applied to the previous level's stake

	// BoundaryLossPenalty is subtracted on top of LossCompensation when a loss lands
	// with zero wins accumulated in a level above 1. Zero disables it.
	BoundaryLossPenalty int `yaml:"boundary_loss_penalty"`
}

func DefaultStakingConfig() StakingConfig {
	return StakingConfig{
		EntryPercentage:   10,
		WinsToLevelUp:     5,
		LossCompensation:  1,
		MinimumStake:      2.0,
		LevelUpMultiplier: 1.5,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c StakingConfig) Validate() error {
	switch {
	case !isFinite(c.EntryPercentage):
		return fmt.Errorf("entry_percentage must be finite, got %v", c.EntryPercentage)
	case !isFinite(c.MinimumStake):
		return fmt.Errorf("minimum_stake must be finite, got %v", c.MinimumStake)
	case !isFinite(c.LevelUpMultiplier):
		return fmt.Errorf("level_up_multiplier must be finite, got %v", c.LevelUpMultiplier)
	case c.EntryPercentage <= 0:
		return fmt.Errorf("entry_percentage must be > 0, got %v", c.EntryPercentage)
	case c.WinsToLevelUp < 1:
		return fmt.Errorf("wins_to_level_up must be >= 1, got %d", c.WinsToLevelUp)
	case c.LossCompensation < 0:
		return fmt.Errorf("loss_compensation must be >= 0, got %d", c.LossCompensation)
	case c.MinimumStake <= 0:
		return fmt.Errorf("minimum_stake must be > 0, got %v", c.MinimumStake)
	case c.LevelUpMultiplier <= 0:
		return fmt.Errorf("level_up_multiplier must be > 0, got %v", c.LevelUpMultiplier)
	case c.BoundaryLossPenalty < 0:
		return fmt.Errorf("boundary_loss_penalty must be >= 0, got %d", c.BoundaryLossPenalty)
	}
	return nil
}

// LevelFor returns floor(wins / WinsToLevelUp) + 1.
func (c StakingConfig) LevelFor(wins int) int {
	if wins < 0 {
		wins = 0
	}
	return wins/c.WinsToLevelUp + 1
}

// Snapshot is the durable part of an account's staking state.
type Snapshot struct {
	TotalWins    int             `json:"total_wins"`
	LevelEntries map[int]float64 `json:"level_entries"`
}

// AccountState is the read-only projection returned to observers.
// Version grows with every mutation of the account and orders states of the same account.
type AccountState struct {
	AccountID    string          `json:"account"`
	Version      uint64          `json:"version"`
	TotalWins    int             `json:"total_wins"`
	CurrentLevel int             `json:"current_level"`
	LevelEntries map[int]float64 `json:"level_entries"`
	NextStake    float64         `json:"next_stake"`
}

// NormalizeAccountID upper-cases and trims an account identifier ("real" -> "REAL").
func NormalizeAccountID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
