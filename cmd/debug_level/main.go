package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vitos/stake_leveling/internal/config"
	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/usecase"
)

// Replays a W/L sequence through a fresh engine and prints the stake ladder.
//
//	go run ./cmd/debug_level -bankroll 60 -seq WWWWWWWWWWL
func main() {
	cfgPath := flag.String("config", "config/config.yaml", "config file")
	bankroll := flag.Float64("bankroll", 60, "bankroll used for seeding and re-basing")
	seq := flag.String("seq", "WWWWWL", "outcomes, W or L")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	engine := usecase.NewStakingEngine(*bankroll, cfg.Staking)
	fmt.Printf("start: level=%d stake=%.2f\n", engine.CurrentLevel(), engine.NextStake())

	for i, c := range strings.ToUpper(*seq) {
		var outcome domain.Outcome
		switch c {
		case 'W':
			outcome = domain.OutcomeWin
		case 'L':
			outcome = domain.OutcomeLoss
		default:
			fmt.Printf("skip %q at %d\n", c, i)
			continue
		}

		before := engine.CurrentLevel()
		engine.ProcessResult(outcome, *bankroll)
		marker := ""
		if after := engine.CurrentLevel(); after > before {
			marker = " ^"
		} else if after < before {
			marker = " v"
		}
		fmt.Printf("%3d %-4s wins=%-3d level=%-2d stake=%.2f%s\n",
			i+1, outcome, engine.TotalWins(), engine.CurrentLevel(), engine.NextStake(), marker)
	}

	fmt.Printf("entries: %v\n", engine.Snapshot().LevelEntries)
}
