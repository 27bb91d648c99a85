package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/vitos/stake_leveling/internal/infrastructure/storage"
)

func main() {
	path := flag.String("db", "stake.db", "sqlite database path")
	limit := flag.Int("trades", 10, "recent trades to print")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*path)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	snaps, err := store.ListSnapshots(ctx)
	if err != nil {
		fmt.Printf("Failed to list snapshots: %v\n", err)
		os.Exit(1)
	}

	ids := make([]string, 0, len(snaps))
	for id := range snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("Found %d accounts:\n", len(ids))
	for _, id := range ids {
		snap := snaps[id]
		levels := make([]int, 0, len(snap.LevelEntries))
		for l := range snap.LevelEntries {
			levels = append(levels, l)
		}
		sort.Ints(levels)

		fmt.Printf("- %s: total_wins=%d\n", id, snap.TotalWins)
		for _, l := range levels {
			fmt.Printf("    L%d = %.2f\n", l, snap.LevelEntries[l])
		}
	}

	trades, err := store.ListTrades(ctx, "", *limit)
	if err != nil {
		fmt.Printf("Failed to list trades: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLast %d trades:\n", len(trades))
	for _, t := range trades {
		fmt.Printf("- %s %s %s %s %s profit=%.2f stake=%.2f balance=%.2f\n",
			t.CreatedAt.Format("2006-01-02 15:04:05"), t.AccountID, t.Asset, t.Direction, t.Outcome,
			t.Profit, t.Stake, t.FinalBalance)
	}
}
