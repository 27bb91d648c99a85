package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/infrastructure/storage"
	"github.com/vitos/stake_leveling/internal/usecase"
)

func main() {
	path := flag.String("db", "stake.db", "sqlite database path")
	account := flag.String("account", "", "limit to one account")
	limit := flag.Int("limit", 1000, "most recent trades to analyze")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*path)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	trades, err := store.ListTrades(context.Background(), domain.NormalizeAccountID(*account), *limit)
	if err != nil {
		fmt.Printf("Failed to list trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return
	}

	fmt.Printf("%-12s | %6s | %5s | %6s | %8s | %10s | %10s | %7s | %7s\n",
		"Account", "Trades", "Wins", "Losses", "Win %", "Net", "Staked", "W-run", "L-run")
	fmt.Println(strings.Repeat("-", 96))
	for _, st := range usecase.AnalyzeTrades(trades) {
		fmt.Printf("%-12s | %6d | %5d | %6d | %7.2f%% | %10.2f | %10.2f | %7d | %7d\n",
			st.AccountID, st.Trades, st.Wins, st.Losses, st.WinRate, st.NetProfit, st.TotalStaked,
			st.LongestWinRun, st.LongestLossRun)
	}
}
