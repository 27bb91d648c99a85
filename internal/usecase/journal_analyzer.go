package usecase

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vitos/stake_leveling/internal/domain"
)

// AnalyzeTrades groups trades by account and summarizes each group.
// Input order does not matter; runs are computed in settlement order.
func AnalyzeTrades(trades []*domain.Trade) []domain.TradeStats {
	byAccount := make(map[string][]*domain.Trade)
	for _, t := range trades {
		if t == nil {
			continue
		}
		byAccount[t.AccountID] = append(byAccount[t.AccountID], t)
	}

	ids := make([]string, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.TradeStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, analyzeAccount(id, byAccount[id]))
	}
	return out
}

func analyzeAccount(accountID string, trades []*domain.Trade) domain.TradeStats {
	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	st := domain.TradeStats{AccountID: accountID, Trades: len(sorted)}
	profit := decimal.Zero
	staked := decimal.Zero
	winRun, lossRun := 0, 0

	for _, t := range sorted {
		profit = profit.Add(decimal.NewFromFloat(t.Profit))
		staked = staked.Add(decimal.NewFromFloat(t.Stake))

		if t.Outcome == domain.OutcomeWin {
			st.Wins++
			winRun++
			lossRun = 0
		} else {
			st.Losses++
			lossRun++
			winRun = 0
		}
		if winRun > st.LongestWinRun {
			st.LongestWinRun = winRun
		}
		if lossRun > st.LongestLossRun {
			st.LongestLossRun = lossRun
		}
	}

	if len(sorted) > 0 {
		st.LastBalance = sorted[len(sorted)-1].FinalBalance
		st.WinRate = domain.RoundCurrency(float64(st.Wins) * 100 / float64(st.Trades))
	}
	st.NetProfit, _ = profit.Round(2).Float64()
	st.TotalStaked, _ = staked.Round(2).Float64()
	return st
}
