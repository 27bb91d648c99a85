package domain

// TradeStats summarizes the journal of one account.
type TradeStats struct {
	AccountID      string  `json:"account"`
	Trades         int     `json:"trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"` // percent, 2 decimals
	NetProfit      float64 `json:"net_profit"`
	TotalStaked    float64 `json:"total_staked"`
	LongestWinRun  int     `json:"longest_win_run"`
	LongestLossRun int     `json:"longest_loss_run"`
	LastBalance    float64 `json:"last_balance"`
}
