package domain

import "time"

type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Trade is a settled binary-option trade kept in the journal.
type Trade struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account"`
	Asset        string    `json:"asset"`
	Direction    Direction `json:"direction"`
	Outcome      Outcome   `json:"outcome"`
	Profit       float64   `json:"profit"`
	Stake        float64   `json:"stake"`
	FinalBalance float64   `json:"final_balance"`
	CreatedAt    time.Time `json:"created_at"`
}
