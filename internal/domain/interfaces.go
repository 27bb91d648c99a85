package domain

import "context"

// StateStore persists one Snapshot per account.
// Load returns (nil, nil) when no snapshot exists. Save is an upsert.
type StateStore interface {
	LoadSnapshot(ctx context.Context, accountID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, accountID string, snap Snapshot) error
	DeleteSnapshot(ctx context.Context, accountID string) error
}

// TradeRepository defines storage operations for the trade journal.
type TradeRepository interface {
	SaveTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, accountID string, limit int) ([]*Trade, error)
	DeleteTrades(ctx context.Context, accountID string) error
}
