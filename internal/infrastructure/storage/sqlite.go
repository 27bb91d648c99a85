package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/stake_leveling/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS staking_state (
			account_id TEXT PRIMARY KEY,
			total_wins INTEGER NOT NULL,
			level_entries_json TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			direction TEXT NOT NULL,
			outcome TEXT NOT NULL,
			profit REAL NOT NULL,
			stake REAL NOT NULL,
			final_balance REAL NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account_created ON trades(account_id, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StateStore Implementation

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	query := `SELECT total_wins, level_entries_json FROM staking_state WHERE account_id = ?`
	row := s.db.QueryRowContext(ctx, query, accountID)

	var (
		wins int
		raw  string
	)
	if err := row.Scan(&wins, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	entries, err := decodeLevelEntries(raw)
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{TotalWins: wins, LevelEntries: entries}, nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, accountID string, snap domain.Snapshot) error {
	raw, err := encodeLevelEntries(snap.LevelEntries)
	if err != nil {
		return err
	}
	query := `INSERT INTO staking_state (account_id, total_wins, level_entries_json, updated_at)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(account_id) DO UPDATE SET
			  total_wins=excluded.total_wins,
			  level_entries_json=excluded.level_entries_json,
			  updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, accountID, snap.TotalWins, raw, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM staking_state WHERE account_id = ?", accountID)
	return err
}

// ListSnapshots returns every stored snapshot keyed by account. Used by debug tooling.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) (map[string]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_id, total_wins, level_entries_json FROM staking_state ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Snapshot)
	for rows.Next() {
		var (
			id   string
			wins int
			raw  string
		)
		if err := rows.Scan(&id, &wins, &raw); err != nil {
			return nil, err
		}
		entries, err := decodeLevelEntries(raw)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		out[id] = domain.Snapshot{TotalWins: wins, LevelEntries: entries}
	}
	return out, rows.Err()
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	query := `INSERT INTO trades (id, account_id, asset, direction, outcome, profit, stake, final_balance, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.AccountID, t.Asset, string(t.Direction), string(t.Outcome), t.Profit, t.Stake, t.FinalBalance, t.CreatedAt)
	return err
}

// ListTrades returns the newest trades first. An empty accountID lists all accounts.
func (s *SQLiteStore) ListTrades(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	query := `SELECT id, account_id, asset, direction, outcome, profit, stake, final_balance, created_at FROM trades`
	args := []interface{}{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []*domain.Trade{}
	for rows.Next() {
		var t domain.Trade
		var direction, outcome string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Asset, &direction, &outcome, &t.Profit, &t.Stake, &t.FinalBalance, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.Outcome = domain.Outcome(outcome)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) DeleteTrades(ctx context.Context, accountID string) error {
	if accountID == "" {
		_, err := s.db.ExecContext(ctx, "DELETE FROM trades")
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM trades WHERE account_id = ?", accountID)
	return err
}
