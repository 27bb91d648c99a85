package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vitos/stake_leveling/internal/domain"
)

const (
	stateTable       = "staking_state"
	accountIDCol     = "account_id"
	totalWinsCol     = "total_wins"
	levelEntriesCol  = "level_entries_json"
	updatedAtCol     = "updated_at"
	tradesTable      = "trades"
	tradeColumnsList = "id, account_id, asset, direction, outcome, profit, stake, final_balance, created_at"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresStore struct {
	dbc *pgxpool.Pool
}

// NewPostgresStore connects, pings and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dbc, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := dbc.Ping(ctx); err != nil {
		dbc.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	store := &PostgresStore{dbc: dbc}
	if err := store.initSchema(ctx); err != nil {
		dbc.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS staking_state (
			account_id VARCHAR(64) PRIMARY KEY,
			total_wins INTEGER NOT NULL,
			level_entries_json TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id VARCHAR(36) PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL,
			asset VARCHAR(255) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			outcome VARCHAR(10) NOT NULL,
			profit NUMERIC(12, 2) NOT NULL,
			stake NUMERIC(12, 2) NOT NULL,
			final_balance NUMERIC(12, 2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account_created ON trades(account_id, created_at DESC);`,
	}
	for _, q := range queries {
		if _, err := s.dbc.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.dbc.Close()
}

// LoadSnapshot returns (nil, nil) when the account has no row.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	sqlStr, args, err := psql.Select(totalWinsCol, levelEntriesCol).
		From(stateTable).
		Where(sq.Eq{accountIDCol: accountID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		wins int
		raw  string
	)
	err = s.dbc.QueryRow(ctx, sqlStr, args...).Scan(&wins, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) SaveSnapshot(ctx context.Context, accountID string, snap domain.Snapshot) error {
	raw, err := encodeLevelEntries(snap.LevelEntries)
	if err != nil {
		return err
	}

	sqlStr, args, err := psql.Insert(stateTable).
		Columns(accountIDCol, totalWinsCol, levelEntriesCol, updatedAtCol).
		Values(accountID, snap.TotalWins, raw, time.Now().UTC()).
		Suffix(`ON CONFLICT (account_id) DO UPDATE SET
			total_wins = EXCLUDED.total_wins,
			level_entries_json = EXCLUDED.level_entries_json,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.dbc.Exec(ctx, sqlStr, args...)
	return err
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, accountID string) error {
	sqlStr, args, err := psql.Delete(stateTable).
		Where(sq.Eq{accountIDCol: accountID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.dbc.Exec(ctx, sqlStr, args...)
	return err
}

func (s *PostgresStore) SaveTrade(ctx context.Context, t *domain.Trade) error {
	sqlStr, args, err := psql.Insert(tradesTable).
		Columns("id", "account_id", "asset", "direction", "outcome", "profit", "stake", "final_balance", "created_at").
		Values(t.ID, t.AccountID, t.Asset, string(t.Direction), string(t.Outcome), t.Profit, t.Stake, t.FinalBalance, t.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.dbc.Exec(ctx, sqlStr, args...)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	query := psql.Select(tradeColumnsList).
		From(tradesTable).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if accountID != "" {
		query = query.Where(sq.Eq{accountIDCol: accountID})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.dbc.Query(ctx, sqlStr, args...)
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

func (s *PostgresStore) DeleteTrades(ctx context.Context, accountID string) error {
	if accountID == "" {
		_, err := s.dbc.Exec(ctx, "TRUNCATE TABLE trades")
		return err
	}
	sqlStr, args, err := psql.Delete(tradesTable).
		Where(sq.Eq{accountIDCol: accountID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.dbc.Exec(ctx, sqlStr, args...)
	return err
}
