package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/stake_leveling/internal/domain"
	"go.uber.org/zap"
)

// SettleRequest describes a trade whose result is known from the balances around it.
type SettleRequest struct {
	AccountID     string
	Asset         string
	Direction     domain.Direction
	Stake         float64
	BalanceBefore float64
	BalanceAfter  float64
}

type Settlement struct {
	Trade *domain.Trade       `json:"trade"`
	State domain.AccountState `json:"state"`
}

// TradeService records settled trades and feeds their outcome into the registry.
type TradeService struct {
	registry  *AccountRegistry
	tradeRepo domain.TradeRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewTradeService(registry *AccountRegistry, tradeRepo domain.TradeRepository, logger *zap.Logger) *TradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeService{
		registry:  registry,
		tradeRepo: tradeRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// OutcomeFromBalances treats any non-positive change as a loss (ties included).
func OutcomeFromBalances(before, after float64) (domain.Outcome, float64) {
	diff := domain.RoundCurrency(after - before)
	if diff > 0 {
		return domain.OutcomeWin, diff
	}
	return domain.OutcomeLoss, diff
}

// Settle journals the trade and applies its outcome. A journal failure does not block the staking update.
func (s *TradeService) Settle(ctx context.Context, req SettleRequest) (*Settlement, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("account is required")
	}
	for name, v := range map[string]float64{
		"stake": req.Stake, "balance_before": req.BalanceBefore, "balance_after": req.BalanceAfter,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s must be a finite number", name)
		}
	}

	outcome, profit := OutcomeFromBalances(req.BalanceBefore, req.BalanceAfter)
	trade := &domain.Trade{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		Asset:        req.Asset,
		Direction:    req.Direction,
		Outcome:      outcome,
		Profit:       profit,
		Stake:        domain.RoundCurrency(req.Stake),
		FinalBalance: req.BalanceAfter,
		CreatedAt:    s.now().UTC(),
	}

	if s.tradeRepo != nil {
		if err := s.tradeRepo.SaveTrade(ctx, trade); err != nil {
			s.logger.Error("Failed to save trade",
				zap.String("account", req.AccountID), zap.String("trade_id", trade.ID), zap.Error(err))
		}
	}

	state := s.registry.ProcessResult(ctx, req.AccountID, outcome, req.BalanceAfter)
	s.logger.Info("Trade settled",
		zap.String("account", req.AccountID),
		zap.String("asset", req.Asset),
		zap.String("outcome", string(outcome)),
		zap.Float64("profit", profit),
		zap.Float64("next_stake", state.NextStake))

	return &Settlement{Trade: trade, State: state}, nil
}

func (s *TradeService) History(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	if s.tradeRepo == nil {
		return []*domain.Trade{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	trades, err := s.tradeRepo.ListTrades(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// Stats summarizes up to limit of the most recent trades per account, or across all accounts
// when accountID is empty.
func (s *TradeService) Stats(ctx context.Context, accountID string, limit int) ([]domain.TradeStats, error) {
	if limit <= 0 {
		limit = 1000
	}
	trades, err := s.History(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	return AnalyzeTrades(trades), nil
}

// ResetHistory drops journaled trades; an empty accountID clears every account.
func (s *TradeService) ResetHistory(ctx context.Context, accountID string) error {
	if s.tradeRepo == nil {
		return nil
	}
	if err := s.tradeRepo.DeleteTrades(ctx, accountID); err != nil {
		return fmt.Errorf("delete trades: %w", err)
	}
	s.logger.Info("Trade history reset", zap.String("account", accountID))
	return nil
}
