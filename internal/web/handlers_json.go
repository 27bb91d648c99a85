package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/usecase"
	"go.uber.org/zap"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Status: "error", Message: msg})
}

func requireAccount(raw string) (string, error) {
	id := domain.NormalizeAccountID(raw)
	if id == "" {
		return "", errors.New("account is required")
	}
	return id, nil
}

func parseBankroll(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("bankroll is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bankroll %q", raw)
	}
	return checkFinite("bankroll", v)
}

func checkFinite(name string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a finite number", name)
	}
	return v, nil
}

// requireAmount rejects a JSON amount that was omitted or sent as null.
func requireAmount(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%s is required", name)
	}
	return checkFinite(name, *v)
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"accounts": len(s.registry.Accounts()),
	})
}

type stakeResponse struct {
	Account string  `json:"account"`
	Stake   float64 `json:"stake"`
	Level   int     `json:"level"`
}

func (s *Server) handleNextStake(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account, err := requireAccount(q.Get("account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bankroll, err := parseBankroll(q.Get("bankroll"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := s.registry.Quote(r.Context(), account, bankroll)
	s.writeJSON(w, http.StatusOK, stakeResponse{Account: account, Stake: st.NextStake, Level: st.CurrentLevel})
}

type resultRequest struct {
	Account  string   `json:"account"`
	Outcome  string   `json:"outcome"`
	Bankroll *float64 `json:"bankroll"`
}

func (s *Server) handleProcessResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := requireAccount(req.Account)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bankroll, err := requireAmount("bankroll", req.Bankroll)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := s.registry.ProcessResult(r.Context(), account, outcome, bankroll)
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	account, err := requireAccount(r.URL.Query().Get("account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, ok := s.registry.GetState(account)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no staking state for %s", account))
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

type resetRequest struct {
	Account  string   `json:"account"`
	Bankroll *float64 `json:"bankroll"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := requireAccount(req.Account)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bankroll, err := requireAmount("bankroll", req.Bankroll)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := s.registry.Reset(r.Context(), account, bankroll)
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.Accounts()
	states := make([]domain.AccountState, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.registry.GetState(id); ok {
			states = append(states, st)
		}
	}
	s.writeJSON(w, http.StatusOK, states)
}

type settleRequest struct {
	Account       string   `json:"account"`
	Asset         string   `json:"asset"`
	Direction     string   `json:"direction"`
	Stake         *float64 `json:"stake"`
	BalanceBefore *float64 `json:"balance_before"`
	BalanceAfter  *float64 `json:"balance_after"`
}

// parseDirection accepts call/put and the buy/sell aliases.
func parseDirection(raw string) (domain.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "call", "buy":
		return domain.DirectionCall, nil
	case "put", "sell":
		return domain.DirectionPut, nil
	}
	return "", fmt.Errorf("direction must be call/put (buy/sell), got %q", raw)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := requireAccount(req.Account)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		s.writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	direction, err := parseDirection(req.Direction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stake, err := requireAmount("stake", req.Stake)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	before, err := requireAmount("balance_before", req.BalanceBefore)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	after, err := requireAmount("balance_after", req.BalanceAfter)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settlement, err := s.trades.Settle(r.Context(), usecase.SettleRequest{
		AccountID:     account,
		Asset:         strings.TrimSpace(req.Asset),
		Direction:     direction,
		Stake:         stake,
		BalanceBefore: before,
		BalanceAfter:  after,
	})
	if err != nil {
		s.logger.Error("Failed to settle trade", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, settlement)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := domain.NormalizeAccountID(q.Get("account"))
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := s.trades.History(r.Context(), account, limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := domain.NormalizeAccountID(q.Get("account"))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	stats, err := s.trades.Stats(r.Context(), account, limit)
	if err != nil {
		s.logger.Error("Failed to compute trade stats", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to compute trade stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleResetTrades(w http.ResponseWriter, r *http.Request) {
	account := domain.NormalizeAccountID(r.URL.Query().Get("account"))
	if err := s.trades.ResetHistory(r.Context(), account); err != nil {
		s.logger.Error("Failed to reset trades", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to reset trades")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
