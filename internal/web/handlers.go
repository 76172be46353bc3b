package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liqwatch/liqwatch/internal/domain"
	"github.com/liqwatch/liqwatch/internal/usecase"
	"go.uber.org/zap"
)

type positionRequest struct {
	Symbol       string  `json:"symbol"`
	EntryPrice   float64 `json:"entry_price"`
	Leverage     float64 `json:"leverage"`
	PositionType string  `json:"position_type"`
	PositionSize float64 `json:"position_size"`
}

type closeRequest struct {
	ExitPrice   float64 `json:"exit_price"`
	CloseReason string  `json:"close_reason"`
	Notes       string  `json:"notes"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.Is(err, domain.ErrDuplicatePosition):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "an equivalent open position already exists"})
	case errors.Is(err, domain.ErrPositionNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "position not found"})
	case errors.Is(err, domain.ErrPositionClosed):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "position already closed"})
	case errors.Is(err, usecase.ErrRefreshInFlight):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "a refresh is already running"})
	case errors.Is(err, usecase.ErrAllFetchesFailed):
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "price feed unavailable, data is stale"})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", 400)
		return
	}

	pos, err := usecase.NewPosition(req.Symbol, req.EntryPrice, req.Leverage,
		domain.PositionType(req.PositionType), req.PositionSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"position":    pos,
		"calculation": usecase.Calculate(pos),
	})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.portfolio.List())
}

func (s *Server) handleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", 400)
		return
	}

	pos, err := usecase.NewPosition(req.Symbol, req.EntryPrice, req.Leverage,
		domain.PositionType(req.PositionType), req.PositionSize)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tracked, err := s.portfolio.Add(r.Context(), pos)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tracked)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", 400)
		return
	}

	reason := domain.CloseReason(req.CloseReason)
	if reason == "" {
		reason = domain.CloseManual
	}

	closed, err := s.portfolio.Close(r.Context(), id, req.ExitPrice, reason, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, closed)
}

func (s *Server) handleRemovePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.portfolio.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.refresher.RefreshNow(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	open, closed := s.portfolio.Counts()
	critical := usecase.NewAlertEvaluator().CriticalCount(s.portfolio.List())

	s.writeJSON(w, http.StatusOK, map[string]any{
		"open_positions":   open,
		"closed_positions": closed,
		"critical_count":   critical,
		"last_refresh":     s.refresher.LastRefresh(),
	})
}
