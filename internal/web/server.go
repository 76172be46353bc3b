package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/liqwatch/liqwatch/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	portfolio *usecase.PortfolioService
	refresher *usecase.Refresher
	logger    *zap.Logger
}

func NewServer(
	port int,
	portfolio *usecase.PortfolioService,
	refresher *usecase.Refresher,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		portfolio: portfolio,
		refresher: refresher,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Calculator
	s.router.HandleFunc("POST /api/calculate", s.handleCalculate)

	// Portfolio
	s.router.HandleFunc("GET /api/positions", s.handleListPositions)
	s.router.HandleFunc("POST /api/positions", s.handleAddPosition)
	s.router.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)
	s.router.HandleFunc("DELETE /api/positions/{id}", s.handleRemovePosition)

	// Refresh
	s.router.HandleFunc("POST /api/refresh", s.handleRefresh)

	// Status
	s.router.HandleFunc("GET /api/status", s.handleStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
