package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/liqwatch/liqwatch/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			entry_price REAL NOT NULL,
			leverage REAL NOT NULL,
			position_type TEXT NOT NULL,
			position_size REAL NOT NULL,
			margin_used REAL NOT NULL,
			status TEXT NOT NULL,
			current_price REAL NOT NULL,
			liquidation_price REAL NOT NULL,
			unrealized_pnl REAL NOT NULL DEFAULT 0,
			unrealized_pnl_pct REAL NOT NULL DEFAULT 0,
			risk_level TEXT NOT NULL,
			distance_to_liq REAL NOT NULL DEFAULT 0,
			last_updated DATETIME NOT NULL,
			added_at DATETIME NOT NULL,
			exit_price REAL,
			exit_date DATETIME,
			realized_pnl REAL,
			close_reason TEXT,
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	// Migration: notes column was added after the first release.
	// We ignore the error if the column already exists.
	_, _ = s.db.Exec(`ALTER TABLE positions ADD COLUMN notes TEXT NOT NULL DEFAULT ''`)

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const positionColumns = `id, symbol, entry_price, leverage, position_type, position_size, margin_used,
	status, current_price, liquidation_price, unrealized_pnl, unrealized_pnl_pct, risk_level,
	distance_to_liq, last_updated, added_at, exit_price, exit_date, realized_pnl, close_reason, notes`

// ListPositions returns all positions, most recently added first.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]*domain.PortfolioPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM positions ORDER BY added_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.PortfolioPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			// A single bad row must not take down the whole portfolio.
			s.logger.Warn("skipping unreadable position row", zap.Error(err))
			continue
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) UpsertPosition(ctx context.Context, pos *domain.PortfolioPosition) error {
	return s.upsert(ctx, s.db, pos)
}

// UpsertPositions writes a refresh batch in a single transaction.
func (s *SQLiteStore) UpsertPositions(ctx context.Context, positions []*domain.PortfolioPosition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if err := s.upsert(ctx, tx, p); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE id = ?", id)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, db execer, p *domain.PortfolioPosition) error {
	query := `INSERT INTO positions (` + positionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  status=excluded.status,
			  current_price=excluded.current_price,
			  unrealized_pnl=excluded.unrealized_pnl,
			  unrealized_pnl_pct=excluded.unrealized_pnl_pct,
			  risk_level=excluded.risk_level,
			  distance_to_liq=excluded.distance_to_liq,
			  last_updated=excluded.last_updated,
			  exit_price=excluded.exit_price,
			  exit_date=excluded.exit_date,
			  realized_pnl=excluded.realized_pnl,
			  close_reason=excluded.close_reason,
			  notes=excluded.notes`

	var closeReason *string
	if p.CloseReason != nil {
		r := string(*p.CloseReason)
		closeReason = &r
	}

	_, err := db.ExecContext(ctx, query,
		p.ID, p.Symbol, p.EntryPrice, p.Leverage, string(p.PositionType), p.PositionSize, p.MarginUsed,
		string(p.Status), p.CurrentPrice, p.LiquidationPrice, p.UnrealizedPnL, p.UnrealizedPnLPct,
		string(p.RiskLevel), p.DistanceToLiq, p.LastUpdated, p.AddedAt,
		p.ExitPrice, p.ExitDate, p.RealizedPnL, closeReason, p.Notes)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (*domain.PortfolioPosition, error) {
	var p domain.PortfolioPosition
	var positionType, status, riskLevel string
	var exitPrice, realizedPnL sql.NullFloat64
	var exitDate sql.NullTime
	var closeReason sql.NullString

	err := row.Scan(&p.ID, &p.Symbol, &p.EntryPrice, &p.Leverage, &positionType, &p.PositionSize,
		&p.MarginUsed, &status, &p.CurrentPrice, &p.LiquidationPrice, &p.UnrealizedPnL,
		&p.UnrealizedPnLPct, &riskLevel, &p.DistanceToLiq, &p.LastUpdated, &p.AddedAt,
		&exitPrice, &exitDate, &realizedPnL, &closeReason, &p.Notes)
	if err != nil {
		return nil, err
	}

	p.PositionType = domain.PositionType(positionType)
	p.Status = domain.PositionStatus(status)
	p.RiskLevel = domain.RiskLevel(riskLevel)

	if exitPrice.Valid {
		p.ExitPrice = &exitPrice.Float64
	}
	if exitDate.Valid {
		p.ExitDate = &exitDate.Time
	}
	if realizedPnL.Valid {
		p.RealizedPnL = &realizedPnL.Float64
	}
	if closeReason.Valid {
		reason := domain.CloseReason(closeReason.String)
		p.CloseReason = &reason
	}
	return &p, nil
}
