package agents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// PositionRepository persists stock holdings, unique on (agent, code).
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a position repository.
func NewPositionRepository(db *database.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "position").Logger(),
	}
}

// Upsert writes a holding, replacing the (agent, code) row.
func (r *PositionRepository) Upsert(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO positions (agent_id, stock_code, stock_name, shares, avg_cost, buy_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(agent_id, stock_code) DO UPDATE SET
			stock_name = excluded.stock_name,
			shares = excluded.shares,
			avg_cost = excluded.avg_cost,
			buy_date = excluded.buy_date,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query, p.AgentID, p.StockCode, p.StockName,
		p.Shares, p.AvgCost.String(), p.BuyDate)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w", p.AgentID, p.StockCode, err)
	}
	return nil
}

// Delete removes the holding row; used when shares reach zero.
func (r *PositionRepository) Delete(ctx context.Context, agentID, stockCode string) error {
	query := `DELETE FROM positions WHERE agent_id = ? AND stock_code = ?`
	if _, err := r.db.ExecContext(ctx, query, agentID, stockCode); err != nil {
		return fmt.Errorf("failed to delete position %s/%s: %w", agentID, stockCode, err)
	}
	return nil
}

// ListByAgent returns every holding of an agent.
func (r *PositionRepository) ListByAgent(ctx context.Context, agentID string) ([]*domain.Position, error) {
	query := `
		SELECT agent_id, stock_code, COALESCE(stock_name, ''), shares, avg_cost, buy_date, updated_at
		FROM positions WHERE agent_id = ? ORDER BY stock_code ASC
	`
	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for %s: %w", agentID, err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var p domain.Position
		var avgCost string
		if err := rows.Scan(&p.AgentID, &p.StockCode, &p.StockName, &p.Shares, &avgCost, &p.BuyDate, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		if p.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
			return nil, fmt.Errorf("bad avg_cost %q: %w", avgCost, err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// CountByAgent returns how many distinct holdings the agent has.
func (r *PositionRepository) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE agent_id = ?`, agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions for %s: %w", agentID, err)
	}
	return n, nil
}
