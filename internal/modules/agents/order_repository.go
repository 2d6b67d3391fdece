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

// OrderRepository persists order rows, the audit trail of every decision.
type OrderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewOrderRepository creates an order repository.
func NewOrderRepository(db *database.DB, log zerolog.Logger) *OrderRepository {
	return &OrderRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "order").Logger(),
	}
}

// Save appends one order row, filled or rejected.
func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	var price *string
	if o.Price != nil {
		s := o.Price.String()
		price = &s
	}
	query := `
		INSERT INTO orders (order_id, agent_id, stock_code, side, quantity, price, status, reject_reason, reason, llm_request_log_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, o.OrderID, o.AgentID, o.StockCode,
		string(o.Side), o.Quantity, price, string(o.Status),
		nullIfEmpty(o.RejectReason), nullIfEmpty(o.Reason), o.LLMRequestLogID, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", o.OrderID, err)
	}
	return nil
}

// Get returns one order, or nil.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `
		SELECT order_id, agent_id, stock_code, side, quantity, price, status, reject_reason, reason, llm_request_log_id, created_at
		FROM orders WHERE order_id = ?
	`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return o, nil
}

// ListByAgent returns an agent's orders newest first, paginated.
func (r *OrderRepository) ListByAgent(ctx context.Context, agentID string, page, pageSize int) ([]*domain.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE agent_id = ?`, agentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders for %s: %w", agentID, err)
	}

	query := `
		SELECT order_id, agent_id, stock_code, side, quantity, price, status, reject_reason, reason, llm_request_log_id, created_at
		FROM orders WHERE agent_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders for %s: %w", agentID, err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// CountByAgent returns the agent's total order count.
func (r *OrderRepository) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE agent_id = ?`, agentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders for %s: %w", agentID, err)
	}
	return n, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var side, status string
	var rejectReason, reason, price sql.NullString
	err := row.Scan(&o.OrderID, &o.AgentID, &o.StockCode, &side, &o.Quantity,
		&price, &status, &rejectReason, &reason, &o.LLMRequestLogID, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.RejectReason = rejectReason.String
	o.Reason = reason.String
	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", price.String, err)
		}
		o.Price = &d
	}
	return &o, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
