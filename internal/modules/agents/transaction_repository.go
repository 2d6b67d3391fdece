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

// TransactionRepository persists settlement records.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a transaction repository.
func NewTransactionRepository(db *database.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// Save appends one transaction. Synthetic hold rows carry nil fees.
func (r *TransactionRepository) Save(ctx context.Context, t *domain.Transaction) error {
	var price, commission, stampTax, transferFee *string
	if t.Price != nil {
		s := t.Price.String()
		price = &s
	}
	if t.Fees != nil {
		c := t.Fees.Commission.String()
		st := t.Fees.StampTax.String()
		tf := t.Fees.TransferFee.String()
		commission, stampTax, transferFee = &c, &st, &tf
	}

	query := `
		INSERT INTO transactions (tx_id, order_id, agent_id, stock_code, side, quantity, price, commission, stamp_tax, transfer_fee, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, t.TxID, t.OrderID, t.AgentID, t.StockCode,
		string(t.Side), t.Quantity, price, commission, stampTax, transferFee, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", t.TxID, err)
	}
	return nil
}

// ListByAgent returns an agent's transactions newest first.
func (r *TransactionRepository) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.Transaction, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT tx_id, order_id, agent_id, stock_code, side, quantity, price, commission, stamp_tax, transfer_fee, executed_at
		FROM transactions WHERE agent_id = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for %s: %w", agentID, err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CountByAgent returns the agent's transaction count.
func (r *TransactionRepository) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE agent_id = ?`, agentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions for %s: %w", agentID, err)
	}
	return n, nil
}

// SumFees returns the agent's lifetime fee total.
func (r *TransactionRepository) SumFees(ctx context.Context, agentID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(CAST(commission AS REAL) + CAST(stamp_tax AS REAL) + CAST(transfer_fee AS REAL)), 0)
		FROM transactions WHERE agent_id = ? AND commission IS NOT NULL
	`
	var total float64
	if err := r.db.QueryRowContext(ctx, query, agentID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum fees for %s: %w", agentID, err)
	}
	return decimal.NewFromFloat(total).Round(2), nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var side string
	var price, commission, stampTax, transferFee sql.NullString

	err := row.Scan(&t.TxID, &t.OrderID, &t.AgentID, &t.StockCode, &side,
		&t.Quantity, &price, &commission, &stampTax, &transferFee, &t.ExecutedAt)
	if err != nil {
		return nil, err
	}
	t.Side = domain.OrderSide(side)

	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", price.String, err)
		}
		t.Price = &d
	}
	if commission.Valid {
		fees := domain.TradingFees{}
		if fees.Commission, err = decimal.NewFromString(commission.String); err != nil {
			return nil, fmt.Errorf("bad commission %q: %w", commission.String, err)
		}
		if fees.StampTax, err = decimal.NewFromString(stampTax.String); err != nil {
			return nil, fmt.Errorf("bad stamp_tax %q: %w", stampTax.String, err)
		}
		if fees.TransferFee, err = decimal.NewFromString(transferFee.String); err != nil {
			return nil, fmt.Errorf("bad transfer_fee %q: %w", transferFee.String, err)
		}
		t.Fees = &fees
	}
	return &t, nil
}
