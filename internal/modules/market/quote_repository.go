package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// QuoteRepository persists daily OHLCV rows in the market database.
// Upserts are idempotent on (stock_code, trade_date).
type QuoteRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewQuoteRepository creates a quote repository.
func NewQuoteRepository(db *database.DB, log zerolog.Logger) *QuoteRepository {
	return &QuoteRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "quote").Logger(),
	}
}

// QuoteWithChange is a latest-per-stock listing row with the day's move.
type QuoteWithChange struct {
	domain.StockQuote
	ChangePct decimal.Decimal `json:"change_pct"`
}

// Upsert writes one daily row, replacing an existing (code, date) row.
func (r *QuoteRepository) Upsert(ctx context.Context, q *domain.StockQuote) error {
	query := `
		INSERT INTO stock_quotes (stock_code, stock_name, trade_date, open, high, low, close, prev_close, volume, amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(stock_code, trade_date) DO UPDATE SET
			stock_name = excluded.stock_name,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			prev_close = excluded.prev_close,
			volume = excluded.volume,
			amount = excluded.amount,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		q.StockCode, q.StockName, q.TradeDate,
		q.Open.String(), q.High.String(), q.Low.String(), q.Close.String(),
		q.PrevClose.String(), q.Volume, q.Amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert quote %s/%s: %w", q.StockCode, q.TradeDate, err)
	}
	return nil
}

// UpsertBatch writes many rows, counting per-row outcomes instead of
// failing the batch.
func (r *QuoteRepository) UpsertBatch(ctx context.Context, quotes []*domain.StockQuote) (success, fail int) {
	for _, q := range quotes {
		if err := r.Upsert(ctx, q); err != nil {
			r.log.Warn().Err(err).Str("stock_code", q.StockCode).Msg("quote upsert failed")
			fail++
			continue
		}
		success++
	}
	return success, fail
}

// GetLatest returns the most recent daily row for a stock, or nil.
func (r *QuoteRepository) GetLatest(ctx context.Context, stockCode string) (*domain.StockQuote, error) {
	query := `
		SELECT stock_code, COALESCE(stock_name, ''), trade_date, open, high, low, close, COALESCE(prev_close, '0'), volume, COALESCE(amount, '0')
		FROM stock_quotes
		WHERE stock_code = ?
		  AND trade_date = (SELECT MAX(trade_date) FROM stock_quotes WHERE stock_code = ?)
	`
	q, err := scanQuote(r.db.QueryRowContext(ctx, query, stockCode, stockCode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest quote for %s: %w", stockCode, err)
	}
	return q, nil
}

// GetRecent returns up to limit most-recent rows for a stock, sorted
// ascending by trade date.
func (r *QuoteRepository) GetRecent(ctx context.Context, stockCode string, limit int) ([]*domain.StockQuote, error) {
	query := `
		SELECT stock_code, COALESCE(stock_name, ''), trade_date, open, high, low, close, COALESCE(prev_close, '0'), volume, COALESCE(amount, '0')
		FROM (
			SELECT * FROM stock_quotes
			WHERE stock_code = ?
			ORDER BY trade_date DESC
			LIMIT ?
		)
		ORDER BY trade_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, stockCode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent quotes for %s: %w", stockCode, err)
	}
	defer rows.Close()

	var quotes []*domain.StockQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// GetRange returns rows for a stock between two dates inclusive, ascending.
func (r *QuoteRepository) GetRange(ctx context.Context, stockCode, from, to string) ([]*domain.StockQuote, error) {
	query := `
		SELECT stock_code, COALESCE(stock_name, ''), trade_date, open, high, low, close, COALESCE(prev_close, '0'), volume, COALESCE(amount, '0')
		FROM stock_quotes
		WHERE stock_code = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, stockCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote range for %s: %w", stockCode, err)
	}
	defer rows.Close()

	var quotes []*domain.StockQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// ListLatest returns the latest row per stock, paginated, with the day's
// change_pct computed against prev_close.
func (r *QuoteRepository) ListLatest(ctx context.Context, page, pageSize int) ([]*QuoteWithChange, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT stock_code) FROM stock_quotes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count stocks: %w", err)
	}

	query := `
		SELECT q.stock_code, COALESCE(q.stock_name, ''), q.trade_date, q.open, q.high, q.low, q.close, COALESCE(q.prev_close, '0'), q.volume, COALESCE(q.amount, '0')
		FROM stock_quotes q
		JOIN (
			SELECT stock_code, MAX(trade_date) AS max_date
			FROM stock_quotes
			GROUP BY stock_code
		) m ON q.stock_code = m.stock_code AND q.trade_date = m.max_date
		ORDER BY q.stock_code ASC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list latest quotes: %w", err)
	}
	defer rows.Close()

	var result []*QuoteWithChange
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan quote row: %w", err)
		}
		result = append(result, &QuoteWithChange{
			StockQuote: *q,
			ChangePct:  ChangePct(q.Close, q.PrevClose),
		})
	}
	return result, total, rows.Err()
}

// ChangePct computes (close - prevClose) / prevClose * 100, zero when
// prevClose is not positive.
func ChangePct(close, prevClose decimal.Decimal) decimal.Decimal {
	if !prevClose.IsPositive() {
		return decimal.Zero
	}
	return close.Sub(prevClose).Div(prevClose).Mul(decimal.NewFromInt(100)).Round(2)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (*domain.StockQuote, error) {
	var q domain.StockQuote
	var open, high, low, closeP, prevClose, amount string

	err := row.Scan(&q.StockCode, &q.StockName, &q.TradeDate,
		&open, &high, &low, &closeP, &prevClose, &q.Volume, &amount)
	if err != nil {
		return nil, err
	}

	if q.Open, err = decimal.NewFromString(open); err != nil {
		return nil, fmt.Errorf("bad open value %q: %w", open, err)
	}
	if q.High, err = decimal.NewFromString(high); err != nil {
		return nil, fmt.Errorf("bad high value %q: %w", high, err)
	}
	if q.Low, err = decimal.NewFromString(low); err != nil {
		return nil, fmt.Errorf("bad low value %q: %w", low, err)
	}
	if q.Close, err = decimal.NewFromString(closeP); err != nil {
		return nil, fmt.Errorf("bad close value %q: %w", closeP, err)
	}
	if q.PrevClose, err = decimal.NewFromString(prevClose); err != nil {
		return nil, fmt.Errorf("bad prev_close value %q: %w", prevClose, err)
	}
	if q.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount value %q: %w", amount, err)
	}
	return &q, nil
}
