package market

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// MarketDataRepository stores dated snapshots of derived market artifacts
// (sentiment, index overview, hot stocks), unique on (data_type, data_date).
type MarketDataRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMarketDataRepository creates a market-data repository.
func NewMarketDataRepository(db *database.DB, log zerolog.Logger) *MarketDataRepository {
	return &MarketDataRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "market_data").Logger(),
	}
}

// Upsert writes one snapshot, replacing the existing (type, date) row.
func (r *MarketDataRepository) Upsert(ctx context.Context, dataType, dataDate string, content map[string]any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot: %w", dataType, err)
	}

	query := `
		INSERT INTO market_data (data_type, data_date, data_content, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(data_type, data_date) DO UPDATE SET
			data_content = excluded.data_content,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, dataType, dataDate, string(raw)); err != nil {
		return fmt.Errorf("failed to upsert %s snapshot: %w", dataType, err)
	}
	return nil
}

// GetLatest returns the newest snapshot of the given type, or nil.
func (r *MarketDataRepository) GetLatest(ctx context.Context, dataType string) (*domain.MarketData, error) {
	query := `
		SELECT data_type, data_date, data_content, updated_at
		FROM market_data
		WHERE data_type = ?
		ORDER BY data_date DESC
		LIMIT 1
	`
	var md domain.MarketData
	var raw string
	err := r.db.QueryRowContext(ctx, query, dataType).
		Scan(&md.DataType, &md.DataDate, &raw, &md.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s snapshot: %w", dataType, err)
	}

	if err := json.Unmarshal([]byte(raw), &md.DataContent); err != nil {
		return nil, fmt.Errorf("failed to decode %s snapshot: %w", dataType, err)
	}
	return &md, nil
}
