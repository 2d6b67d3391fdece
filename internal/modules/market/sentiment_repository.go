package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
)

// SentimentRepository stores one market-level sentiment score per day,
// in the range -1..+1.
type SentimentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSentimentRepository creates a sentiment-score repository.
func NewSentimentRepository(db *database.DB, log zerolog.Logger) *SentimentRepository {
	return &SentimentRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "sentiment").Logger(),
	}
}

// Upsert writes the score for a date.
func (r *SentimentRepository) Upsert(ctx context.Context, scoreDate string, score float64, source string) error {
	query := `
		INSERT INTO sentiment_scores (score_date, score, source)
		VALUES (?, ?, ?)
		ON CONFLICT(score_date) DO UPDATE SET
			score = excluded.score,
			source = excluded.source
	`
	if _, err := r.db.ExecContext(ctx, query, scoreDate, score, source); err != nil {
		return fmt.Errorf("failed to upsert sentiment score: %w", err)
	}
	return nil
}

// GetLatest returns the newest stored score. found is false when no score
// has ever been stored; callers then derive one from the fear-greed index.
func (r *SentimentRepository) GetLatest(ctx context.Context) (score float64, found bool, err error) {
	query := `SELECT score FROM sentiment_scores ORDER BY score_date DESC LIMIT 1`
	err = r.db.QueryRowContext(ctx, query).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest sentiment score: %w", err)
	}
	return score, true, nil
}
