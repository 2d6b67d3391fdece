package llm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// LogRepository appends LLM request audit rows.
type LogRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLogRepository creates an LLM request-log repository.
func NewLogRepository(db *database.DB, log zerolog.Logger) *LogRepository {
	return &LogRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "llm_log").Logger(),
	}
}

// Append writes one log row and returns its auto-increment id, which
// downstream order rows reference.
func (r *LogRepository) Append(ctx context.Context, entry *domain.LLMRequestLog) (int64, error) {
	query := `
		INSERT INTO llm_request_logs
			(provider_id, model_name, agent_id, request_content, response_content,
			 duration_ms, status, error_message, tokens_in, tokens_out)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.ProviderID, entry.ModelName, entry.AgentID,
		entry.RequestContent, entry.ResponseContent,
		entry.DurationMs, entry.Status, entry.ErrorMessage,
		entry.TokensIn, entry.TokensOut,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append llm request log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read llm log id: %w", err)
	}
	return id, nil
}

// ListByAgent returns recent rows for one agent, newest first.
func (r *LogRepository) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.LLMRequestLog, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, provider_id, model_name, COALESCE(agent_id, ''), request_content, response_content,
		       duration_ms, status, COALESCE(error_message, ''), tokens_in, tokens_out, created_at
		FROM llm_request_logs
		WHERE agent_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list llm logs for %s: %w", agentID, err)
	}
	defer rows.Close()

	var entries []*domain.LLMRequestLog
	for rows.Next() {
		var e domain.LLMRequestLog
		err := rows.Scan(&e.ID, &e.ProviderID, &e.ModelName, &e.AgentID,
			&e.RequestContent, &e.ResponseContent, &e.DurationMs,
			&e.Status, &e.ErrorMessage, &e.TokensIn, &e.TokensOut, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm log row: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Get returns one row by id, or nil.
func (r *LogRepository) Get(ctx context.Context, id int64) (*domain.LLMRequestLog, error) {
	query := `
		SELECT id, provider_id, model_name, COALESCE(agent_id, ''), request_content, response_content,
		       duration_ms, status, COALESCE(error_message, ''), tokens_in, tokens_out, created_at
		FROM llm_request_logs WHERE id = ?
	`
	var e domain.LLMRequestLog
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.ProviderID, &e.ModelName, &e.AgentID,
		&e.RequestContent, &e.ResponseContent, &e.DurationMs,
		&e.Status, &e.ErrorMessage, &e.TokensIn, &e.TokensOut, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get llm log %d: %w", id, err)
	}
	return &e, nil
}
