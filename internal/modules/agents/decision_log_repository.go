package agents

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// DecisionLogRepository appends and lists decision-cycle summaries.
type DecisionLogRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewDecisionLogRepository creates a decision-log repository.
func NewDecisionLogRepository(db *database.DB, log zerolog.Logger) *DecisionLogRepository {
	return &DecisionLogRepository{
		db:  db,
		log: log.With().Str("repo", "decision_log").Logger(),
	}
}

// Append writes one cycle summary and returns its id.
func (r *DecisionLogRepository) Append(ctx context.Context, entry *domain.DecisionLog) (int64, error) {
	query := `
		INSERT INTO decision_logs (agent_id, status, parsed_decision, error_message)
		VALUES (?, ?, ?, ?)
	`
	res, err := r.db.Conn().ExecContext(ctx, query, entry.AgentID, string(entry.Status),
		nullIfEmpty(entry.ParsedDecision), nullIfEmpty(entry.ErrorMessage))
	if err != nil {
		return 0, fmt.Errorf("failed to append decision log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read decision log id: %w", err)
	}
	return id, nil
}

// List returns decision logs newest first, optionally filtered by agent
// and status, paginated.
func (r *DecisionLogRepository) List(ctx context.Context, agentID string, status domain.DecisionLogStatus, page, pageSize int) ([]*domain.DecisionLog, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	where := "1 = 1"
	args := []any{}
	if agentID != "" {
		where += " AND agent_id = ?"
		args = append(args, agentID)
	}
	if status != "" {
		where += " AND status = ?"
		args = append(args, string(status))
	}

	var total int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count decision logs: %w", err)
	}

	query := `
		SELECT id, agent_id, status, COALESCE(parsed_decision, ''), COALESCE(error_message, ''), created_at
		FROM decision_logs WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list decision logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.DecisionLog
	for rows.Next() {
		var e domain.DecisionLog
		var status string
		if err := rows.Scan(&e.ID, &e.AgentID, &status, &e.ParsedDecision, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan decision log row: %w", err)
		}
		e.Status = domain.DecisionLogStatus(status)
		logs = append(logs, &e)
	}
	return logs, total, rows.Err()
}
