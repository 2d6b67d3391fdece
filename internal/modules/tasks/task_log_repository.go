package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// TaskLogRepository persists task run logs. Per-agent results are stored
// as a JSON array.
type TaskLogRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewTaskLogRepository(db *database.DB, log zerolog.Logger) *TaskLogRepository {
	return &TaskLogRepository{db: db, log: log.With().Str("repo", "system_task_logs").Logger()}
}

// Start inserts a running log row and returns its id.
func (r *TaskLogRepository) Start(ctx context.Context, entry *domain.TaskLog) (int64, error) {
	res, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO system_task_logs (task_id, started_at, status)
		VALUES (?, ?, ?)`,
		entry.TaskID, entry.StartedAt, string(domain.TaskLogRunning))
	if err != nil {
		return 0, fmt.Errorf("start task log: %w", err)
	}
	return res.LastInsertId()
}

// Finish moves a log row to its terminal state.
func (r *TaskLogRepository) Finish(ctx context.Context, entry *domain.TaskLog) error {
	var agentResults any
	if len(entry.AgentResults) > 0 {
		data, err := json.Marshal(entry.AgentResults)
		if err != nil {
			return fmt.Errorf("marshal agent results: %w", err)
		}
		agentResults = string(data)
	}

	_, err := r.db.Conn().ExecContext(ctx, `
		UPDATE system_task_logs
		SET completed_at = ?, status = ?, skip_reason = ?, error_message = ?, agent_results = ?
		WHERE id = ?`,
		entry.CompletedAt, string(entry.Status),
		nullIfEmpty(entry.SkipReason), nullIfEmpty(entry.ErrorMessage), agentResults, entry.ID)
	if err != nil {
		return fmt.Errorf("finish task log: %w", err)
	}
	return nil
}

// ListByTask returns recent runs of one task, newest first.
func (r *TaskLogRepository) ListByTask(ctx context.Context, taskID string, limit int) ([]*domain.TaskLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, task_id, started_at, completed_at, status, skip_reason, error_message, agent_results
		FROM system_task_logs WHERE task_id = ?
		ORDER BY started_at DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.TaskLog
	for rows.Next() {
		entry, err := scanTaskLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (r *TaskLogRepository) Get(ctx context.Context, id int64) (*domain.TaskLog, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, task_id, started_at, completed_at, status, skip_reason, error_message, agent_results
		FROM system_task_logs WHERE id = ?`, id)
	entry, err := scanTaskLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

func scanTaskLog(row rowScanner) (*domain.TaskLog, error) {
	var (
		entry        domain.TaskLog
		skipReason   sql.NullString
		errorMessage sql.NullString
		agentResults sql.NullString
	)
	err := row.Scan(&entry.ID, &entry.TaskID, &entry.StartedAt, &entry.CompletedAt,
		&entry.Status, &skipReason, &errorMessage, &agentResults)
	if err != nil {
		return nil, err
	}
	entry.SkipReason = skipReason.String
	entry.ErrorMessage = errorMessage.String
	if agentResults.Valid && agentResults.String != "" {
		if err := json.Unmarshal([]byte(agentResults.String), &entry.AgentResults); err != nil {
			return nil, fmt.Errorf("decode agent results for log %d: %w", entry.ID, err)
		}
	}
	return &entry, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
