package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// TaskRepository persists system task definitions in the config database.
// agent_ids and config are stored as JSON text.
type TaskRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewTaskRepository(db *database.DB, log zerolog.Logger) *TaskRepository {
	return &TaskRepository{db: db, log: log.With().Str("repo", "system_tasks").Logger()}
}

// CreateTaskInput carries the fields for a new task definition.
type CreateTaskInput struct {
	Name           string
	TaskType       domain.TaskType
	AgentIDs       []string
	Config         map[string]any
	Schedule       string
	TradingDayOnly bool
}

func (r *TaskRepository) Create(ctx context.Context, in CreateTaskInput) (*domain.SystemTask, error) {
	task := &domain.SystemTask{
		TaskID:         uuid.NewString(),
		Name:           in.Name,
		TaskType:       in.TaskType,
		AgentIDs:       in.AgentIDs,
		Config:         in.Config,
		Schedule:       in.Schedule,
		Status:         domain.TaskActive,
		TradingDayOnly: in.TradingDayOnly,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if task.AgentIDs == nil {
		task.AgentIDs = []string{}
	}
	if task.Config == nil {
		task.Config = map[string]any{}
	}

	agentIDs, err := json.Marshal(task.AgentIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal agent_ids: %w", err)
	}
	config, err := json.Marshal(task.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO system_tasks (task_id, name, task_type, agent_ids, config, schedule, status, trading_day_only, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, task.Name, string(task.TaskType), string(agentIDs), string(config),
		task.Schedule, string(task.Status), boolToInt(task.TradingDayOnly), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	r.log.Info().Str("task_id", task.TaskID).Str("task_type", string(task.TaskType)).Msg("task created")
	return task, nil
}

func (r *TaskRepository) Get(ctx context.Context, taskID string) (*domain.SystemTask, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT task_id, name, task_type, agent_ids, config, schedule, status, trading_day_only, created_at, updated_at
		FROM system_tasks WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return task, err
}

// List returns every task definition, newest first.
func (r *TaskRepository) List(ctx context.Context) ([]*domain.SystemTask, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT task_id, name, task_type, agent_ids, config, schedule, status, trading_day_only, created_at, updated_at
		FROM system_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.SystemTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListActive returns the tasks the scheduler should register.
func (r *TaskRepository) ListActive(ctx context.Context) ([]*domain.SystemTask, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT task_id, name, task_type, agent_ids, config, schedule, status, trading_day_only, created_at, updated_at
		FROM system_tasks WHERE status = ? ORDER BY created_at`, string(domain.TaskActive))
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.SystemTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Update(ctx context.Context, task *domain.SystemTask) error {
	agentIDs, err := json.Marshal(task.AgentIDs)
	if err != nil {
		return fmt.Errorf("marshal agent_ids: %w", err)
	}
	config, err := json.Marshal(task.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	res, err := r.db.Conn().ExecContext(ctx, `
		UPDATE system_tasks
		SET name = ?, task_type = ?, agent_ids = ?, config = ?, schedule = ?, trading_day_only = ?, updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ?`,
		task.Name, string(task.TaskType), string(agentIDs), string(config),
		task.Schedule, boolToInt(task.TradingDayOnly), task.TaskID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", task.TaskID)
	}
	return nil
}

func (r *TaskRepository) SetStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	res, err := r.db.Conn().ExecContext(ctx, `
		UPDATE system_tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE task_id = ?`,
		string(status), taskID)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID string) error {
	_, err := r.db.Conn().ExecContext(ctx, `DELETE FROM system_tasks WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.SystemTask, error) {
	var (
		task           domain.SystemTask
		agentIDs       string
		config         string
		tradingDayOnly int
	)
	err := row.Scan(&task.TaskID, &task.Name, &task.TaskType, &agentIDs, &config,
		&task.Schedule, &task.Status, &tradingDayOnly, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(agentIDs), &task.AgentIDs); err != nil {
		return nil, fmt.Errorf("decode agent_ids for %s: %w", task.TaskID, err)
	}
	if err := json.Unmarshal([]byte(config), &task.Config); err != nil {
		return nil, fmt.Errorf("decode config for %s: %w", task.TaskID, err)
	}
	task.TradingDayOnly = tradingDayOnly != 0
	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
