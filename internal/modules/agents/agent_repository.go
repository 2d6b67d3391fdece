// Package agents owns the agent lifecycle and the decision cycle: the
// repositories for agents, positions, orders, transactions and decision
// logs, the LLM response parser, and the orchestrating service.
package agents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// AgentRepository persists agents in the core database.
type AgentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAgentRepository creates an agent repository.
func NewAgentRepository(db *database.DB, log zerolog.Logger) *AgentRepository {
	return &AgentRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "agent").Logger(),
	}
}

// CreateAgentInput is the payload for Create.
type CreateAgentInput struct {
	Name         string
	InitialCash  decimal.Decimal
	TemplateID   string
	ProviderID   string
	ModelName    string
	ScheduleType string
}

// Create stores a new agent with current_cash = initial_cash.
func (r *AgentRepository) Create(ctx context.Context, in CreateAgentInput) (*domain.Agent, error) {
	id := uuid.New().String()
	if in.ScheduleType == "" {
		in.ScheduleType = "daily"
	}
	query := `
		INSERT INTO agents (id, name, initial_cash, current_cash, template_id, provider_id, model_name, status, schedule_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?)
	`
	_, err := r.db.ExecContext(ctx, query, id, in.Name,
		in.InitialCash.String(), in.InitialCash.String(),
		in.TemplateID, in.ProviderID, in.ModelName, in.ScheduleType)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %s: %w", in.Name, err)
	}
	return r.Get(ctx, id)
}

// Get returns one agent by id (any status), or nil.
func (r *AgentRepository) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `
		SELECT id, name, initial_cash, current_cash, template_id, provider_id, model_name, status, schedule_type, created_at, updated_at
		FROM agents WHERE id = ?
	`
	a, err := scanAgent(r.db.QueryRowContext(ctx, query, agentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", agentID, err)
	}
	return a, nil
}

// ListOptions filters and orders List.
type ListOptions struct {
	Status    domain.AgentStatus // empty means any non-deleted
	SortBy    string             // name | created_at
	SortOrder string             // asc | desc
	Page      int
	PageSize  int
}

// List returns agents excluding deleted, paginated.
func (r *AgentRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Agent, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 200 {
		opts.PageSize = 50
	}

	where := `status != 'deleted'`
	args := []any{}
	if opts.Status != "" {
		where = `status = ?`
		args = append(args, string(opts.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count agents: %w", err)
	}

	column := "created_at"
	if opts.SortBy == "name" {
		column = "name"
	}
	direction := "DESC"
	if opts.SortOrder == "asc" {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, name, initial_cash, current_cash, template_id, provider_id, model_name, status, schedule_type, created_at, updated_at
		FROM agents WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?
	`, where, column, direction)
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var list []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan agent row: %w", err)
		}
		list = append(list, a)
	}
	return list, total, rows.Err()
}

// ListActive returns every active agent.
func (r *AgentRepository) ListActive(ctx context.Context) ([]*domain.Agent, error) {
	list, _, err := r.List(ctx, ListOptions{Status: domain.AgentActive, PageSize: 200})
	return list, err
}

// Update modifies mutable fields.
func (r *AgentRepository) Update(ctx context.Context, agentID string, name, templateID, providerID, modelName, scheduleType string) (*domain.Agent, error) {
	query := `
		UPDATE agents
		SET name = ?, template_id = ?, provider_id = ?, model_name = ?, schedule_type = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status != 'deleted'
	`
	if _, err := r.db.ExecContext(ctx, query, name, templateID, providerID, modelName, scheduleType, agentID); err != nil {
		return nil, fmt.Errorf("failed to update agent %s: %w", agentID, err)
	}
	return r.Get(ctx, agentID)
}

// UpdateStatus transitions the agent lifecycle state.
func (r *AgentRepository) UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus) error {
	query := `UPDATE agents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, string(status), agentID); err != nil {
		return fmt.Errorf("failed to update agent %s status: %w", agentID, err)
	}
	return nil
}

// SoftDelete marks the agent deleted. History rows are never erased.
func (r *AgentRepository) SoftDelete(ctx context.Context, agentID string) error {
	return r.UpdateStatus(ctx, agentID, domain.AgentDeleted)
}

// UpdateCash writes the authoritative cash balance.
func (r *AgentRepository) UpdateCash(ctx context.Context, agentID string, cash decimal.Decimal) error {
	query := `UPDATE agents SET current_cash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, cash.String(), agentID); err != nil {
		return fmt.Errorf("failed to update agent %s cash: %w", agentID, err)
	}
	return nil
}

// AddCash adjusts the balance by a signed delta.
func (r *AgentRepository) AddCash(ctx context.Context, agentID string, delta decimal.Decimal) error {
	a, err := r.Get(ctx, agentID)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("agent %s not found", agentID)
	}
	return r.UpdateCash(ctx, agentID, a.CurrentCash.Add(delta))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var a domain.Agent
	var initial, current, status string
	err := row.Scan(&a.ID, &a.Name, &initial, &current, &a.TemplateID, &a.ProviderID,
		&a.ModelName, &status, &a.ScheduleType, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.InitialCash, err = decimal.NewFromString(initial); err != nil {
		return nil, fmt.Errorf("bad initial_cash %q: %w", initial, err)
	}
	if a.CurrentCash, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("bad current_cash %q: %w", current, err)
	}
	a.Status = domain.AgentStatus(status)
	return &a, nil
}
