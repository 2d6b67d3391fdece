package prompts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// Repository persists prompt templates in the config database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a template repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db.Conn(),
		log: log.With().Str("repo", "template").Logger(),
	}
}

// Create stores a new template at version 1.
func (r *Repository) Create(ctx context.Context, name, content string, strict bool) (*domain.PromptTemplate, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO prompt_templates (template_id, name, content, version, strict)
		VALUES (?, ?, ?, 1, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, id, name, content, boolToInt(strict)); err != nil {
		return nil, fmt.Errorf("failed to create template %s: %w", name, err)
	}
	return r.Get(ctx, id)
}

// Get returns one template by id, or nil.
func (r *Repository) Get(ctx context.Context, templateID string) (*domain.PromptTemplate, error) {
	query := `
		SELECT template_id, name, content, version, strict, created_at, updated_at
		FROM prompt_templates WHERE template_id = ?
	`
	t, err := scanTemplate(r.db.QueryRowContext(ctx, query, templateID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", templateID, err)
	}
	return t, nil
}

// List returns all templates sorted by the given column.
func (r *Repository) List(ctx context.Context, sortBy, sortOrder string) ([]*domain.PromptTemplate, error) {
	column := "updated_at"
	switch sortBy {
	case "name":
		column = "name"
	case "version":
		column = "version"
	case "updated_at", "":
	default:
		return nil, fmt.Errorf("invalid sort column %q", sortBy)
	}
	direction := "DESC"
	if sortOrder == "asc" {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT template_id, name, content, version, strict, created_at, updated_at
		FROM prompt_templates ORDER BY %s %s
	`, column, direction)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.PromptTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Update modifies a template. The version increments only when the
// content actually changes.
func (r *Repository) Update(ctx context.Context, templateID, name, content string, strict bool) (*domain.PromptTemplate, error) {
	existing, err := r.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	version := existing.Version
	if content != existing.Content {
		version++
	}

	query := `
		UPDATE prompt_templates
		SET name = ?, content = ?, version = ?, strict = ?, updated_at = CURRENT_TIMESTAMP
		WHERE template_id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, name, content, version, boolToInt(strict), templateID); err != nil {
		return nil, fmt.Errorf("failed to update template %s: %w", templateID, err)
	}
	return r.Get(ctx, templateID)
}

// Delete removes a template.
func (r *Repository) Delete(ctx context.Context, templateID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM prompt_templates WHERE template_id = ?`, templateID); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", templateID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*domain.PromptTemplate, error) {
	var t domain.PromptTemplate
	var strict int
	err := row.Scan(&t.TemplateID, &t.Name, &t.Content, &t.Version, &strict, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Strict = strict != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
