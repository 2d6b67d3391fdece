// Package llm provides the protocol-neutral model client and its
// provider / request-log persistence.
package llm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mosaicfin/atrader/internal/database"
	"github.com/mosaicfin/atrader/internal/domain"
)

// ProviderRepository persists LLM provider configurations.
type ProviderRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewProviderRepository creates a provider repository.
func NewProviderRepository(db *database.DB, log zerolog.Logger) *ProviderRepository {
	return &ProviderRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "provider").Logger(),
	}
}

// Create stores a new provider.
func (r *ProviderRepository) Create(ctx context.Context, name string, protocol domain.LLMProtocol, apiURL, apiKey string) (*domain.LLMProvider, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO llm_providers (provider_id, name, protocol, api_url, api_key, is_active)
		VALUES (?, ?, ?, ?, ?, 1)
	`
	if _, err := r.db.ExecContext(ctx, query, id, name, string(protocol), apiURL, apiKey); err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}
	return r.Get(ctx, id)
}

// Get returns one provider by id, or nil.
func (r *ProviderRepository) Get(ctx context.Context, providerID string) (*domain.LLMProvider, error) {
	query := `
		SELECT provider_id, name, protocol, api_url, api_key, is_active, created_at
		FROM llm_providers WHERE provider_id = ?
	`
	p, err := scanProvider(r.db.QueryRowContext(ctx, query, providerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %s: %w", providerID, err)
	}
	return p, nil
}

// List returns every provider, active or not.
func (r *ProviderRepository) List(ctx context.Context) ([]*domain.LLMProvider, error) {
	query := `
		SELECT provider_id, name, protocol, api_url, api_key, is_active, created_at
		FROM llm_providers ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*domain.LLMProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// ListActive returns every active provider.
func (r *ProviderRepository) ListActive(ctx context.Context) ([]*domain.LLMProvider, error) {
	query := `
		SELECT provider_id, name, protocol, api_url, api_key, is_active, created_at
		FROM llm_providers WHERE is_active = 1 ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*domain.LLMProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// SetActive toggles a provider.
func (r *ProviderRepository) SetActive(ctx context.Context, providerID string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE llm_providers SET is_active = ? WHERE provider_id = ?`, v, providerID); err != nil {
		return fmt.Errorf("failed to toggle provider %s: %w", providerID, err)
	}
	return nil
}

// Update modifies a provider. An empty apiKey keeps the stored key.
func (r *ProviderRepository) Update(ctx context.Context, providerID, name string, protocol domain.LLMProtocol, apiURL, apiKey string) (*domain.LLMProvider, error) {
	existing, err := r.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if apiKey == "" {
		apiKey = existing.APIKey
	}
	query := `
		UPDATE llm_providers SET name = ?, protocol = ?, api_url = ?, api_key = ?
		WHERE provider_id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, name, string(protocol), apiURL, apiKey, providerID); err != nil {
		return nil, fmt.Errorf("failed to update provider %s: %w", providerID, err)
	}
	return r.Get(ctx, providerID)
}

// Delete removes a provider.
func (r *ProviderRepository) Delete(ctx context.Context, providerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM llm_providers WHERE provider_id = ?`, providerID); err != nil {
		return fmt.Errorf("failed to delete provider %s: %w", providerID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*domain.LLMProvider, error) {
	var p domain.LLMProvider
	var protocol string
	var active int
	err := row.Scan(&p.ProviderID, &p.Name, &protocol, &p.APIURL, &p.APIKey, &active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Protocol = domain.LLMProtocol(protocol)
	p.IsActive = active != 0
	return &p, nil
}
