package organizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngo-platform/backend/internal/models"
)

// ErrNotFound is returned when no organization matches a lookup.
var ErrNotFound = errors.New("organization not found")

// Store is the identity store: organizations keyed by id and by credential.
type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*models.Organization, error)
	UpdateTemplates(ctx context.Context, id string, templates models.Templates) error
}

// NewAPIKey returns a fresh opaque organization credential.
func NewAPIKey() string {
	return "ngo_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PostgresRepository handles organization persistence in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates an organizations repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts org, assigning its id when empty.
func (r *PostgresRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	templates, err := json.Marshal(org.Templates)
	if err != nil {
		return fmt.Errorf("marshal templates: %w", err)
	}
	const q = `INSERT INTO organizations (id, name, mission, website, contact_email, api_key, templates)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, org.ID, org.Name, org.Mission, org.Website, org.ContactEmail, org.APIKey, templates).
		Scan(&org.CreatedAt, &org.UpdatedAt)
}

const selectOrganization = `SELECT id, name, mission, website, contact_email, api_key, templates, created_at, updated_at
	FROM organizations`

// GetByID returns an organization by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, selectOrganization+` WHERE id = $1`, id)
}

// GetByAPIKey returns the organization holding apiKey.
func (r *PostgresRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.Organization, error) {
	return r.getOne(ctx, selectOrganization+` WHERE api_key = $1`, apiKey)
}

func (r *PostgresRepository) getOne(ctx context.Context, q string, arg string) (*models.Organization, error) {
	var org models.Organization
	var templates []byte
	err := r.pool.QueryRow(ctx, q, arg).Scan(&org.ID, &org.Name, &org.Mission, &org.Website, &org.ContactEmail,
		&org.APIKey, &templates, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(templates) > 0 {
		if err := json.Unmarshal(templates, &org.Templates); err != nil {
			return nil, fmt.Errorf("decode templates: %w", err)
		}
	}
	return &org, nil
}

// UpdateTemplates replaces the organization's template configuration.
func (r *PostgresRepository) UpdateTemplates(ctx context.Context, id string, templates models.Templates) error {
	raw, err := json.Marshal(templates)
	if err != nil {
		return fmt.Errorf("marshal templates: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE organizations SET templates = $2, updated_at = NOW() WHERE id = $1`, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
