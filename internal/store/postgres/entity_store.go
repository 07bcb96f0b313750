package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

// EntityStore implements store.EntityStore against the directory store.
type EntityStore struct {
	pool *pgxpool.Pool
}

var _ store.EntityStore = (*EntityStore)(nil)

// NewEntityStore creates an entity directory store over the directory pool.
func NewEntityStore(pool *pgxpool.Pool) *EntityStore {
	return &EntityStore{pool: pool}
}

// Create inserts a new entity directory row. It does not provision the
// tenant store; the entities service sequences that.
func (s *EntityStore) Create(ctx context.Context, entity *models.Entity) error {
	now := time.Now()
	entity.Code = models.NormalizeCode(entity.Code)
	entity.CreatedAt = now
	entity.UpdatedAt = now

	query := `
		INSERT INTO entities (
			code, name, contact_email, contact_phone, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		entity.Code,
		entity.Name,
		entity.ContactEmail,
		entity.ContactPhone,
		entity.CreatedAt,
		entity.UpdatedAt,
	).Scan(&entity.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrEntityAlreadyExists
		}
		return fmt.Errorf("failed to create entity: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("code", entity.Code).
		Str("name", entity.Name).
		Msg("Created entity")

	return nil
}

// GetByCode retrieves an entity by its normalized code.
func (s *EntityStore) GetByCode(ctx context.Context, code string) (*models.Entity, error) {
	query := `
		SELECT id, code, name, contact_email, contact_phone, created_at, updated_at
		FROM entities
		WHERE code = $1
	`

	var e models.Entity
	err := s.pool.QueryRow(ctx, query, models.NormalizeCode(code)).Scan(
		&e.ID,
		&e.Code,
		&e.Name,
		&e.ContactEmail,
		&e.ContactPhone,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", mapPostgresError(err))
	}

	return &e, nil
}

// List returns all entities ordered by code.
func (s *EntityStore) List(ctx context.Context) ([]models.Entity, error) {
	query := `
		SELECT id, code, name, contact_email, contact_phone, created_at, updated_at
		FROM entities
		ORDER BY code
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		err := rows.Scan(
			&e.ID,
			&e.Code,
			&e.Name,
			&e.ContactEmail,
			&e.ContactPhone,
			&e.CreatedAt,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return entities, nil
}

// Delete removes an entity directory row. The physical tenant store is left
// in place; dropping it from a shared code path would be a destructive
// migration, which the provisioner never performs.
func (s *EntityStore) Delete(ctx context.Context, code string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE code = $1`, models.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrEntityNotFound
	}

	log.Info().
		Str("code", models.NormalizeCode(code)).
		Msg("Deleted entity directory row (tenant store left in place)")

	return nil
}
