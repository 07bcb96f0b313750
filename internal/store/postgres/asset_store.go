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

// AssetStore implements store.AssetStore against exactly one tenant store.
type AssetStore struct {
	pool   *pgxpool.Pool
	entity string
}

var _ store.AssetStore = (*AssetStore)(nil)

// NewAssetStore binds an asset store to a tenant pool. The pool is borrowed
// from the registry; the store does not own or close it.
func NewAssetStore(pool *pgxpool.Pool, entityCode string) *AssetStore {
	return &AssetStore{
		pool:   pool,
		entity: models.NormalizeCode(entityCode),
	}
}

const assetColumnList = `id, asset_id, entity, status, employee, location, department, comments, created_at, updated_at`

// GetByAssetID retrieves an asset by its human-facing identifier, matched
// case-insensitively.
func (s *AssetStore) GetByAssetID(ctx context.Context, assetID string) (*models.Asset, error) {
	query := `
		SELECT ` + assetColumnList + `
		FROM assets
		WHERE upper(asset_id) = upper(trim($1))
	`

	var a models.Asset
	err := s.pool.QueryRow(ctx, query, assetID).Scan(
		&a.ID,
		&a.AssetID,
		&a.Entity,
		&a.Status,
		&a.Employee,
		&a.Location,
		&a.Department,
		&a.Comments,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", mapPostgresError(err))
	}

	return &a, nil
}

// List returns every asset in the tenant store.
func (s *AssetStore) List(ctx context.Context) ([]models.Asset, error) {
	query := `
		SELECT ` + assetColumnList + `
		FROM assets
		ORDER BY asset_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var a models.Asset
		err := rows.Scan(
			&a.ID,
			&a.AssetID,
			&a.Entity,
			&a.Status,
			&a.Employee,
			&a.Location,
			&a.Department,
			&a.Comments,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// Insert creates a new asset row. The asset's Entity is forced to the store's
// owning entity so the denormalized copy can never point elsewhere.
func (s *AssetStore) Insert(ctx context.Context, asset *models.Asset) error {
	now := time.Now()
	asset.Entity = s.entity
	asset.CreatedAt = now
	asset.UpdatedAt = now

	if asset.Status == "" {
		asset.Status = models.StatusNotSubmitted
	}

	query := `
		INSERT INTO assets (
			asset_id, entity, status, employee, location, department, comments, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		asset.AssetID,
		asset.Entity,
		asset.Status,
		asset.Employee,
		asset.Location,
		asset.Department,
		asset.Comments,
		asset.CreatedAt,
		asset.UpdatedAt,
	).Scan(&asset.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateAssetID
		}
		return fmt.Errorf("failed to insert asset: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("asset_id", asset.AssetID).
		Str("entity", s.entity).
		Msg("Created asset")

	return nil
}

// Update rewrites an existing asset row in place, keyed by the serial id.
func (s *AssetStore) Update(ctx context.Context, asset *models.Asset) error {
	asset.UpdatedAt = time.Now()

	query := `
		UPDATE assets SET
			status = $2,
			employee = $3,
			location = $4,
			department = $5,
			comments = $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		asset.ID,
		asset.Status,
		asset.Employee,
		asset.Location,
		asset.Department,
		asset.Comments,
		asset.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update asset: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrAssetNotFound
	}

	return nil
}
