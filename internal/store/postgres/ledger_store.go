package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

// LedgerStore implements store.TransferLedger against the directory store.
// The ledger is append-only audit evidence, written after the per-tenant
// mutations; it is not a commit log.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ store.TransferLedger = (*LedgerStore)(nil)

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append records one completed or failed cross-tenant move.
func (s *LedgerStore) Append(ctx context.Context, entry *models.TransferLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.Must(uuid.NewV7())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO transfer_ledger (
			id, source_entity, target_entity, source_asset_id, target_asset_id,
			reason, outcome, detail, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.SourceEntity,
		entry.TargetEntity,
		entry.SourceAssetID,
		entry.TargetAssetID,
		entry.Reason,
		entry.Outcome,
		entry.Detail,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("asset_id", entry.SourceAssetID).
		Str("from", entry.SourceEntity).
		Str("to", entry.TargetEntity).
		Str("outcome", string(entry.Outcome)).
		Msg("Appended transfer ledger entry")

	return nil
}

// ListByAsset returns every ledger entry mentioning an asset identifier,
// newest first.
func (s *LedgerStore) ListByAsset(ctx context.Context, assetID string) ([]models.TransferLedgerEntry, error) {
	query := `
		SELECT id, source_entity, target_entity, source_asset_id, target_asset_id,
		       reason, outcome, detail, created_at
		FROM transfer_ledger
		WHERE upper(source_asset_id) = upper(trim($1)) OR upper(target_asset_id) = upper(trim($1))
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var entries []models.TransferLedgerEntry
	for rows.Next() {
		var e models.TransferLedgerEntry
		err := rows.Scan(
			&e.ID,
			&e.SourceEntity,
			&e.TargetEntity,
			&e.SourceAssetID,
			&e.TargetAssetID,
			&e.Reason,
			&e.Outcome,
			&e.Detail,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}
