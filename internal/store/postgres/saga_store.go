package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

// SagaStore implements store.SagaLog against the directory store. A saga row
// is written before the first tenant mutation and advanced after each step,
// so a crash mid-transfer leaves a detectable non-final row.
type SagaStore struct {
	pool *pgxpool.Pool
}

var _ store.SagaLog = (*SagaStore)(nil)

func NewSagaStore(pool *pgxpool.Pool) *SagaStore {
	return &SagaStore{pool: pool}
}

// Begin persists a new saga in the started state.
func (s *SagaStore) Begin(ctx context.Context, saga *models.TransferSaga) error {
	if saga.ID == uuid.Nil {
		saga.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now()
	saga.State = models.SagaStarted
	saga.CreatedAt = now
	saga.UpdatedAt = now

	query := `
		INSERT INTO transfer_sagas (
			id, asset_id, source_entity, target_entity, reason, state, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		saga.ID,
		saga.AssetID,
		saga.SourceEntity,
		saga.TargetEntity,
		saga.Reason,
		saga.State,
		saga.CreatedAt,
		saga.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to begin transfer saga: %w", mapPostgresError(err))
	}

	return nil
}

// SetState advances a saga to the given state.
func (s *SagaStore) SetState(ctx context.Context, id uuid.UUID, state models.SagaState) error {
	result, err := s.pool.Exec(ctx,
		`UPDATE transfer_sagas SET state = $2, updated_at = $3 WHERE id = $1`,
		id, state, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update transfer saga: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("transfer saga %s not found", id)
	}

	return nil
}

// ListStalled returns sagas stuck in a non-final state for longer than
// olderThan. These are candidates for operator reconciliation after a crash.
func (s *SagaStore) ListStalled(ctx context.Context, olderThan time.Duration) ([]models.TransferSaga, error) {
	query := `
		SELECT id, asset_id, source_entity, target_entity, reason, state, created_at, updated_at
		FROM transfer_sagas
		WHERE state IN ('started', 'target_created')
		AND updated_at < $1
		ORDER BY updated_at
	`

	rows, err := s.pool.Query(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled sagas: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sagas []models.TransferSaga
	for rows.Next() {
		var saga models.TransferSaga
		err := rows.Scan(
			&saga.ID,
			&saga.AssetID,
			&saga.SourceEntity,
			&saga.TargetEntity,
			&saga.Reason,
			&saga.State,
			&saga.CreatedAt,
			&saga.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saga: %w", err)
		}
		sagas = append(sagas, saga)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sagas: %w", err)
	}

	return sagas, nil
}
