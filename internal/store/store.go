package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/assetplane/internal/models"
)

// Sentinel errors for common error conditions
var (
	// ErrStoreUnavailable means the tenant store is missing or connectivity
	// was lost. The registry responds with a one-shot provision-and-retry.
	ErrStoreUnavailable = errors.New("tenant store unavailable")

	// ErrAccessDenied means the service credentials lack privilege on the
	// tenant store. Provisioning re-grants, so it takes the same retry path.
	ErrAccessDenied = errors.New("access denied to tenant store")

	// ErrStoreCreationFailed means CREATE DATABASE or GRANT failed. The
	// entity stays unprovisioned and the caller may retry later.
	ErrStoreCreationFailed = errors.New("tenant store creation failed")

	ErrAssetNotFound       = errors.New("asset not found")
	ErrDuplicateAssetID    = errors.New("asset id already exists in store")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrEntityAlreadyExists = errors.New("entity already exists")

	// ErrAllTenantsFailed is returned by the aggregation engine only when
	// every candidate tenant query failed; partial failure is absorbed.
	ErrAllTenantsFailed = errors.New("all tenant queries failed")
)

// ValidationError reports a transfer precondition failure. It is always
// surfaced to the caller with a specific reason and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InconsistentTransferError reports a transfer whose target row was created
// but whose source retire failed. The asset now exists in both stores and an
// operator must reconcile manually; there is no automated repair.
type InconsistentTransferError struct {
	AssetID      string
	SourceEntity string
	TargetEntity string
	Err          error
}

func (e *InconsistentTransferError) Error() string {
	return fmt.Sprintf("transfer of %s left inconsistent state: asset exists in both %s and %s, source retire failed: %v",
		e.AssetID, e.SourceEntity, e.TargetEntity, e.Err)
}

func (e *InconsistentTransferError) Unwrap() error {
	return e.Err
}

// StoreInfo describes the outcome of a provisioning run.
type StoreInfo struct {
	// Name is the physical store name, tenant_<lowercase(code)>.
	Name string
	// Created is true when the physical store was created by this run.
	Created bool
	// StatementsApplied counts the DDL statements this run issued. A run
	// against an up-to-date store applies zero.
	StatementsApplied int
}

// Provisioner guarantees a tenant store exists, is accessible to the service
// role, and carries the current additive schema.
type Provisioner interface {
	EnsureStore(ctx context.Context, entityCode string) (StoreInfo, error)
}

// AssetStore is the per-tenant inventory surface. Implementations are bound
// to exactly one tenant store.
type AssetStore interface {
	// GetByAssetID locates an asset by its human-facing identifier,
	// matched case-insensitively.
	GetByAssetID(ctx context.Context, assetID string) (*models.Asset, error)
	List(ctx context.Context) ([]models.Asset, error)
	Insert(ctx context.Context, asset *models.Asset) error
	Update(ctx context.Context, asset *models.Asset) error
}

// TenantStores resolves entity codes to per-tenant stores. Borrowers must
// not cache the returned stores beyond one request.
type TenantStores interface {
	Assets(ctx context.Context, entityCode string) (AssetStore, error)
	// ListTenantStores scans the database catalog for physically
	// provisioned tenant stores and returns their entity codes.
	ListTenantStores(ctx context.Context) ([]string, error)
}

// EntityStore is the entity directory in the central store.
type EntityStore interface {
	Create(ctx context.Context, entity *models.Entity) error
	GetByCode(ctx context.Context, code string) (*models.Entity, error)
	List(ctx context.Context) ([]models.Entity, error)
	Delete(ctx context.Context, code string) error
}

// TransferLedger is the append-only audit log of cross-tenant moves.
type TransferLedger interface {
	Append(ctx context.Context, entry *models.TransferLedgerEntry) error
	ListByAsset(ctx context.Context, assetID string) ([]models.TransferLedgerEntry, error)
}

// SagaLog persists transfer saga state so a crash mid-saga can be detected
// and flagged for reconciliation.
type SagaLog interface {
	Begin(ctx context.Context, saga *models.TransferSaga) error
	SetState(ctx context.Context, id uuid.UUID, state models.SagaState) error
	// ListStalled returns sagas that have sat in a non-final state longer
	// than olderThan.
	ListStalled(ctx context.Context, olderThan time.Duration) ([]models.TransferSaga, error)
}
