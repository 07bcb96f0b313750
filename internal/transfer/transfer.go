// Package transfer moves a single asset record from one tenant store to
// another as a saga. The two stores are independent databases, so there is no
// distributed transaction; each completed step is unrevocable and failures
// between steps are surfaced explicitly rather than rolled back.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

// Coordinator executes cross-tenant asset moves.
type Coordinator struct {
	stores store.TenantStores
	ledger store.TransferLedger
	sagas  store.SagaLog
	locks  *keyedMutex
	logger zerolog.Logger
}

// New creates a transfer coordinator. All stores are borrowed per request
// through the registry; the coordinator holds no tenant handles of its own.
func New(stores store.TenantStores, ledger store.TransferLedger, sagas store.SagaLog, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		stores: stores,
		ledger: ledger,
		sagas:  sagas,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// Transfer moves assetID from fromEntity's store to toEntity's store.
//
// Preconditions are validated before any mutation; each failure is a
// distinct ValidationError and is never retried. The saga then runs three
// steps: create in target, retire in source, append to the ledger. A step-2
// failure leaves the asset in both stores and is reported as an
// InconsistentTransferError for manual reconciliation; a step-3 failure is
// absorbed because the ledger is audit-only.
//
// The whole saga runs under per-(entity, assetID) locks covering both the
// source and target keys, so a concurrent retry for the same asset waits
// instead of racing past the precondition checks.
func (c *Coordinator) Transfer(ctx context.Context, assetID, fromEntity, toEntity, reason string) (*models.TransferResult, error) {
	from := models.NormalizeCode(fromEntity)
	to := models.NormalizeCode(toEntity)
	assetID = strings.TrimSpace(assetID)

	if assetID == "" {
		return nil, store.Validationf("an asset identifier is required")
	}
	if from == "" || from == models.AllEntities {
		return nil, store.Validationf("transfers require a concrete source entity, not %q", fromEntity)
	}
	if to == "" || to == models.AllEntities {
		return nil, store.Validationf("transfers require a concrete target entity, not %q", toEntity)
	}
	if from == to {
		return nil, store.Validationf("source and target entity are both %s", from)
	}

	unlock := c.lockSaga(from, to, assetID)
	defer unlock()

	srcStore, err := c.stores.Assets(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolve source store %s: %w", from, err)
	}

	src, err := srcStore.GetByAssetID(ctx, assetID)
	if err != nil {
		if errors.Is(err, store.ErrAssetNotFound) {
			return nil, store.Validationf("asset %q not found in entity %s", assetID, from)
		}
		return nil, fmt.Errorf("look up asset %q in %s: %w", assetID, from, err)
	}

	if src.Status.Terminal() {
		return nil, store.Validationf("asset %q in %s has terminal status %s and cannot be transferred", assetID, from, src.Status)
	}

	tgtStore, err := c.stores.Assets(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("resolve target store %s: %w", to, err)
	}

	if _, err := tgtStore.GetByAssetID(ctx, assetID); err == nil {
		return nil, store.Validationf("asset %q already exists in entity %s", assetID, to)
	} else if !errors.Is(err, store.ErrAssetNotFound) {
		return nil, fmt.Errorf("check asset %q in %s: %w", assetID, to, err)
	}

	// Preconditions hold; persist the saga before touching either store so a
	// crash from here on leaves a detectable row.
	saga := &models.TransferSaga{
		AssetID:      src.AssetID,
		SourceEntity: from,
		TargetEntity: to,
		Reason:       reason,
	}
	if err := c.sagas.Begin(ctx, saga); err != nil {
		return nil, fmt.Errorf("begin transfer saga: %w", err)
	}

	target := buildTargetAsset(src, from, to, reason)

	// Step 1: create in target. On failure nothing has been mutated.
	if err := tgtStore.Insert(ctx, target); err != nil {
		c.setSagaState(ctx, saga, models.SagaFailed)
		return nil, fmt.Errorf("create asset %q in %s: %w", assetID, to, err)
	}
	c.setSagaState(ctx, saga, models.SagaTargetCreated)

	// Step 2: retire the source row in place. A failure here means the asset
	// now exists in both stores and requires manual reconciliation.
	src.Status = models.StatusRetired
	src.Employee = ""
	src.Department = ""
	src.Comments = appendProvenance(src.Comments, fmt.Sprintf("Transferred to %s (%s)", to, reason))

	if err := srcStore.Update(ctx, src); err != nil {
		c.setSagaState(ctx, saga, models.SagaInconsistent)

		incErr := &store.InconsistentTransferError{
			AssetID:      src.AssetID,
			SourceEntity: from,
			TargetEntity: to,
			Err:          err,
		}

		c.logger.Error().
			Str("asset_id", src.AssetID).
			Str("from", from).
			Str("to", to).
			Str("saga_id", saga.ID.String()).
			Err(err).
			Msg("DATA INTEGRITY INCIDENT: transfer target created but source retire failed, manual reconciliation required")

		c.appendLedger(ctx, saga, src.AssetID, models.OutcomeInconsistent, incErr.Error())

		return nil, incErr
	}

	// Step 3: ledger append. Audit-only; both mutations already happened, so
	// a failure here does not undo the transfer.
	c.appendLedger(ctx, saga, src.AssetID, models.OutcomeCompleted, "")
	c.setSagaState(ctx, saga, models.SagaCompleted)

	c.logger.Info().
		Str("asset_id", src.AssetID).
		Str("from", from).
		Str("to", to).
		Str("target_status", string(target.Status)).
		Msg("Transferred asset")

	return &models.TransferResult{
		SagaID:       saga.ID,
		AssetID:      src.AssetID,
		SourceEntity: from,
		TargetEntity: to,
		TargetStatus: target.Status,
	}, nil
}

// lockSaga acquires the source and target (entity, assetID) locks in sorted
// key order so two transfers touching the same pair cannot deadlock.
func (c *Coordinator) lockSaga(from, to, assetID string) func() {
	keys := []string{
		from + "::" + strings.ToUpper(assetID),
		to + "::" + strings.ToUpper(assetID),
	}
	sort.Strings(keys)

	for _, key := range keys {
		c.locks.lock(key)
	}

	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			c.locks.unlock(keys[i])
		}
	}
}

// setSagaState advances the saga row, logging instead of failing: the state
// row is for crash detection and must not abort a transfer mid-flight.
func (c *Coordinator) setSagaState(ctx context.Context, saga *models.TransferSaga, state models.SagaState) {
	if err := c.sagas.SetState(ctx, saga.ID, state); err != nil {
		c.logger.Warn().
			Str("saga_id", saga.ID.String()).
			Str("state", string(state)).
			Err(err).
			Msg("Failed to update transfer saga state")
		return
	}
	saga.State = state
}

func (c *Coordinator) appendLedger(ctx context.Context, saga *models.TransferSaga, assetID string, outcome models.TransferOutcome, detail string) {
	entry := &models.TransferLedgerEntry{
		SourceEntity:  saga.SourceEntity,
		TargetEntity:  saga.TargetEntity,
		SourceAssetID: assetID,
		TargetAssetID: assetID,
		Reason:        saga.Reason,
		Outcome:       outcome,
		Detail:        detail,
	}

	if err := c.ledger.Append(ctx, entry); err != nil {
		c.logger.Warn().
			Str("asset_id", assetID).
			Str("saga_id", saga.ID.String()).
			Err(err).
			Msg("Ledger append failed; transfer outcome is unchanged")
	}
}

// buildTargetAsset copies the source asset for insertion into the target
// store. Owner and department are reset, the status follows the transfer
// reason, and a provenance note is appended to the comments.
func buildTargetAsset(src *models.Asset, from, to, reason string) *models.Asset {
	status := models.StatusAvailable
	if strings.Contains(strings.ToLower(reason), "repair") {
		status = models.StatusUnderRepair
	}

	return &models.Asset{
		AssetID:  src.AssetID,
		Entity:   to,
		Status:   status,
		Location: src.Location,
		Comments: appendProvenance(src.Comments, fmt.Sprintf("Transferred from %s (%s)", from, reason)),
	}
}

func appendProvenance(comments, note string) string {
	if comments == "" {
		return note
	}
	return comments + "\n" + note
}
