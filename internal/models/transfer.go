package models

import (
	"time"

	"github.com/google/uuid"
)

// TransferOutcome records how a cross-tenant transfer finished.
type TransferOutcome string

const (
	OutcomeCompleted    TransferOutcome = "completed"
	OutcomeFailed       TransferOutcome = "failed"
	OutcomeInconsistent TransferOutcome = "inconsistent"
)

// TransferLedgerEntry is an append-only audit record in the directory store.
// It is written after both per-tenant mutations, so it is best-effort
// evidence that a transfer ran, not a commit log.
type TransferLedgerEntry struct {
	ID            uuid.UUID // UUIDv7
	SourceEntity  string
	TargetEntity  string
	SourceAssetID string
	TargetAssetID string
	Reason        string
	Outcome       TransferOutcome
	Detail        string
	CreatedAt     time.Time
}

// SagaState tracks the progress of a cross-tenant transfer saga. The state
// row is persisted in the directory store before the first mutation so a
// crash mid-saga is detectable afterwards.
type SagaState string

const (
	SagaStarted       SagaState = "started"
	SagaTargetCreated SagaState = "target_created"
	SagaCompleted     SagaState = "completed"
	SagaFailed        SagaState = "failed"
	SagaInconsistent  SagaState = "inconsistent"
)

// TransferSaga is the persisted state of one transfer attempt.
type TransferSaga struct {
	ID           uuid.UUID // UUIDv7
	AssetID      string
	SourceEntity string
	TargetEntity string
	Reason       string
	State        SagaState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransferResult is returned to the caller after a successful transfer.
type TransferResult struct {
	SagaID       uuid.UUID
	AssetID      string
	SourceEntity string
	TargetEntity string
	TargetStatus AssetStatus
}
