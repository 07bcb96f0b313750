package models

import (
	"strings"
	"time"
)

// AssetStatus enumerates the lifecycle states of an asset.
type AssetStatus string

const (
	StatusInUse        AssetStatus = "InUse"
	StatusAvailable    AssetStatus = "Available"
	StatusUnderRepair  AssetStatus = "UnderRepair"
	StatusRetired      AssetStatus = "Retired"
	StatusTheftMissing AssetStatus = "TheftMissing"
	StatusNotSubmitted AssetStatus = "NotSubmitted"
)

// AllStatuses lists every valid asset status. The tenant store enum is kept a
// superset of this list by the provisioner.
var AllStatuses = []AssetStatus{
	StatusInUse,
	StatusAvailable,
	StatusUnderRepair,
	StatusRetired,
	StatusTheftMissing,
	StatusNotSubmitted,
}

// Terminal reports whether an asset in this status can no longer be
// transferred between entities.
func (s AssetStatus) Terminal() bool {
	return s == StatusRetired || s == StatusTheftMissing
}

// Valid reports whether s is one of the known statuses.
func (s AssetStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// AllEntities is the sentinel entity code that routes a request to the
// cross-tenant aggregation path instead of a single tenant store.
const AllEntities = "ALL"

// NormalizeCode canonicalizes an entity code for use as a cache or merge key.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Asset is the unit of inventory. A given asset row lives in exactly one
// tenant store at any instant; ID is the per-store serial and is never unique
// across tenants.
type Asset struct {
	ID         int64
	AssetID    string // human-facing identifier, unique per store (case-insensitive)
	Entity     string // denormalized owning entity code
	Status     AssetStatus
	Employee   string
	Location   string
	Department string
	Comments   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
