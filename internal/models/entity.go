package models

import "time"

// Entity represents a legal entity in the directory store. Each entity owns
// one isolated tenant store named tenant_<lowercase(code)>.
type Entity struct {
	ID           int64
	Code         string // short uppercase identifier, unique
	Name         string
	ContactEmail string
	ContactPhone string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
