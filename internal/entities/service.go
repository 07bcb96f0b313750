// Package entities manages the entity directory. Creating an entity also
// provisions its tenant store synchronously; the entity does not exist, as
// far as callers are concerned, until provisioning succeeds.
package entities

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

var codePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,30}$`)

// Service sequences directory writes with tenant store provisioning.
type Service struct {
	entities    store.EntityStore
	provisioner store.Provisioner
	logger      zerolog.Logger
}

func NewService(entities store.EntityStore, provisioner store.Provisioner, logger zerolog.Logger) *Service {
	return &Service{
		entities:    entities,
		provisioner: provisioner,
		logger:      logger,
	}
}

// Create registers a new entity and provisions its tenant store. If
// provisioning fails the directory row is removed again so the operation can
// be retried from scratch.
func (s *Service) Create(ctx context.Context, entity *models.Entity) error {
	entity.Code = models.NormalizeCode(entity.Code)
	if !codePattern.MatchString(entity.Code) {
		return store.Validationf("invalid entity code %q", entity.Code)
	}
	if entity.Code == models.AllEntities {
		return store.Validationf("entity code %s is reserved", models.AllEntities)
	}

	if err := s.entities.Create(ctx, entity); err != nil {
		return err
	}

	info, err := s.provisioner.EnsureStore(ctx, entity.Code)
	if err != nil {
		// Roll the directory row back so the entity stays retryable; the
		// physical store may or may not exist, EnsureStore copes either way.
		if derr := s.entities.Delete(ctx, entity.Code); derr != nil {
			s.logger.Error().
				Str("code", entity.Code).
				Err(derr).
				Msg("Failed to remove directory row after provisioning failure")
		}
		return fmt.Errorf("provision store for %s: %w", entity.Code, err)
	}

	s.logger.Info().
		Str("code", entity.Code).
		Str("store", info.Name).
		Bool("store_created", info.Created).
		Msg("Created entity")

	return nil
}

// Get returns one entity by code.
func (s *Service) Get(ctx context.Context, code string) (*models.Entity, error) {
	return s.entities.GetByCode(ctx, code)
}

// List returns all registered entities.
func (s *Service) List(ctx context.Context) ([]models.Entity, error) {
	return s.entities.List(ctx)
}

// Delete removes the directory row only. The tenant store stays behind by
// design; the provisioner never drops anything.
func (s *Service) Delete(ctx context.Context, code string) error {
	return s.entities.Delete(ctx, code)
}
