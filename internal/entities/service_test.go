package entities

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

type memEntityStore struct {
	entities map[string]*models.Entity
	deletes  int
}

func newMemEntityStore() *memEntityStore {
	return &memEntityStore{entities: make(map[string]*models.Entity)}
}

func (m *memEntityStore) Create(_ context.Context, entity *models.Entity) error {
	if _, ok := m.entities[entity.Code]; ok {
		return store.ErrEntityAlreadyExists
	}
	copied := *entity
	m.entities[entity.Code] = &copied
	return nil
}

func (m *memEntityStore) GetByCode(_ context.Context, code string) (*models.Entity, error) {
	e, ok := m.entities[models.NormalizeCode(code)]
	if !ok {
		return nil, store.ErrEntityNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memEntityStore) List(context.Context) ([]models.Entity, error) {
	var out []models.Entity
	for _, e := range m.entities {
		out = append(out, *e)
	}
	return out, nil
}

func (m *memEntityStore) Delete(_ context.Context, code string) error {
	code = models.NormalizeCode(code)
	if _, ok := m.entities[code]; !ok {
		return store.ErrEntityNotFound
	}
	delete(m.entities, code)
	m.deletes++
	return nil
}

type stubProvisioner struct {
	calls int
	err   error
}

func (s *stubProvisioner) EnsureStore(_ context.Context, entityCode string) (store.StoreInfo, error) {
	s.calls++
	if s.err != nil {
		return store.StoreInfo{}, s.err
	}
	return store.StoreInfo{Name: "tenant_" + entityCode, Created: true}, nil
}

func TestCreate_ProvisionsSynchronously(t *testing.T) {
	entities := newMemEntityStore()
	prov := &stubProvisioner{}
	svc := NewService(entities, prov, zerolog.Nop())

	err := svc.Create(context.Background(), &models.Entity{Code: "ofb", Name: "OFB Pty Ltd"})
	require.NoError(t, err)
	require.Equal(t, 1, prov.calls)

	created, err := entities.GetByCode(context.Background(), "OFB")
	require.NoError(t, err)
	require.Equal(t, "OFB", created.Code)
}

func TestCreate_ProvisionFailureRollsBackRow(t *testing.T) {
	entities := newMemEntityStore()
	prov := &stubProvisioner{err: errors.New("CREATE DATABASE denied")}
	svc := NewService(entities, prov, zerolog.Nop())

	err := svc.Create(context.Background(), &models.Entity{Code: "OFB"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "provision store for OFB")

	// The directory row is gone, so the caller can retry from scratch.
	_, err = entities.GetByCode(context.Background(), "OFB")
	require.ErrorIs(t, err, store.ErrEntityNotFound)
	require.Equal(t, 1, entities.deletes)
}

func TestCreate_RejectsInvalidCodes(t *testing.T) {
	entities := newMemEntityStore()
	prov := &stubProvisioner{}
	svc := NewService(entities, prov, zerolog.Nop())

	for _, code := range []string{"", "1BAD", "has space", "ALL", "way_too_long_for_an_entity_code_by_far"} {
		err := svc.Create(context.Background(), &models.Entity{Code: code})
		require.Error(t, err, "code %q", code)
		require.True(t, store.IsValidation(err), "code %q", code)
	}
	require.Zero(t, prov.calls)
}

func TestCreate_DuplicateCode(t *testing.T) {
	entities := newMemEntityStore()
	svc := NewService(entities, &stubProvisioner{}, zerolog.Nop())

	require.NoError(t, svc.Create(context.Background(), &models.Entity{Code: "OFB"}))
	err := svc.Create(context.Background(), &models.Entity{Code: "ofb"})
	require.ErrorIs(t, err, store.ErrEntityAlreadyExists)
}
