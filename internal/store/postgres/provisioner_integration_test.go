//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/assetplane/internal/aggregate"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/transfer"
)

type testEnv struct {
	cfg         *PoolConfig
	registry    *Registry
	provisioner *Provisioner
	entities    *EntityStore
	ledger      *LedgerStore
	sagas       *SagaStore
}

func setupPostgresContainer(t *testing.T, ctx context.Context) *testEnv {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "directory",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/directory?sslmode=disable", host, port.Port()),
	}

	directoryPool, err := NewPool(ctx, cfg, "")
	require.NoError(t, err)
	t.Cleanup(directoryPool.Close)

	require.NoError(t, RunMigrations(ctx, directoryPool))

	provisioner, err := NewProvisioner(directoryPool, cfg, "")
	require.NoError(t, err)

	registry := NewRegistry(directoryPool, cfg, provisioner)
	t.Cleanup(registry.Close)

	return &testEnv{
		cfg:         cfg,
		registry:    registry,
		provisioner: provisioner,
		entities:    NewEntityStore(directoryPool),
		ledger:      NewLedgerStore(directoryPool),
		sagas:       NewSagaStore(directoryPool),
	}
}

func TestIntegration_ProvisioningIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := setupPostgresContainer(t, ctx)

	first, err := env.provisioner.EnsureStore(ctx, "OFB")
	require.NoError(t, err)
	require.Equal(t, "tenant_ofb", first.Name)
	require.True(t, first.Created)
	require.Greater(t, first.StatementsApplied, 0)

	// Second run against an up-to-date store issues zero DDL.
	second, err := env.provisioner.EnsureStore(ctx, "OFB")
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Zero(t, second.StatementsApplied)
}

func TestIntegration_ProvisioningRegrantsRevokedPrivileges(t *testing.T) {
	ctx := context.Background()
	env := setupPostgresContainer(t, ctx)

	// A dedicated non-superuser role; the container's own user is a
	// superuser and would pass every privilege probe regardless.
	directory := env.registry.GetDefaultConnection()
	_, err := directory.Exec(ctx, `CREATE ROLE app_rw LOGIN PASSWORD 'app_rw'`)
	require.NoError(t, err)

	provisioner, err := NewProvisioner(directory, env.cfg, "app_rw")
	require.NoError(t, err)

	info, err := provisioner.EnsureStore(ctx, "OFB")
	require.NoError(t, err)
	require.True(t, info.Created)

	// Revoke the role's access out-of-band. PUBLIC's default CONNECT has to
	// go too or the privilege probe still passes through it.
	_, err = directory.Exec(ctx, `REVOKE ALL PRIVILEGES ON DATABASE tenant_ofb FROM app_rw`)
	require.NoError(t, err)
	_, err = directory.Exec(ctx, `REVOKE CONNECT ON DATABASE tenant_ofb FROM PUBLIC`)
	require.NoError(t, err)

	var hasAccess bool
	err = directory.QueryRow(ctx, `SELECT has_database_privilege('app_rw', 'tenant_ofb', 'CONNECT')`).Scan(&hasAccess)
	require.NoError(t, err)
	require.False(t, hasAccess)

	// EnsureStore against the existing store detects the revocation and
	// re-grants rather than returning with zero statements.
	info, err = provisioner.EnsureStore(ctx, "OFB")
	require.NoError(t, err)
	require.False(t, info.Created)
	require.Greater(t, info.StatementsApplied, 0)

	err = directory.QueryRow(ctx, `SELECT has_database_privilege('app_rw', 'tenant_ofb', 'CONNECT')`).Scan(&hasAccess)
	require.NoError(t, err)
	require.True(t, hasAccess)

	// And a healthy store is back to zero DDL.
	info, err = provisioner.EnsureStore(ctx, "OFB")
	require.NoError(t, err)
	require.Zero(t, info.StatementsApplied)
}

func TestIntegration_RegistryCachesAndSelfHeals(t *testing.T) {
	ctx := context.Background()
	env := setupPostgresContainer(t, ctx)

	// First access provisions tenant_oxyzo via the retry path: the store
	// does not exist yet, so the dial fails, provisioning runs once, and
	// the retried dial succeeds.
	pool, err := env.registry.GetConnection(ctx, "OXYZO")
	require.NoError(t, err)

	again, err := env.registry.GetConnection(ctx, "oxyzo")
	require.NoError(t, err)
	require.Same(t, pool, again)

	codes, err := env.registry.ListTenantStores(ctx)
	require.NoError(t, err)
	require.Contains(t, codes, "OXYZO")
}

func TestIntegration_AssetStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := setupPostgresContainer(t, ctx)

	assets, err := env.registry.Assets(ctx, "OFB")
	require.NoError(t, err)

	asset := &models.Asset{AssetID: "AST-100", Status: models.StatusInUse, Employee: "emp-7"}
	require.NoError(t, assets.Insert(ctx, asset))
	require.NotZero(t, asset.ID)

	// Case-insensitive lookup and per-store uniqueness.
	got, err := assets.GetByAssetID(ctx, "ast-100")
	require.NoError(t, err)
	require.Equal(t, "AST-100", got.AssetID)
	require.Equal(t, "OFB", got.Entity)

	dupe := &models.Asset{AssetID: "ast-100"}
	require.Error(t, assets.Insert(ctx, dupe))
}

func TestIntegration_TransferScenario(t *testing.T) {
	ctx := context.Background()
	env := setupPostgresContainer(t, ctx)

	require.NoError(t, env.entities.Create(ctx, &models.Entity{Code: "OFB", Name: "OFB"}))
	require.NoError(t, env.entities.Create(ctx, &models.Entity{Code: "OXYZO", Name: "OXYZO"}))

	src, err := env.registry.Assets(ctx, "OFB")
	require.NoError(t, err)
	require.NoError(t, src.Insert(ctx, &models.Asset{AssetID: "AST-001", Status: models.StatusAvailable}))

	coordinator := transfer.New(env.registry, env.ledger, env.sagas, zerolog.Nop())

	result, err := coordinator.Transfer(ctx, "AST-001", "OFB", "OXYZO", "Send for Repair")
	require.NoError(t, err)
	require.Equal(t, models.StatusUnderRepair, result.TargetStatus)

	retired, err := src.GetByAssetID(ctx, "AST-001")
	require.NoError(t, err)
	require.Equal(t, models.StatusRetired, retired.Status)

	tgt, err := env.registry.Assets(ctx, "OXYZO")
	require.NoError(t, err)
	moved, err := tgt.GetByAssetID(ctx, "AST-001")
	require.NoError(t, err)
	require.Equal(t, models.StatusUnderRepair, moved.Status)

	entries, err := env.ledger.ListByAsset(ctx, "AST-001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "OFB", entries[0].SourceEntity)
	require.Equal(t, "OXYZO", entries[0].TargetEntity)
	require.Equal(t, models.OutcomeCompleted, entries[0].Outcome)

	stalled, err := env.sagas.ListStalled(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, stalled)
}

func TestIntegration_AggregationWithCatalogScan(t *testing.T) {
	ctx := context.Background()
	env := setupPostgresContainer(t, ctx)

	// OFB is registered in the directory; GHOST only exists physically.
	require.NoError(t, env.entities.Create(ctx, &models.Entity{Code: "OFB", Name: "OFB"}))
	_, err := env.provisioner.EnsureStore(ctx, "GHOST")
	require.NoError(t, err)

	ofb, err := env.registry.Assets(ctx, "OFB")
	require.NoError(t, err)
	require.NoError(t, ofb.Insert(ctx, &models.Asset{AssetID: "AST-001", Status: models.StatusAvailable}))

	ghost, err := env.registry.Assets(ctx, "GHOST")
	require.NoError(t, err)
	require.NoError(t, ghost.Insert(ctx, &models.Asset{AssetID: "AST-002", Status: models.StatusInUse}))

	engine := aggregate.New(env.registry, env.entities, aggregate.Config{}, zerolog.Nop())

	assets, err := engine.ListAcrossTenants(ctx, nil)
	require.NoError(t, err)
	require.Len(t, assets, 2)
}
