package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
	"golang.org/x/sync/singleflight"
)

// Registry lazily resolves entity codes to live connection pools and caches
// them for the process lifetime. It exclusively owns every tenant pool it
// opens; borrowers obtain pools per request and must not cache them.
//
// The cache is never invalidated. An entity whose store is deleted
// out-of-band leaves a stale handle here until process restart; that is a
// documented limitation, not something the registry papers over.
type Registry struct {
	cfg         *PoolConfig
	defaultPool *pgxpool.Pool
	provisioner store.Provisioner

	mu    sync.RWMutex
	pools map[string]*pgxpool.Pool

	group singleflight.Group

	// dial is swapped out by tests; production use goes through dialTenant.
	dial func(ctx context.Context, storeName string) (*pgxpool.Pool, error)
}

var _ store.TenantStores = (*Registry)(nil)

// NewRegistry creates a registry over an already-open directory pool.
func NewRegistry(defaultPool *pgxpool.Pool, cfg *PoolConfig, provisioner store.Provisioner) *Registry {
	r := &Registry{
		cfg:         cfg,
		defaultPool: defaultPool,
		provisioner: provisioner,
		pools:       make(map[string]*pgxpool.Pool),
	}
	r.dial = r.dialTenant
	return r
}

// GetDefaultConnection returns the directory store pool. It holds the entity
// directory, users, audit log and the transfer ledger, and needs no
// provisioning step.
func (r *Registry) GetDefaultConnection() *pgxpool.Pool {
	return r.defaultPool
}

// GetConnection resolves an entity code to that tenant's pool. An empty code
// or the ALL sentinel returns the directory pool. A cache hit returns the
// existing handle with no I/O. On a miss the registry opens the pool,
// coalescing concurrent first accesses for the same code into a single
// attempt; callers arriving during an in-flight open wait for its outcome.
func (r *Registry) GetConnection(ctx context.Context, entityCode string) (*pgxpool.Pool, error) {
	code := models.NormalizeCode(entityCode)
	if code == "" || code == models.AllEntities {
		return r.defaultPool, nil
	}

	r.mu.RLock()
	pool, ok := r.pools[code]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	v, err, _ := r.group.Do(code, func() (any, error) {
		// Double-check under the singleflight: a previous flight may have
		// populated the cache between our read and this call.
		r.mu.RLock()
		pool, ok := r.pools[code]
		r.mu.RUnlock()
		if ok {
			return pool, nil
		}

		pool, err := r.open(ctx, code)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.pools[code] = pool
		r.mu.Unlock()

		return pool, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*pgxpool.Pool), nil
}

// open dials a tenant store. When the failure says the store is missing or
// access is denied it provisions once and retries the dial exactly once;
// any further failure propagates. This keeps a broken entity from looping
// through provisioning forever.
func (r *Registry) open(ctx context.Context, code string) (*pgxpool.Pool, error) {
	storeName := TenantStoreName(code)

	pool, err := r.dial(ctx, storeName)
	if err == nil {
		return pool, nil
	}

	err = classifyConnError(err, storeName)
	if !errors.Is(err, store.ErrStoreUnavailable) && !errors.Is(err, store.ErrAccessDenied) {
		return nil, err
	}

	log.Warn().
		Str("entity", code).
		Str("store", storeName).
		Err(err).
		Msg("Tenant store unreachable, attempting provisioning")

	if _, perr := r.provisioner.EnsureStore(ctx, code); perr != nil {
		return nil, fmt.Errorf("provision store for %s: %w", code, perr)
	}

	pool, err = r.dial(ctx, storeName)
	if err != nil {
		return nil, classifyConnError(err, storeName)
	}

	return pool, nil
}

func (r *Registry) dialTenant(ctx context.Context, storeName string) (*pgxpool.Pool, error) {
	return NewPool(ctx, r.cfg, storeName)
}

// Assets returns the asset store bound to one entity's tenant store. This is
// the single schema-binding step; callers never re-derive table bindings.
func (r *Registry) Assets(ctx context.Context, entityCode string) (store.AssetStore, error) {
	code := models.NormalizeCode(entityCode)
	if code == "" || code == models.AllEntities {
		return nil, fmt.Errorf("a concrete entity code is required for asset access")
	}

	pool, err := r.GetConnection(ctx, code)
	if err != nil {
		return nil, err
	}

	return NewAssetStore(pool, code), nil
}

// ListTenantStores scans the database catalog for physical stores matching
// the tenant naming convention and returns their entity codes. This defends
// the aggregation path against an entity directory that is stale relative to
// actually-provisioned stores.
func (r *Registry) ListTenantStores(ctx context.Context) ([]string, error) {
	rows, err := r.defaultPool.Query(ctx,
		`SELECT datname FROM pg_database WHERE datname LIKE $1 ORDER BY datname`,
		tenantStorePrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("scan catalog for tenant stores: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database name: %w", err)
		}
		if code := entityCodeFromStoreName(name); code != "" {
			codes = append(codes, code)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate database names: %w", err)
	}

	return codes, nil
}

// Close shuts down every tenant pool the registry opened. The directory pool
// is owned by the caller that opened it.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, pool := range r.pools {
		pool.Close()
		delete(r.pools, code)
	}
}
