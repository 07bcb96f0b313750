// Package aggregate fans a read across every known tenant store and merges
// the results into one logical view. One tenant's failure never fails the
// aggregate; a failed tenant contributes zero rows.
package aggregate

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
	"golang.org/x/sync/errgroup"
)

// dedupSentinelEntity is the entity key used for rows whose denormalized
// entity column is blank.
const dedupSentinelEntity = "GLOBAL"

// Config tunes the fan-out.
type Config struct {
	// FanOutLimit caps the number of tenant queries in flight at once,
	// independent of how many tenants exist. Default: 8
	FanOutLimit int

	// TenantTimeout bounds each per-tenant query so one unresponsive
	// tenant cannot stall the whole aggregate. Default: 10s
	TenantTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.FanOutLimit <= 0 {
		c.FanOutLimit = 8
	}
	if c.TenantTimeout <= 0 {
		c.TenantTimeout = 10 * time.Second
	}
}

// Engine aggregates asset reads across tenant stores.
type Engine struct {
	stores    store.TenantStores
	directory store.EntityStore
	cfg       Config
	logger    zerolog.Logger
}

// New creates an aggregation engine. The directory supplies candidate entity
// codes; the catalog scan in stores defends against a stale directory.
func New(stores store.TenantStores, directory store.EntityStore, cfg Config, logger zerolog.Logger) *Engine {
	cfg.ApplyDefaults()
	return &Engine{
		stores:    stores,
		directory: directory,
		cfg:       cfg,
		logger:    logger,
	}
}

// ListAcrossTenants queries every candidate tenant concurrently and returns
// the deduplicated union. With no explicit codes the candidate set is the
// union of the entity directory and a catalog scan for provisioned stores.
// Tenants are queried in lexicographic code order so the first-wins dedup is
// reproducible across runs. Only all-tenants-failed is surfaced as an error.
func (e *Engine) ListAcrossTenants(ctx context.Context, entityCodes []string) ([]models.Asset, error) {
	codes, err := e.resolveCandidates(ctx, entityCodes)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	results := make([][]models.Asset, len(codes))
	var failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.FanOutLimit)

	for i, code := range codes {
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, e.cfg.TenantTimeout)
			defer cancel()

			assets, err := e.listTenant(tctx, code)
			if err != nil {
				// Absorbed: this tenant contributes zero rows.
				failed.Add(1)
				e.logger.Warn().
					Str("entity", code).
					Err(err).
					Msg("Tenant query failed during aggregation")
				return nil
			}

			results[i] = assets
			return nil
		})
	}

	_ = g.Wait() // goroutines only ever return nil

	if int(failed.Load()) == len(codes) {
		return nil, store.ErrAllTenantsFailed
	}

	return merge(results), nil
}

func (e *Engine) listTenant(ctx context.Context, code string) ([]models.Asset, error) {
	assets, err := e.stores.Assets(ctx, code)
	if err != nil {
		return nil, err
	}
	return assets.List(ctx)
}

// resolveCandidates produces the sorted, deduplicated candidate set.
func (e *Engine) resolveCandidates(ctx context.Context, entityCodes []string) ([]string, error) {
	seen := make(map[string]struct{})
	var codes []string

	add := func(code string) {
		code = models.NormalizeCode(code)
		if code == "" || code == models.AllEntities {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	if len(entityCodes) > 0 {
		for _, code := range entityCodes {
			add(code)
		}
	} else {
		entities, err := e.directory.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, entity := range entities {
			add(entity.Code)
		}

		// Catalog scan picks up stores the directory doesn't know about.
		provisioned, err := e.stores.ListTenantStores(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Catalog scan for tenant stores failed, using directory only")
		} else {
			for _, code := range provisioned {
				add(code)
			}
		}
	}

	sort.Strings(codes)
	return codes, nil
}

// dedupKey is the cross-tenant identity of an asset row. The physical serial
// id is only a fallback for rows with a blank asset identifier; it is never
// a merge key across tenants.
func dedupKey(a models.Asset) string {
	entity := strings.ToUpper(strings.TrimSpace(a.Entity))
	if entity == "" {
		entity = dedupSentinelEntity
	}

	id := strings.ToUpper(strings.TrimSpace(a.AssetID))
	if id == "" {
		id = strconv.FormatInt(a.ID, 10)
	}

	return entity + "::" + id
}

// merge flattens per-tenant result sets in tenant query order, keeping the
// first row seen for each dedup key.
func merge(results [][]models.Asset) []models.Asset {
	seen := make(map[string]struct{})
	var out []models.Asset

	for _, tenantRows := range results {
		for _, a := range tenantRows {
			key := dedupKey(a)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, a)
		}
	}

	return out
}
