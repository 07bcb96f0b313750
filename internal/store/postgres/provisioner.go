package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
)

// tenantStorePrefix is the naming convention for physical tenant stores.
// The catalog-scan fallback in the registry relies on it, so it must be
// preserved bit-for-bit.
const tenantStorePrefix = "tenant_"

var entityCodePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,30}$`)

// TenantStoreName returns the physical database name for an entity code.
func TenantStoreName(entityCode string) string {
	return tenantStorePrefix + strings.ToLower(models.NormalizeCode(entityCode))
}

// entityCodeFromStoreName is the inverse of TenantStoreName; it returns ""
// for database names outside the tenant naming convention.
func entityCodeFromStoreName(name string) string {
	if !strings.HasPrefix(name, tenantStorePrefix) {
		return ""
	}
	return strings.ToUpper(strings.TrimPrefix(name, tenantStorePrefix))
}

// Provisioner creates tenant stores, grants the service role access, and
// applies the additive tenant schema. All operations are idempotent; a run
// against an up-to-date store issues zero DDL.
type Provisioner struct {
	admin       *pgxpool.Pool
	cfg         *PoolConfig
	serviceRole string
}

var _ store.Provisioner = (*Provisioner)(nil)

// NewProvisioner creates a provisioner using the directory pool for
// catalog-level DDL. serviceRole is the role granted full privileges on new
// stores; when empty it defaults to the connection string's user.
func NewProvisioner(admin *pgxpool.Pool, cfg *PoolConfig, serviceRole string) (*Provisioner, error) {
	if serviceRole == "" {
		parsed, err := pgxpool.ParseConfig(cfg.ConnString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		serviceRole = parsed.ConnConfig.User
	}

	return &Provisioner{
		admin:       admin,
		cfg:         cfg,
		serviceRole: serviceRole,
	}, nil
}

// EnsureStore guarantees that after return the physical store for entityCode
// exists, the service role has full privileges on it, and the current table,
// column and enum definitions are present. Only additive changes are ever
// issued.
func (p *Provisioner) EnsureStore(ctx context.Context, entityCode string) (store.StoreInfo, error) {
	code := models.NormalizeCode(entityCode)
	if !entityCodePattern.MatchString(code) {
		return store.StoreInfo{}, fmt.Errorf("invalid entity code %q", entityCode)
	}

	info := store.StoreInfo{Name: TenantStoreName(code)}

	created, applied, err := p.ensureDatabase(ctx, info.Name)
	if err != nil {
		return info, err
	}
	info.Created = created
	info.StatementsApplied += applied

	// Short-lived connection to the tenant store for schema work. A freshly
	// created database can take a moment to accept connections, so dialing
	// retries with exponential backoff.
	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		return NewPool(ctx, p.cfg, info.Name)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		return info, classifyConnError(err, info.Name)
	}
	defer pool.Close()

	applied, err = ensureTenantSchema(ctx, pool)
	info.StatementsApplied += applied
	if err != nil {
		return info, fmt.Errorf("apply tenant schema to %s: %w", info.Name, err)
	}

	if info.StatementsApplied > 0 {
		log.Info().
			Str("store", info.Name).
			Bool("created", info.Created).
			Int("statements", info.StatementsApplied).
			Msg("Provisioned tenant store")
	}

	return info, nil
}

// ensureDatabase creates the physical database and grants the service role
// access when the database is absent.
func (p *Provisioner) ensureDatabase(ctx context.Context, name string) (created bool, applied int, err error) {
	var exists bool
	err = p.admin.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, 0, fmt.Errorf("%w: check database %s: %v", store.ErrStoreCreationFailed, name, err)
	}
	if exists {
		// The store may predate a privilege revocation; re-grant when the
		// service role has lost access. Probing first keeps a healthy store
		// at zero statements.
		var hasAccess bool
		err = p.admin.QueryRow(ctx, `SELECT has_database_privilege($1, $2, 'CONNECT')`, p.serviceRole, name).Scan(&hasAccess)
		if err != nil {
			return false, 0, fmt.Errorf("%w: check privileges on %s: %v", store.ErrStoreCreationFailed, name, err)
		}
		if hasAccess {
			return false, 0, nil
		}

		_, err = p.admin.Exec(ctx, fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %s TO %s`,
			pgx.Identifier{name}.Sanitize(), pgx.Identifier{p.serviceRole}.Sanitize()))
		if err != nil {
			return false, 0, fmt.Errorf("%w: grant on %s: %v", store.ErrStoreCreationFailed, name, err)
		}

		log.Info().
			Str("store", name).
			Str("role", p.serviceRole).
			Msg("Re-granted revoked privileges on tenant store")

		return false, 1, nil
	}

	// CREATE DATABASE cannot run inside a transaction; two concurrent runs
	// can race, so a duplicate error means the other run won.
	_, err = p.admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %s`, pgx.Identifier{name}.Sanitize()))
	if err != nil {
		if !isDuplicateObject(err) {
			return false, 0, fmt.Errorf("%w: create database %s: %v", store.ErrStoreCreationFailed, name, err)
		}
	} else {
		created = true
		applied++
	}

	_, err = p.admin.Exec(ctx, fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %s TO %s`,
		pgx.Identifier{name}.Sanitize(), pgx.Identifier{p.serviceRole}.Sanitize()))
	if err != nil {
		return created, applied, fmt.Errorf("%w: grant on %s: %v", store.ErrStoreCreationFailed, name, err)
	}
	applied++

	return created, applied, nil
}

// assetColumns lists every non-key column of the assets table with its DDL.
// Columns added in later releases are appended here; ensureTenantSchema adds
// the ones a store is missing and never removes or narrows anything.
var assetColumns = []struct {
	name string
	ddl  string
}{
	{"entity", `TEXT NOT NULL DEFAULT ''`},
	{"status", `asset_status NOT NULL DEFAULT 'NotSubmitted'`},
	{"employee", `TEXT NOT NULL DEFAULT ''`},
	{"location", `TEXT NOT NULL DEFAULT ''`},
	{"department", `TEXT NOT NULL DEFAULT ''`},
	{"comments", `TEXT NOT NULL DEFAULT ''`},
	{"created_at", `TIMESTAMPTZ NOT NULL DEFAULT now()`},
	{"updated_at", `TIMESTAMPTZ NOT NULL DEFAULT now()`},
}

// ensureTenantSchema brings one tenant store up to the current schema. Every
// object is probed in the catalog first so a run against a current store
// issues zero DDL.
func ensureTenantSchema(ctx context.Context, pool *pgxpool.Pool) (applied int, err error) {
	n, err := ensureStatusEnum(ctx, pool)
	applied += n
	if err != nil {
		return applied, err
	}

	var hasTable bool
	err = pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'assets'
		)
	`).Scan(&hasTable)
	if err != nil {
		return applied, fmt.Errorf("check assets table: %w", err)
	}

	if !hasTable {
		var ddl strings.Builder
		ddl.WriteString("CREATE TABLE assets (\n")
		ddl.WriteString("\tid BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,\n")
		ddl.WriteString("\tasset_id TEXT NOT NULL")
		for _, col := range assetColumns {
			ddl.WriteString(",\n\t" + col.name + " " + col.ddl)
		}
		ddl.WriteString("\n)")

		if _, err := pool.Exec(ctx, ddl.String()); err != nil {
			if !isDuplicateObject(err) {
				return applied, fmt.Errorf("create assets table: %w", err)
			}
		} else {
			applied++
		}
	} else {
		n, err = ensureAssetColumns(ctx, pool)
		applied += n
		if err != nil {
			return applied, err
		}
	}

	// asset_id is unique per store, case-insensitively.
	var hasIndex bool
	err = pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'public' AND tablename = 'assets' AND indexname = 'assets_asset_id_key'
		)
	`).Scan(&hasIndex)
	if err != nil {
		return applied, fmt.Errorf("check assets index: %w", err)
	}

	if !hasIndex {
		_, err = pool.Exec(ctx, `CREATE UNIQUE INDEX assets_asset_id_key ON assets (upper(asset_id))`)
		if err != nil {
			if !isDuplicateObject(err) {
				return applied, fmt.Errorf("create assets index: %w", err)
			}
		} else {
			applied++
		}
	}

	return applied, nil
}

// ensureStatusEnum creates the asset_status enum or extends it with missing
// values. Enum changes are superset-only; a value is never removed.
func ensureStatusEnum(ctx context.Context, pool *pgxpool.Pool) (applied int, err error) {
	var hasType bool
	err = pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_type WHERE typname = 'asset_status')`).Scan(&hasType)
	if err != nil {
		return 0, fmt.Errorf("check asset_status type: %w", err)
	}

	if !hasType {
		labels := make([]string, 0, len(models.AllStatuses))
		for _, s := range models.AllStatuses {
			labels = append(labels, "'"+string(s)+"'")
		}
		_, err = pool.Exec(ctx, fmt.Sprintf(`CREATE TYPE asset_status AS ENUM (%s)`, strings.Join(labels, ", ")))
		if err != nil {
			if !isDuplicateObject(err) {
				return 0, fmt.Errorf("create asset_status type: %w", err)
			}
			return 0, nil
		}
		return 1, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT e.enumlabel
		FROM pg_enum e
		JOIN pg_type t ON t.oid = e.enumtypid
		WHERE t.typname = 'asset_status'
	`)
	if err != nil {
		return 0, fmt.Errorf("read asset_status values: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return 0, fmt.Errorf("scan asset_status value: %w", err)
		}
		existing[label] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate asset_status values: %w", err)
	}

	for _, s := range models.AllStatuses {
		if _, ok := existing[string(s)]; ok {
			continue
		}
		_, err = pool.Exec(ctx, fmt.Sprintf(`ALTER TYPE asset_status ADD VALUE IF NOT EXISTS '%s'`, string(s)))
		if err != nil {
			return applied, fmt.Errorf("add asset_status value %s: %w", s, err)
		}
		applied++
	}

	return applied, nil
}

// ensureAssetColumns issues an additive ALTER for each desired column absent
// from the assets table.
func ensureAssetColumns(ctx context.Context, pool *pgxpool.Pool) (applied int, err error) {
	rows, err := pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = 'assets'
	`)
	if err != nil {
		return 0, fmt.Errorf("read assets columns: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, fmt.Errorf("scan column name: %w", err)
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate assets columns: %w", err)
	}

	for _, col := range assetColumns {
		if _, ok := existing[col.name]; ok {
			continue
		}
		_, err = pool.Exec(ctx, fmt.Sprintf(`ALTER TABLE assets ADD COLUMN %s %s`, col.name, col.ddl))
		if err != nil {
			return applied, fmt.Errorf("add column %s: %w", col.name, err)
		}
		applied++

		log.Debug().Str("column", col.name).Msg("Added missing assets column")
	}

	return applied, nil
}
