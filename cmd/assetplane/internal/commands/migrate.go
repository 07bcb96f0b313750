package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/logger"
	"github.com/wolfeidau/assetplane/internal/store/postgres"
)

type MigrateCmd struct {
	DatabaseURL string `help:"directory store connection string" env:"DATABASE_URL" required:""`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: m.DatabaseURL}, "")
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgres.RunMigrations(ctx, pool)
}
