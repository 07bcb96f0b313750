package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/logger"
	"github.com/wolfeidau/assetplane/internal/store/postgres"
)

type ProvisionCmd struct {
	Code        string `arg:"" help:"entity code to provision a tenant store for"`
	DatabaseURL string `help:"directory store connection string" env:"DATABASE_URL" required:""`
	ServiceRole string `help:"role granted privileges on the tenant store (defaults to the connection user)"`
}

func (p *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	poolCfg := &postgres.PoolConfig{ConnString: p.DatabaseURL}

	pool, err := postgres.NewPool(ctx, poolCfg, "")
	if err != nil {
		return err
	}
	defer pool.Close()

	provisioner, err := postgres.NewProvisioner(pool, poolCfg, p.ServiceRole)
	if err != nil {
		return err
	}

	info, err := provisioner.EnsureStore(ctx, p.Code)
	if err != nil {
		return err
	}

	log.Info().
		Str("store", info.Name).
		Bool("created", info.Created).
		Int("statements", info.StatementsApplied).
		Msg("Tenant store provisioned")

	return nil
}
