package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetplane/internal/aggregate"
	"github.com/wolfeidau/assetplane/internal/entities"
	"github.com/wolfeidau/assetplane/internal/logger"
	"github.com/wolfeidau/assetplane/internal/server"
	"github.com/wolfeidau/assetplane/internal/store/postgres"
	"github.com/wolfeidau/assetplane/internal/transfer"
)

type ServerCmd struct {
	Listen        string `help:"listen address" default:"${default_listen}"`
	DatabaseURL   string `help:"directory store connection string" env:"DATABASE_URL"`
	ServiceRole   string `help:"role granted privileges on new tenant stores (defaults to the connection user)"`
	Config        string `help:"path to optional YAML config file" type:"existingfile" optional:""`
	FanOutLimit   int    `help:"max concurrent tenant queries during aggregation" default:"${default_fan_out_limit}"`
	TenantTimeout int    `help:"per-tenant query timeout in seconds" default:"${default_tenant_timeout}"`
	AutoMigrate   bool   `help:"apply directory migrations on startup" default:"true"`
}

func (s *ServerCmd) Run(kctx context.Context, globals *Globals) error {
	appLogger := logger.Setup(globals.Debug)
	log.Logger = appLogger

	fileCfg, err := loadFileConfig(s.Config)
	if err != nil {
		return err
	}
	s.applyFileConfig(fileCfg)

	ctx, stop := signal.NotifyContext(kctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCfg := &postgres.PoolConfig{ConnString: s.DatabaseURL}

	directoryPool, err := postgres.NewPool(ctx, poolCfg, "")
	if err != nil {
		return err
	}
	defer directoryPool.Close()

	if s.AutoMigrate {
		if err := postgres.RunMigrations(ctx, directoryPool); err != nil {
			return err
		}
	}

	provisioner, err := postgres.NewProvisioner(directoryPool, poolCfg, s.ServiceRole)
	if err != nil {
		return err
	}

	registry := postgres.NewRegistry(directoryPool, poolCfg, provisioner)
	defer registry.Close()

	entityStore := postgres.NewEntityStore(directoryPool)
	ledgerStore := postgres.NewLedgerStore(directoryPool)
	sagaStore := postgres.NewSagaStore(directoryPool)

	engine := aggregate.New(registry, entityStore, aggregate.Config{
		FanOutLimit:   s.FanOutLimit,
		TenantTimeout: time.Duration(s.TenantTimeout) * time.Second,
	}, appLogger)

	coordinator := transfer.New(registry, ledgerStore, sagaStore, appLogger)
	entitySvc := entities.NewService(entityStore, provisioner, appLogger)

	srv := server.New(registry, engine, coordinator, entitySvc, ledgerStore, appLogger)
	httpServer := configureHTTPServer(s.Listen, srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("version", globals.Version).Str("listen", s.Listen).Msg("Starting asset data-plane server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

// applyFileConfig fills fields left at their zero/default values with the
// config file's values. Flags win when explicitly set.
func (s *ServerCmd) applyFileConfig(cfg *fileConfig) {
	if s.DatabaseURL == "" && cfg.DatabaseURL != "" {
		s.DatabaseURL = cfg.DatabaseURL
	}
	if s.ServiceRole == "" && cfg.ServiceRole != "" {
		s.ServiceRole = cfg.ServiceRole
	}
	if cfg.Listen != "" && s.Listen == defaultListen {
		s.Listen = cfg.Listen
	}
	if cfg.FanOutLimit > 0 && s.FanOutLimit == defaultFanOutLimit {
		s.FanOutLimit = cfg.FanOutLimit
	}
	if cfg.TenantTimeoutSeconds > 0 && s.TenantTimeout == defaultTenantTimeoutSeconds {
		s.TenantTimeout = cfg.TenantTimeoutSeconds
	}
}
