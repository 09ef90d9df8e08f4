package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gotus/internal/bootstrap"
	"gotus/internal/cache"
	"gotus/internal/config"
	"gotus/internal/handlers"
	"gotus/internal/identity"
	"gotus/internal/jobs"
	"gotus/internal/log"
	"gotus/internal/security"
	"gotus/internal/server"
	"gotus/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	stores, err := bootstrap.OpenStores(ctx, cfg, cfg.Postgres.AutoMigrate, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open account store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; using in-process locks and no audit stream")
			redisClient = nil
		}
	}

	publisher := bootstrap.Publisher(cfg, redisClient)
	directory := service.NewDirectoryService(
		stores.Accounts,
		bootstrap.Locker(redisClient),
		publisher,
		service.DirectoryConfig{PasswordMinLen: cfg.Security.PasswordMinLen},
		logger,
	)

	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:       cfg.Security.JWTSecret,
		TTL:          cfg.Security.TokenTTL,
		RefreshGrace: cfg.Security.RefreshGrace,
		Issuer:       cfg.Security.Issuer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token service")
	}
	auth := service.NewAuthService(stores.Accounts, tokens, stores.Denylist(cfg, redisClient, logger), publisher, logger)

	if cfg.Seed.Enabled {
		seeder := service.NewSeeder(directory, stores.Accounts, service.SeedConfig{
			AdminEmail:    cfg.Seed.AdminEmail,
			AdminPassword: cfg.Seed.AdminPassword,
			FirstName:     cfg.Seed.FirstName,
			LastName:      cfg.Seed.LastName,
		}, logger)
		if _, err := seeder.EnsureAdmin(ctx); err != nil {
			logger.Error().Err(err).Msg("admin seed failed")
		}
	}

	extract := security.DefaultExtractor(cfg.Security.CookieName)
	resolver := identity.Chain{
		identity.NewStaffTokenResolver(extract, auth),
		identity.NewSessionProviderResolver(cfg.SessionProvider, nil, logger),
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Auth:      auth,
		Directory: directory,
		Identity:  resolver,
		Store:     stores.Accounts,
		Cache:     redisClient,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	var purger jobs.RevocationPurger
	if stores.Revocations != nil {
		purger = stores.Revocations
	}
	scheduler := jobs.NewScheduler(directory, purger, publisher, cfg.Jobs.CensusSpec, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, stores, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, stores *bootstrap.Stores, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduled jobs still running at shutdown")
	}

	if err := stores.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("store close error")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
