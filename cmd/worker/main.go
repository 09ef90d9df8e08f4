package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gotus/internal/log"
	"gotus/internal/worker/config"
	"gotus/internal/worker/queue"
	"gotus/internal/worker/storage"
	"gotus/internal/worker/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Logging.Level)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var archive tasks.Archive
	if cfg.Archive.Enabled {
		store, err := storage.NewObjectStore(cfg.Archive)
		if err != nil {
			logger.Fatal().Err(err).Msg("audit archive init failed")
		}
		ensureCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = store.EnsureBuckets(ensureCtx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("bucket", cfg.Archive.Bucket).Msg("audit bucket unavailable")
		}
		archive = store
		logger.Info().Str("bucket", cfg.Archive.Bucket).Msg("archiving audit events")
	} else {
		logger.Warn().Msg("audit archive disabled; events are only logged")
	}

	processor := tasks.NewProcessor(logger, archive, cfg.Archive.Prefix)
	consumer := queue.NewConsumer(client, queue.Options{
		Stream:        cfg.Audit.Stream,
		Group:         cfg.Audit.Group,
		Consumer:      cfg.Audit.Consumer,
		BatchSize:     cfg.Audit.BatchSize,
		Block:         cfg.Audit.Block,
		ClaimInterval: cfg.Audit.ClaimInterval,
	}, logger, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	logger.Info().Str("stream", cfg.Audit.Stream).Str("group", cfg.Audit.Group).Msg("audit worker started")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(cfg.Audit.Block + time.Second):
	}
	logger.Info().Interface("handled", processor.Counts()).Msg("audit worker exited")
}
