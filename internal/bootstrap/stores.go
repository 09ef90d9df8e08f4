// Package bootstrap opens the backing stores selected by configuration. It is
// shared by the API and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"gotus/internal/cache"
	"gotus/internal/config"
	"gotus/internal/database"
	"gotus/internal/events"
	"gotus/internal/repository"
)

type Stores struct {
	Accounts repository.AccountRepository
	// Revocations is set for the postgres driver only.
	Revocations *repository.PostgresRevocationRepository
	Postgres    *pgxpool.Pool
	Mongo       *mongo.Client
}

// OpenStores connects the account store for cfg.Database.Driver. With
// migrate set, postgres schema migrations run before the store is used.
func OpenStores(ctx context.Context, cfg *config.AppConfig, migrate bool, log zerolog.Logger) (*Stores, error) {
	switch cfg.Database.Driver {
	case config.DriverMongo:
		client, err := database.NewMongoClient(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		accounts, err := repository.NewMongoAccountRepository(ctx, client.Database(cfg.Mongo.Database))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongodb account store")
		return &Stores{Accounts: accounts, Mongo: client}, nil

	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info().Msg("using postgres account store")
		return &Stores{
			Accounts:    repository.NewPostgresAccountRepository(pool),
			Revocations: repository.NewPostgresRevocationRepository(pool),
			Postgres:    pool,
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("using in-memory account store; data is lost on restart")
		return &Stores{Accounts: repository.NewMemoryAccountRepository()}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func (s *Stores) Close(ctx context.Context) error {
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	if s.Mongo != nil {
		return s.Mongo.Disconnect(ctx)
	}
	return nil
}

// Denylist picks where signed-out token ids are kept: Redis when available,
// then the postgres table, then process memory. It returns nil when
// revocation is switched off.
func (s *Stores) Denylist(cfg *config.AppConfig, redisClient *redis.Client, log zerolog.Logger) cache.Denylist {
	if !cfg.Security.RevokeOnSignOut {
		return nil
	}
	switch {
	case redisClient != nil:
		return cache.NewRedisDenylist(redisClient, nil)
	case s.Revocations != nil:
		return s.Revocations
	default:
		log.Warn().Msg("token denylist kept in memory; revocations are per instance")
		return cache.NewMemoryDenylist(nil)
	}
}

// Locker serialises last-admin checks across instances when Redis is
// available.
func Locker(redisClient *redis.Client) cache.Locker {
	if redisClient == nil {
		return cache.NewLocalLocker()
	}
	return cache.NewRedisLocker(redisClient, 0, 0)
}

func Publisher(cfg *config.AppConfig, redisClient *redis.Client) events.Publisher {
	if redisClient == nil {
		return events.NopPublisher{}
	}
	return events.NewStreamPublisher(redisClient, cfg.Audit.Stream)
}
