package store

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"calltrack/internal/config"
	"calltrack/pkg/utils"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Options struct {
	Driver string

	PostgresDSN string
	Pool        utils.PoolConfig
	// Migrate applies the embedded migrations after connecting.
	Migrate bool

	Redis utils.RedisConfig
}

// Open connects the configured backend. The caller owns the returned Store and must Close it.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverPostgres, "":
		db, err := utils.OpenPostgres(ctx, "pgx", opts.PostgresDSN, opts.Pool)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		if opts.Migrate {
			if err := Migrate(db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return NewPostgres(db), nil
	case DriverRedis:
		rdb, err := utils.OpenRedis(ctx, opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("store: open redis: %w", err)
		}
		return NewRedis(rdb), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}

// OptionsFrom maps the process configuration onto Open's options.
func OptionsFrom(cfg config.Config) Options {
	opts := Options{
		Driver:  cfg.Store.Driver,
		Migrate: cfg.Store.Migrate,
		Redis:   RedisOptions(cfg),
	}
	if opts.Driver == DriverPostgres || opts.Driver == "" {
		opts.PostgresDSN = cfg.PostgresDSN()
		opts.Pool = utils.PoolConfig{MaxOpenConns: cfg.DB.MaxConns}
	}
	return opts
}

// RedisOptions is shared by the Redis store and the asynq dispatch queue.
func RedisOptions(cfg config.Config) utils.RedisConfig {
	if cfg.Redis.Host == "" {
		return utils.RedisConfig{}
	}
	return utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB}
}
