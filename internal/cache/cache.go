// Package cache holds scored attempt results that could not be persisted.
//
// Entries are scoped by a namespace (the client or node id) and keyed by
// attempt id, so one node never replays another node's pending results.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/lshigami/examprep/config"
	"github.com/lshigami/examprep/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrMiss is returned by Get when nothing is cached for the attempt.
var ErrMiss = errors.New("cache: miss")

type ResultCache interface {
	Put(ctx context.Context, result *model.AttemptResult) error
	Get(ctx context.Context, attemptID uint) (*model.AttemptResult, error)
	Delete(ctx context.Context, attemptID uint) error
	// Keys lists the attempt ids with a cached result.
	Keys(ctx context.Context) ([]uint, error)
}

// NewFromConfig picks the cache backend named by CACHE_DRIVER.
func NewFromConfig(cfg *config.Config) (ResultCache, error) {
	switch cfg.Cache.Driver {
	case "redis":
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Str("namespace", cfg.Cache.Namespace).Msg("Using redis result cache")
		return NewRedisCache(client, cfg.Cache.Namespace), nil
	case "file", "":
		log.Info().Str("dir", cfg.Cache.Dir).Str("namespace", cfg.Cache.Namespace).Msg("Using file result cache")
		return NewFileCache(afero.NewOsFs(), cfg.Cache.Dir, cfg.Cache.Namespace)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Cache.Driver)
	}
}
