package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/rs/zerolog"
)

// backend is an opened store plus the optional identity cache on the same connection.
type backend struct {
	store database.Store
	cache *postgres.IdentityRepository // nil unless postgres
}

// openBackend opens the configured store and runs migrations.
func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	log = log.With().Str("driver", cfg.Database.Driver).Logger()

	switch cfg.Database.Driver {
	case config.DriverMemory:
		store, err := sqlite.Open(ctx, sqlite.MemoryPath)
		if err != nil {
			return nil, fmt.Errorf("open in-memory store: %w", err)
		}
		log.Warn().Msg("using in-memory store, attendance is lost on exit")
		return &backend{store: store}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open SQLite store: %w", err)
		}
		log.Info().Str("path", cfg.Database.URL).Msg("store opened")
		return &backend{store: store}, nil

	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open PostgreSQL store: %w", err)
		}
		log.Info().Msg("store opened")
		return &backend{store: pool.Store(), cache: postgres.NewIdentityRepository(pool)}, nil

	case config.DriverMariaDB:
		store, err := mariadb.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open MariaDB store: %w", err)
		}
		log.Info().Msg("store opened")
		return &backend{store: store}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func (b *backend) Close() error {
	return b.store.Close()
}

// openGuard returns the Redis guard when REDIS_URL is set, else the in-process guard.
func openGuard(ctx context.Context, cfg *config.Config, log zerolog.Logger) (attendance.Guard, func(), error) {
	if cfg.Redis.URL == "" {
		return attendance.NewLocalGuard(), func() {}, nil
	}
	rdb, err := attendance.NewRedisClient(ctx, cfg.Redis.URL, log)
	if err != nil {
		return nil, nil, err
	}
	return attendance.NewRedisGuard(rdb, log), func() { _ = rdb.Close() }, nil
}

// loadGallery builds the gallery from GALLERY_DIR using the embedding server.
func loadGallery(ctx context.Context, cfg *config.Config, b *backend, progress func(done, total int), log zerolog.Logger) (*gallery.Gallery, error) {
	opts := gallery.Options{
		Policy:   gallery.Policy(cfg.Gallery.MatchPolicy),
		Metric:   cfg.Gallery.Metric,
		Progress: progress,
		Logger:   logger.Component(log, "gallery"),
	}
	if cfg.Gallery.MatchPolicy == config.MatchPolicyIndexed {
		opts.IndexPath = cfg.Database.HNSWIndexPath
	}
	if cfg.Gallery.Cache && b != nil && b.cache != nil {
		opts.Cache = b.cache
	}

	detector := fingerprint.NewEmbeddingClient(cfg.Embedding.URL)
	g, err := gallery.Load(ctx, cfg.Gallery.Dir, detector, opts)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	return g, nil
}
