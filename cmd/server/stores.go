package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yishak-cs/stylematch/internal/database"
	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/metrics"
	"github.com/yishak-cs/stylematch/internal/recommend"
	"github.com/yishak-cs/stylematch/internal/services"
	"github.com/yishak-cs/stylematch/internal/store"
	"github.com/yishak-cs/stylematch/pkg/helper"
)

// openBackend connects the configured store and seeds it when asked to.
func openBackend(ctx context.Context, cfg *helper.Config, log *logger.Logger) (store.Backend, error) {
	switch cfg.Store.Backend {
	case "neo4j":
		client, err := database.NewNeo4jClient(ctx, cfg.Neo4j, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
		}
		if cfg.Seed.Enabled {
			importer := database.NewCSVImporter(client, log)
			if err := importer.ImportAllData(ctx, cfg.Seed.Source, cfg.Seed.Clear); err != nil {
				_ = client.Close(ctx)
				return nil, fmt.Errorf("import failed: %w", err)
			}
			status, err := importer.GetImportStatus(ctx)
			if err != nil {
				log.Warn("failed to get import status", "error", err)
			} else {
				log.Info("import finished", "products", status["products"], "questions", status["questions"])
			}
		}
		return database.NewNeo4jStore(client), nil

	case "postgres", "sqlite":
		sqlCfg := database.SQLConfig{
			Dialect:      database.DialectPostgres,
			DSN:          cfg.Postgres.DSN,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
		}
		if cfg.Store.Backend == "sqlite" {
			sqlCfg = database.SQLConfig{Dialect: database.DialectSQLite, DSN: cfg.SQLite.Path}
		}
		s, err := database.OpenSQL(ctx, sqlCfg, log)
		if err != nil {
			return nil, err
		}
		if cfg.Seed.Enabled {
			seed, err := database.LoadSeedDir(cfg.Seed.Source)
			if err != nil {
				_ = s.Close(ctx)
				return nil, err
			}
			if err := s.Seed(ctx, seed); err != nil {
				_ = s.Close(ctx)
				return nil, fmt.Errorf("seed failed: %w", err)
			}
			log.Info("seed finished", "products", len(seed.Products), "questions", len(seed.Questions))
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// openLocker returns a Redis-backed refresh lock when redis.addr is set.
func openLocker(ctx context.Context, cfg helper.RedisConfig, log *logger.Logger) (store.Locker, func() error, error) {
	if cfg.Addr == "" {
		return store.NopLocker{}, func() error { return nil }, nil
	}
	locker, err := store.NewRedisLocker(ctx, store.RedisOptions{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		LockTTL:  cfg.LockTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("refresh lock enabled", "redis_addr", cfg.Addr)
	return locker, locker.Close, nil
}

func newEngine(cfg helper.RecommendConfig) (*recommend.Engine, error) {
	vocab := recommend.DefaultVocabulary()
	if cfg.VocabularyFile != "" {
		loaded, err := recommend.LoadVocabularyFile(cfg.VocabularyFile, vocab)
		if err != nil {
			return nil, err
		}
		vocab = loaded
	}
	return recommend.NewEngine(vocab, cfg.Weights), nil
}

func newService(cfg *helper.Config, backend store.Backend, locker store.Locker, engine *recommend.Engine, m *metrics.Metrics, log *logger.Logger) *services.RecommendationService {
	var catalog store.CatalogStore = backend
	if cfg.Store.Breaker.Enabled {
		catalog = store.NewBreakerCatalog(backend, store.BreakerSettings{
			Name:             "catalog",
			FailureThreshold: cfg.Store.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Store.Breaker.OpenTimeout,
			OnStateChange: func(name, from, to string) {
				log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
				m.SetBreakerState(name, to)
			},
		})
	}

	return services.NewRecommendationService(services.Deps{
		Answers:         backend,
		Questions:       backend,
		Catalog:         catalog,
		Recommendations: backend,
		Locker:          locker,
		Engine:          engine,
		Metrics:         m,
		Logger:          log,
	}, services.Config{
		TopK:         cfg.Recommend.TopK,
		MaxK:         cfg.Recommend.MaxK,
		StoreTimeout: cfg.Store.Timeout,
	})
}

func closeWithTimeout(log *logger.Logger, name string, d time.Duration, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		log.Error("error closing "+name, "error", err)
	}
}
