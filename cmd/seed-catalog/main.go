// Package main loads bundled keyword content into the card catalog.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/catalog"
	"github.com/cory-johannsen/duelhub/internal/config"
	"github.com/cory-johannsen/duelhub/internal/observability"
	"github.com/cory-johannsen/duelhub/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	seedPath := flag.String("seed", "content/keywords.yaml", "path to the keyword seed file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging, "seed-catalog")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	seed, err := catalog.LoadSeed(*seedPath)
	if err != nil {
		logger.Fatal("loading seed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()

	created, err := catalog.ApplySeed(ctx, postgres.NewCatalogRepository(pool.DB()), seed, logger)
	if err != nil {
		logger.Fatal("seeding catalog", zap.Error(err), zap.Int("created", created))
	}
	logger.Info("catalog seeded",
		zap.Int("keywords_in_seed", len(seed.Keywords)),
		zap.Int("created", created),
		zap.Duration("elapsed", time.Since(start)),
	)
}
