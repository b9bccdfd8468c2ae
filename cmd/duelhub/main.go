// Package main runs the duelhub server: matchmaking over Socket.IO,
// WebSocket, and TCP lines, plus the optional card catalog.
package main

import (
	"context"
	"flag"
	"log"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duelhub/internal/api"
	"github.com/cory-johannsen/duelhub/internal/catalog"
	"github.com/cory-johannsen/duelhub/internal/config"
	"github.com/cory-johannsen/duelhub/internal/frontend/line"
	"github.com/cory-johannsen/duelhub/internal/frontend/socketio"
	"github.com/cory-johannsen/duelhub/internal/frontend/websocket"
	"github.com/cory-johannsen/duelhub/internal/game/dice"
	"github.com/cory-johannsen/duelhub/internal/game/matchmaking"
	"github.com/cory-johannsen/duelhub/internal/game/session"
	"github.com/cory-johannsen/duelhub/internal/health"
	"github.com/cory-johannsen/duelhub/internal/observability"
	"github.com/cory-johannsen/duelhub/internal/server"
	"github.com/cory-johannsen/duelhub/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting duelhub",
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Bool("line_enabled", cfg.Line.Enabled),
		zap.Bool("catalog_enabled", cfg.Catalog.Enabled),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger)
	checker := health.NewChecker()

	// Matchmaking core
	registry := session.NewRegistry(cfg.Matchmaking.OutboxSize)
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	matchmaker := matchmaking.NewService(registry, matchmaking.NewResolver(roller), cfg.Matchmaking.MailboxSize, logger)
	lifecycle.Add("matchmaking", matchmaker)
	checker.Register("matchmaking", matchmaker.Running)

	// Transports
	sio := socketio.NewServer(matchmaker, logger)
	lifecycle.Add("socketio", sio)
	ws := websocket.NewHandler(matchmaker, cfg.HTTP.AllowedOrigins, logger)
	lifecycle.Add("websocket", &server.FuncService{StopFn: ws.CloseAll})

	if cfg.Line.Enabled {
		acceptor := line.NewAcceptor(cfg.Line, line.NewHandler(matchmaker, logger), logger)
		lifecycle.Add("line", &server.FuncService{
			StartFn: acceptor.ListenAndServe,
			StopFn:  acceptor.Stop,
		})
		checker.Register("line", acceptor.IsRunning)
	}

	deps := api.Deps{
		SocketIO:       sio,
		WebSocket:      ws,
		Health:         checker,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxUploadBytes: cfg.Catalog.MaxUploadBytes,
		Logger:         logger,
	}

	// Card catalog
	if cfg.Catalog.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		images, uploadsDir, err := newImageStore(ctx, cfg.Catalog)
		if err != nil {
			logger.Fatal("initializing image store", zap.Error(err))
		}
		deps.Catalog = catalog.NewService(postgres.NewCatalogRepository(pool.DB()), images, logger)
		deps.UploadsDir = uploadsDir

		var dbHealthy atomic.Bool
		dbHealthy.Store(true)
		checker.Register("postgres", dbHealthy.Load)
		dbDone := make(chan struct{})
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-dbDone:
						return nil
					case <-ticker.C:
						err := pool.Health(ctx, 5*time.Second)
						if err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
						dbHealthy.Store(err == nil)
					}
				}
			},
			StopFn: func() {
				close(dbDone)
				pool.Close()
			},
		})
	}

	httpServer := api.NewServer(cfg.HTTP, api.NewRouter(deps), logger)
	lifecycle.Add("http", httpServer)

	if cfg.GRPC.Enabled {
		lifecycle.Add("grpc-health", health.NewGRPCServer(cfg.GRPC, checker, logger))
	}

	logger.Info("duelhub initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Strings("health_probes", checker.Names()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// newImageStore returns the configured store and, for disk, the directory
// the router serves under /uploads.
func newImageStore(ctx context.Context, cfg config.CatalogConfig) (catalog.ImageStore, string, error) {
	if cfg.ImageStore == "s3" {
		store, err := catalog.NewS3StoreFromEnv(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		return store, "", err
	}
	store, err := catalog.NewDiskStore(cfg.UploadsDir, cfg.BaseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Dir(), nil
}
