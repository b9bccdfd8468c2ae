package health

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/duelhub/internal/config"
)

// DefaultSyncInterval is how often probe results are pushed to gRPC watchers.
const DefaultSyncInterval = time.Second

// GRPCServer exposes a Checker through the standard grpc.health.v1 service.
// The empty service name carries the overall status; each probe is also
// published under its own name.
type GRPCServer struct {
	cfg      config.GRPCConfig
	checker  *Checker
	logger   *zap.Logger
	interval time.Duration

	server *grpc.Server
	health *grpchealth.Server

	mu       sync.Mutex
	listener net.Listener
	quit     chan struct{}
	stopped  bool
}

// NewGRPCServer creates a health server for checker.
//
// Precondition: checker and logger must be non-nil.
func NewGRPCServer(cfg config.GRPCConfig, checker *Checker, logger *zap.Logger) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		cfg:      cfg,
		checker:  checker,
		logger:   logger,
		interval: DefaultSyncInterval,
		server:   srv,
		health:   hs,
		quit:     make(chan struct{}),
	}
}

// Start listens on cfg.Addr() and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.cfg.Addr(), err)
	}
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		lis.Close()
		return nil
	}
	g.listener = lis
	g.mu.Unlock()

	g.Sync()
	go g.syncLoop()

	g.logger.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("serving grpc health: %w", err)
	}
	return nil
}

// Stop marks everything NOT_SERVING and shuts the server down.
func (g *GRPCServer) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	close(g.quit)
	g.mu.Unlock()

	g.health.Shutdown()
	g.server.GracefulStop()
	g.logger.Info("grpc health stopped")
}

// Addr returns the listening address, or empty string before Start.
func (g *GRPCServer) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Sync publishes the current probe results.
func (g *GRPCServer) Sync() {
	report := g.checker.Report()
	for name, ok := range report.Services {
		g.health.SetServingStatus(name, servingStatus(ok))
	}
	g.health.SetServingStatus("", servingStatus(report.Status == StatusOK))
}

func (g *GRPCServer) syncLoop() {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.quit:
			return
		case <-ticker.C:
			g.Sync()
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
