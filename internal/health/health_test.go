package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/duelhub/internal/config"
)

func TestChecker_Report(t *testing.T) {
	c := NewChecker()
	assert.True(t, c.Healthy(), "no probes is healthy")

	var loop atomic.Bool
	loop.Store(true)
	c.Register("matchmaking", loop.Load)
	c.Register("catalog", func() bool { return true })

	r := c.Report()
	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, map[string]bool{"matchmaking": true, "catalog": true}, r.Services)
	assert.Equal(t, []string{"catalog", "matchmaking"}, c.Names())

	loop.Store(false)
	r = c.Report()
	assert.Equal(t, StatusUnavailable, r.Status)
	assert.False(t, r.Services["matchmaking"])
	assert.False(t, c.Healthy())
}

func TestGRPCServer_ServingFollowsProbe(t *testing.T) {
	var loop atomic.Bool
	loop.Store(true)
	checker := NewChecker()
	checker.Register("matchmaking", loop.Load)

	srv := NewGRPCServer(config.GRPCConfig{Enabled: true, Host: "127.0.0.1", Port: 0}, checker, zaptest.NewLogger(t))
	srv.interval = 10 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("matchmaking"))

	loop.Store(false)
	require.Eventually(t, func() bool {
		return check("") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	srv.Stop()
	srv.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("grpc health did not stop in time")
	}
}
