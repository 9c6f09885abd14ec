package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dialHealth(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = h.Serve(lis) }()
	t.Cleanup(h.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_FollowsProbe(t *testing.T) {
	t.Parallel()

	var down atomic.Bool
	h := NewHealth(func(context.Context) error {
		if down.Load() {
			return errors.New("db down")
		}
		return nil
	}, zaptest.NewLogger(t), Options{})
	c := dialHealth(t, h)

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, c, ServiceName))

	h.Check(context.Background())
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, c, ServiceName))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, c, ""))

	down.Store(true)
	h.Check(context.Background())
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, c, ServiceName))
}

func TestHealth_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	var probes atomic.Int32
	h := NewHealth(func(context.Context) error {
		probes.Add(1)
		return nil
	}, zaptest.NewLogger(t), Options{Interval: 5 * time.Millisecond})
	c := dialHealth(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return probes.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, c, ServiceName))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, c, ServiceName))
}
