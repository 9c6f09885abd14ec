// Package grpcserver serves the standard gRPC health service, driven by a
// readiness probe against the backing store.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the server-wide "".
const ServiceName = "pollbox"

const (
	defaultInterval = 10 * time.Second
	probeTimeout    = 2 * time.Second
)

// Options configure the health server.
type Options struct {
	Interval   time.Duration // probe period
	Reflection bool          // register server reflection (dev only)
}

// Health owns a grpc.Server exposing grpc.health.v1.Health.
type Health struct {
	srv      *grpc.Server
	hs       *health.Server
	probe    func(ctx context.Context) error
	interval time.Duration
	log      *zap.Logger
}

// NewHealth builds the server. Status starts NOT_SERVING until the first probe succeeds.
func NewHealth(probe func(ctx context.Context) error, log *zap.Logger, o Options) *Health {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if o.Reflection {
		reflection.Register(srv)
	}
	h := &Health{srv: srv, hs: hs, probe: probe, interval: o.Interval, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serve accepts connections on lis until Stop.
func (h *Health) Serve(lis net.Listener) error {
	return h.srv.Serve(lis)
}

// Run probes readiness until ctx is done, then marks everything NOT_SERVING.
func (h *Health) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// Check runs the probe once and publishes the result.
func (h *Health) Check(ctx context.Context) {
	if h.probe == nil {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := h.probe(pctx); err != nil {
		h.log.Warn("readiness probe failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Stop drains in-flight RPCs.
func (h *Health) Stop() {
	h.hs.Shutdown()
	h.srv.GracefulStop()
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
}

// Close stops the server immediately.
func (h *Health) Close() { h.srv.Stop() }
