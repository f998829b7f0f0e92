package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WatchHealth keeps the gRPC health status of the overall server and of
// DocumentService in line with store pings until ctx ends.
func WatchHealth(ctx context.Context, hs *health.Server, store Pinger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if err := store.Ping(pctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			if last != st {
				logger.Warn("health.store.unreachable", "error", err)
			}
		}
		if st != last {
			hs.SetServingStatus("", st)
			hs.SetServingStatus(DocumentServiceName, st)
			last = st
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
