package node

import (
	"context"
	"net/http"
	"time"

	klog "github.com/qchain-project/qchain/internal/log"
	"github.com/qchain-project/qchain/internal/metrics"
	"github.com/rs/zerolog"
)

// metricsServer serves the Prometheus scrape endpoint on its own listener,
// separate from the RPC server, so metrics access can be bound to a
// different interface (typically loopback-only) than the JSON-RPC API.
type metricsServer struct {
	srv    *http.Server
	logger zerolog.Logger
}

func newMetricsServer(addr string, registry *metrics.Registry) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	return &metricsServer{
		srv:    &http.Server{Addr: addr, Handler: mux},
		logger: klog.WithComponent("metrics"),
	}
}

func (m *metricsServer) run(ctx context.Context) {
	errCh := make(chan error, 1)
	go func() { errCh <- m.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			m.logger.Debug().Err(err).Msg("metrics server shutdown error")
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			m.logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}
}
