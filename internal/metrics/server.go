package metrics

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manifest-network/trampoline/internal/metrics/collectors"
)

// CreateMetricsServer serves the index collectors on addr under /metrics.
// The listener is bound before returning so address errors surface here.
func CreateMetricsServer(db *sql.DB, addr string) (*http.Server, error) {
	registry := prometheus.NewRegistry()
	cs, err := collectors.DefaultRegistry.CreateCollectors(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create collectors: %w", err)
	}
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("Starting Prometheus metrics server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return server, nil
}
