// Command gridcored serves the tabular view engine over HTTP: dataset pages,
// session control state, CSV downloads, and async exports.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridcore/internal/adapters/exports"
	"gridcore/internal/blob"
	"gridcore/internal/engine"
	"gridcore/internal/feed"
	"gridcore/internal/seed"
	"gridcore/pkg/tabular"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gridcored:", err)
		os.Exit(1)
	}
}

func run() error {
	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger := engine.NewSlogLogger(slogger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := engine.OpenSnapshotStore()
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	catalog := engine.NewCatalog(store, logger)
	if err := catalog.Hydrate(ctx); err != nil {
		return err
	}
	if len(catalog.Slugs()) == 0 {
		for _, snap := range seed.All() {
			if err := catalog.Register(ctx, snap); err != nil {
				return fmt.Errorf("seed dataset %q: %w", snap.Slug, err)
			}
		}
		logger.Info("seeded built-in datasets", "count", len(seed.All()))
	}

	metrics := engine.NewPrometheusMetrics(nil)
	registry := engine.NewRegistry(catalog, logger, metrics)

	blobs, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	audit := exports.NewMemoryAuditLog()
	worker := exports.NewWorker(registry, blobs, audit, logger, metrics)
	worker.Start(ctx)
	defer worker.Stop()

	if ledger := feedFromEnv(catalog, logger); ledger != nil {
		ledger.Start(ctx)
		defer ledger.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", exports.NewHandler(catalog, registry, worker, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := os.Getenv("GRIDCORE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "blob", blobs.Driver())
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// feedFromEnv enables the demo invoice feed when GRIDCORE_FEED_INTERVAL is a
// positive duration. The feed appends synthetic invoices to the accounts
// dataset so live sessions see pages move under them.
func feedFromEnv(catalog *engine.Catalog, logger engine.Logger) *feed.Feed {
	raw := os.Getenv("GRIDCORE_FEED_INTERVAL")
	if raw == "" {
		return nil
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		logger.Warn("ignoring invalid GRIDCORE_FEED_INTERVAL", "value", raw)
		return nil
	}
	statuses := []string{"draft", "sent", "paid", "overdue"}
	customers := []string{"Acme Corp", "Globex", "Initech", "Umbrella", "Stark Industries"}
	gen := func(seq int, now time.Time) tabular.Record {
		return tabular.Record{
			Values: map[string]any{
				"invoice":  fmt.Sprintf("INV-%d", 2000+seq),
				"customer": customers[seq%len(customers)],
				"amount":   float64(50+seq*37%2000) + 0.25,
				"issued":   now.Format("2006-01-02"),
				"status":   statuses[seq%len(statuses)],
				"paid":     seq%len(statuses) == 2,
			},
		}
	}
	return feed.New(catalog, "accounts", interval, gen, logger)
}
