package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's counters. A nil *Metrics is valid and records
// nothing, so components don't have to care whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	syncRuns       prometheus.Counter
	syncErrors     prometheus.Counter
	rolesGranted   prometheus.Counter
	rolesRevoked   prometheus.Counter
	fetchFailures  prometheus.Counter
	cacheHits      prometheus.Counter
	contentUpdates prometheus.Counter
}

// New creates a metrics set on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oakbot",
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	return &Metrics{
		registry:       registry,
		syncRuns:       newCounter("sync_runs_total", "Completed scheduled sync passes."),
		syncErrors:     newCounter("sync_errors_total", "Per-identity failures during sync passes."),
		rolesGranted:   newCounter("roles_granted_total", "Roles granted by the pipeline."),
		rolesRevoked:   newCounter("roles_revoked_total", "Roles revoked by the cleanup path."),
		fetchFailures:  newCounter("nk_fetch_failures_total", "Upstream player fetches that failed."),
		cacheHits:      newCounter("nk_cache_hits_total", "Player lookups served from the snapshot cache."),
		contentUpdates: newCounter("content_limit_updates_total", "Content limit increases detected or applied."),
	}
}

func (m *Metrics) SyncRun() {
	if m != nil {
		m.syncRuns.Inc()
	}
}

func (m *Metrics) SyncError() {
	if m != nil {
		m.syncErrors.Inc()
	}
}

func (m *Metrics) RoleGranted() {
	if m != nil {
		m.rolesGranted.Inc()
	}
}

func (m *Metrics) RoleRevoked() {
	if m != nil {
		m.rolesRevoked.Inc()
	}
}

func (m *Metrics) FetchFailure() {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) ContentUpdate() {
	if m != nil {
		m.contentUpdates.Inc()
	}
}

// Serve exposes /metrics and /healthz on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) {
	if m == nil || addr == "" {
		return
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Metrics listener failed", "error", err)
	}
}
