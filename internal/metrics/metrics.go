// Package metrics exposes the fabric's Prometheus counters and the small
// HTTP listener that serves them next to a health endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windmobile/windfabric/internal/log"
)

var (
	// APICalls counts outbound calls to external geo services.
	APICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "windfabric_api_calls_total",
		Help: "Calls to external enrichment APIs.",
	}, []string{"api"})

	// MeasuresInserted counts measures written per provider.
	MeasuresInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "windfabric_measures_inserted_total",
		Help: "Measures inserted into station streams.",
	}, []string{"provider"})

	// JobRuns counts scheduled executions by outcome.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "windfabric_job_runs_total",
		Help: "Scheduled job executions.",
	}, []string{"job", "status"})
)

// HealthCheck is a named readiness probe (Mongo ping, Redis ping).
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Serve runs the metrics/health listener until ctx is cancelled. A failed
// listener is logged, not fatal: observability must never take down
// ingestion.
func Serve(ctx context.Context, addr string, checks ...HealthCheck) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				http.Error(w, hc.Name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("metrics listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("metrics listener failed: %v", err)
	}
}
