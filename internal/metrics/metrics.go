// Package metrics exposes Prometheus collectors for the refresh loops.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by ObserveFetch.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"
)

// Refresh groups the collectors shared by every refresh loop. A nil *Refresh
// is valid and records nothing.
type Refresh struct {
	fetches      *prometheus.CounterVec
	liveRaised   *prometheus.CounterVec
	entities     *prometheus.GaugeVec
	fetchLatency *prometheus.HistogramVec
}

// NewRefresh builds the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests use to avoid global state.
func NewRefresh(reg prometheus.Registerer) *Refresh {
	r := &Refresh{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_refresh_fetches_total",
			Help: "Fetches issued by refresh loops, by outcome.",
		}, []string{"loop", "outcome"}),
		liveRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomwatch_refresh_live_raised_total",
			Help: "Times an entity was flagged as having new data.",
		}, []string{"loop"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roomwatch_refresh_entities",
			Help: "Entities held in each loop's collection.",
		}, []string{"loop"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomwatch_refresh_fetch_seconds",
			Help:    "Latency of individual refresh fetches.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"loop"}),
	}
	if reg != nil {
		reg.MustRegister(r.fetches, r.liveRaised, r.entities, r.fetchLatency)
	}
	return r
}

// ObserveFetch records one completed fetch.
func (r *Refresh) ObserveFetch(loop, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(loop, outcome).Inc()
	if outcome != OutcomeDiscarded {
		r.fetchLatency.WithLabelValues(loop).Observe(took.Seconds())
	}
}

// LiveRaised records a liveness flag going up.
func (r *Refresh) LiveRaised(loop string) {
	if r == nil {
		return
	}
	r.liveRaised.WithLabelValues(loop).Inc()
}

// SetEntities records the collection size of a loop.
func (r *Refresh) SetEntities(loop string, n int) {
	if r == nil {
		return
	}
	r.entities.WithLabelValues(loop).Set(float64(n))
}

// Serve exposes /metrics for gatherer on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
