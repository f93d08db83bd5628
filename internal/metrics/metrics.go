package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FranksOps/rankr/internal/storage"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankr_queries_total",
			Help: "Total number of rank lookups by terminal status",
		},
		[]string{"status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rankr_query_duration_seconds",
			Help:    "Wall-clock duration of rank lookups, retries included",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	QueryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankr_query_attempts",
			Help:    "HTTP attempts needed per rank lookup",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rankr_rate_limit_retries_total",
			Help: "Total number of backoff sleeps after HTTP 429 responses",
		},
	)

	RetryDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankr_rate_limit_delay_seconds",
			Help:    "Backoff delays applied after HTTP 429 responses",
			Buckets: []float64{5, 10, 20, 40, 80},
		},
	)

	BatchProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rankr_batch_progress_ratio",
			Help: "Fraction of the current batch that has completed",
		},
	)
)

// RecordQuery updates the lookup metrics for a finished record.
func RecordQuery(r *storage.RankRecord) {
	if r == nil {
		return
	}
	status := string(r.Status)
	QueriesTotal.WithLabelValues(status).Inc()
	QueryDuration.WithLabelValues(status).Observe(r.Duration.Seconds())
	if r.Attempts > 0 {
		QueryAttempts.Observe(float64(r.Attempts))
	}
}

// RecordRetry counts one backoff sleep. Its signature matches the query
// client's retry hook.
func RecordRetry(_ int, delay time.Duration) {
	RetriesTotal.Inc()
	RetryDelay.Observe(delay.Seconds())
}

// SetProgress publishes completed/total as a ratio.
func SetProgress(completed, total int) {
	if total <= 0 {
		BatchProgress.Set(0)
		return
	}
	BatchProgress.Set(float64(completed) / float64(total))
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
