package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	ListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rod_jobs_listings_total",
			Help: "Listings processed, by outcome",
		},
		[]string{"term", "status"},
	)

	ScrollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rod_jobs_scrolls_total",
			Help: "Scrolls to the bottom of the result list",
		},
		[]string{"term"},
	)

	TermsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rod_jobs_terms_total",
			Help: "Search terms collected, by outcome",
		},
		[]string{"status"},
	)

	TermDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rod_jobs_term_duration_seconds",
			Help:    "Time spent collecting one search term",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"term"},
	)
)

func status(ok bool, success, failure string) string {
	if ok {
		return success
	}
	return failure
}

func RecordListing(term string, ok bool) {
	ListingsTotal.WithLabelValues(term, status(ok, "scraped", "failed")).Inc()
}

func RecordScroll(term string) {
	ScrollsTotal.WithLabelValues(term).Inc()
}

func RecordTerm(term string, ok bool, took time.Duration) {
	TermsTotal.WithLabelValues(status(ok, "ok", "failed")).Inc()
	TermDuration.WithLabelValues(term).Observe(took.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
