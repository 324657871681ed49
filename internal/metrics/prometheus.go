package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PromCollector mirrors engine observations into Prometheus metrics.
type PromCollector struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bytes       *prometheus.CounterVec
	activeUsers prometheus.Gauge
}

// NewPromCollector registers the chatload metrics on reg.
func NewPromCollector(reg prometheus.Registerer) *PromCollector {
	factory := promauto.With(reg)

	return &PromCollector{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatload_requests_total",
			Help: "Requests issued by virtual users, by request name and result.",
		}, []string{"name", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatload_request_duration_seconds",
			Help:    "Request latency by request name.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"name"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatload_response_bytes_total",
			Help: "Response bytes received, by request name.",
		}, []string{"name"}),
		activeUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatload_active_users",
			Help: "Virtual users currently running.",
		}),
	}
}

// ObserveRequest implements Observer.
func (c *PromCollector) ObserveRequest(name string, duration time.Duration, success bool, bytes int64) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.requests.WithLabelValues(name, result).Inc()
	c.duration.WithLabelValues(name).Observe(duration.Seconds())
	c.bytes.WithLabelValues(name).Add(float64(bytes))
}

// ObserveActiveUsers implements Observer.
func (c *PromCollector) ObserveActiveUsers(count int) {
	c.activeUsers.Set(float64(count))
}

// Serve exposes /metrics from gatherer on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}
	return ServeListener(ctx, ln, gatherer, logger)
}

// ServeListener is Serve on an already bound listener. ln is closed on return.
func ServeListener(ctx context.Context, ln net.Listener, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

var _ Observer = (*PromCollector)(nil)
