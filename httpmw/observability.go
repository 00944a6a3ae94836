package httpmw

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request ID attached by Observability's
// middleware, or "" if none is present (e.g. in a unit test calling a
// handler directly).
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ObservabilityConfig toggles the coordinator's per-request instrumentation.
type ObservabilityConfig struct {
	ServiceName string
	LogRequests bool
	Enabled     bool
}

// Observability records Prometheus counters/histograms and an OpenTelemetry
// span for every request it wraps, and assigns each request a UUID used
// both as the X-Request-Id response header and as the slog correlation
// field.
type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
	tracer trace.Tracer

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	registry  *prometheus.Registry
}

// NewObservability registers fresh metric collectors on a private registry
// (so repeated construction in tests never double-registers) and binds the
// given logger, falling back to slog.Default() when logger is nil.
func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ammrelay-coordinator"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Name:      "http_requests_total",
		Help:      "HTTP requests handled by the coordinator, by route/method/status.",
	}, []string{"route", "method", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coordinator",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds, by route/method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(requests, durations, prometheus.NewGoCollector())

	return &Observability{
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(cfg.ServiceName),
		requests:  requests,
		durations: durations,
		registry:  registry,
	}
}

// Middleware wraps next with request-id assignment, an OTEL span named for
// route, Prometheus recording, and an optional structured access log line.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !o.cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", requestID)
			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)

			ctx, span := o.tracer.Start(ctx, route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("request.id", requestID),
			))
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			elapsed := time.Since(start)

			span.SetAttributes(attribute.Int("http.status_code", rec.status))
			o.requests.WithLabelValues(route, r.Method, http.StatusText(rec.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

			if o.cfg.LogRequests {
				o.logger.Info("http request",
					"request_id", requestID,
					"route", route,
					"method", r.Method,
					"status", rec.status,
					"duration_ms", elapsed.Milliseconds(),
				)
			}
		})
	}
}

// MetricsHandler serves this Observability's private Prometheus registry,
// mounted by the server package at /metrics.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
