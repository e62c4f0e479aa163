package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gdmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
	}, []string{"method", "path"})

	// Tile source metrics
	TilesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "tiles",
		Name:      "fetched_total",
		Help:      "Remote tile fetches by outcome (ok, invalid_zoom, fetch_error, decode_error)",
	}, []string{"outcome"})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gdmap",
		Subsystem: "tiles",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of remote tile fetch and decode",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	TileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "tile_cache",
		Name:      "hits_total",
		Help:      "Tile cache hits",
	})

	TileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "tile_cache",
		Name:      "misses_total",
		Help:      "Tile cache misses",
	})

	TileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "tile_cache",
		Name:      "evictions_total",
		Help:      "Tiles evicted from a full cache",
	})

	// Descent metrics
	DescentSteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "descent",
		Name:      "steps_total",
		Help:      "Completed descent steps",
	})

	GradientFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "descent",
		Name:      "gradient_fallbacks_total",
		Help:      "Steps whose gradient estimation failed and fell back to zero",
	})

	Trajectories = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "descent",
		Name:      "trajectories_total",
		Help:      "Finished trajectories by status",
	}, []string{"status"})

	ActiveTrajectories = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gdmap",
		Subsystem: "descent",
		Name:      "active_trajectories",
		Help:      "Trajectories currently being driven",
	})

	ResultCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gdmap",
		Subsystem: "result_cache",
		Name:      "hits_total",
		Help:      "Descent requests answered from the result cache",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
