package telemetry

// Span and attribute names shared by instrumented packages.
const (
	SpanTileFetch = "tile.fetch"

	AttrTileZoom = "tile.z"
	AttrTileX    = "tile.x"
	AttrTileY    = "tile.y"
	AttrTileURL  = "http.url"
)

// SLI metric names reported to dashboards.
const (
	MetricTileFetchLatencyP95 = "tiles.fetch_latency.p95"
	MetricTileErrorRate       = "tiles.error_rate"
	MetricFallbackRate        = "descent.fallback_rate"
	MetricStepsPerSecond      = "descent.steps_per_second"
)
