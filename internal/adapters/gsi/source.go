// Package gsi fetches elevation tiles from the GSI DEM text tile service.
package gsi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sw1227/gradient-descent-map/internal/core/domain"
	"github.com/sw1227/gradient-descent-map/internal/pkg/metrics"
	"github.com/sw1227/gradient-descent-map/internal/pkg/telemetry"
)

// DefaultURLTemplate is the public GSI DEM text tile endpoint.
const DefaultURLTemplate = "https://cyberjapandata.gsi.go.jp/xyz/dem/{z}/{x}/{y}.txt"

const (
	defaultTimeout = 10 * time.Second
	retryBackoff   = 200 * time.Millisecond
)

// Config configures a Source.
type Config struct {
	URLTemplate string
	Sentinel    string
	Retries     int           // extra attempts after the first, transport errors and 5xx only
	Timeout     time.Duration // per attempt when ctx has no deadline
	UserAgent   string
}

// Source implements ports.TileSource over HTTP.
type Source struct {
	cfg    Config
	client *fasthttp.Client
	tracer trace.Tracer
}

// New creates a Source, filling unset fields with defaults.
func New(cfg Config) *Source {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.Sentinel == "" {
		cfg.Sentinel = DefaultSentinel
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gradient-descent-map"
	}
	return &Source{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                cfg.UserAgent,
			MaxConnsPerHost:     64,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		tracer: otel.Tracer("github.com/sw1227/gradient-descent-map/internal/adapters/gsi"),
	}
}

// URL expands the template for addr.
func (s *Source) URL(addr domain.TileAddress) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(addr.Zoom),
		"{x}", strconv.Itoa(addr.X),
		"{y}", strconv.Itoa(addr.Y),
	).Replace(s.cfg.URLTemplate)
}

// FetchTile downloads and decodes one tile. The zoom is checked before any
// network traffic.
func (s *Source) FetchTile(ctx context.Context, addr domain.TileAddress) (domain.TileGrid, error) {
	if !addr.ValidZoom() {
		metrics.TilesFetched.WithLabelValues("invalid_zoom").Inc()
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidZoom, addr.Zoom)
	}

	url := s.URL(addr)
	ctx, span := s.tracer.Start(ctx, telemetry.SpanTileFetch, trace.WithAttributes(
		attribute.Int(telemetry.AttrTileZoom, addr.Zoom),
		attribute.Int(telemetry.AttrTileX, addr.X),
		attribute.Int(telemetry.AttrTileY, addr.Y),
		attribute.String(telemetry.AttrTileURL, url),
	))
	defer span.End()

	start := time.Now()
	grid, err := s.fetch(ctx, url)
	metrics.TileFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var decErr *domain.DecodeError
		outcome := "fetch_error"
		if errors.As(err, &decErr) {
			outcome = "decode_error"
		}
		metrics.TilesFetched.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		slog.Debug("tile fetch failed", "z", addr.Zoom, "x", addr.X, "y", addr.Y, "error", err)
		return nil, err
	}

	metrics.TilesFetched.WithLabelValues("ok").Inc()
	slog.Debug("tile fetched", "z", addr.Zoom, "x", addr.X, "y", addr.Y,
		"duration_ms", time.Since(start).Milliseconds())
	return grid, nil
}

func (s *Source) fetch(ctx context.Context, url string) (domain.TileGrid, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &domain.FetchError{URL: url, Err: ctx.Err()}
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, &domain.FetchError{URL: url, Err: err}
		}

		body, status, err := s.get(ctx, url)
		if err != nil {
			lastErr = &domain.FetchError{URL: url, Err: err}
			continue
		}
		if status >= 500 {
			lastErr = &domain.FetchError{URL: url, Status: status}
			continue
		}
		if status != fasthttp.StatusOK {
			return nil, &domain.FetchError{URL: url, Status: status}
		}

		grid, err := Decode(body, s.cfg.Sentinel)
		if err != nil {
			return nil, err
		}
		if err := checkSize(grid, domain.TileSize); err != nil {
			return nil, err
		}
		return grid, nil
	}
	return nil, lastErr
}

func (s *Source) get(ctx context.Context, url string) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = s.client.DoDeadline(req, resp, deadline)
	} else {
		err = s.client.DoTimeout(req, resp, s.cfg.Timeout)
	}
	if err != nil {
		return nil, 0, err
	}

	// resp is recycled on return
	body := append([]byte(nil), resp.Body()...)
	return body, resp.StatusCode(), nil
}
