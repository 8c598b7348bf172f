// Package apisource adapts remote HTTP elevation APIs to the backend
// contract. One adapter type serves every API backend; a flavor selects the
// response parser.
package apisource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/openterrain/resolver/internal/breaker"
	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/limiter"
	"github.com/openterrain/resolver/internal/source"
)

const (
	// FlavorOpenTopo parses opentopodata-style responses.
	FlavorOpenTopo = "opentopodata"
	// FlavorGoogle parses Google Elevation API-style responses.
	FlavorGoogle = "google"
)

type Config struct {
	Name    string
	URL     string
	Flavor  string
	APIKey  string
	Timeout time.Duration
	Limits  limiter.Limits
}

type Source struct {
	cfg    Config
	client *http.Client
	brk    *breaker.Breaker
	rate   *limiter.RateLimiter
	logger *slog.Logger
}

var _ source.Adapter = (*Source)(nil)

func New(cfg Config, client *http.Client, brk *breaker.Breaker, rate *limiter.RateLimiter, logger *slog.Logger) (*Source, error) {
	if cfg.URL == "" {
		return nil, errors.New("api source needs a url")
	}
	switch cfg.Flavor {
	case FlavorOpenTopo, FlavorGoogle:
	default:
		return nil, fmt.Errorf("unknown api flavor %q", cfg.Flavor)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Source{cfg: cfg, client: client, brk: brk, rate: rate, logger: logger}, nil
}

func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) GetElevation(ctx context.Context, pt *model.QueryPoint) source.Outcome {
	available, err := s.brk.IsAvailable(ctx, s.cfg.Name)
	if err != nil {
		s.logger.Warn("breaker check failed", "backend", s.cfg.Name, "err", err)
	}
	if !available {
		return source.Failure(model.ErrCircuitOpen, false)
	}

	if err := s.rate.Acquire(ctx, s.cfg.Name, s.cfg.Limits); err != nil {
		var qe *model.QuotaExceededError
		if errors.As(err, &qe) {
			// daily ceiling spent: non-retryable, and no call was made
			return source.Failure(qe, false)
		}
		return source.Failure(&model.TransientBackendError{Backend: s.cfg.Name, Err: err}, true)
	}

	// Breaker state must be recorded even when the call context has
	// already expired, or a hanging upstream never trips the circuit.
	recordCtx := context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	body, status, err := s.call(callCtx, pt.Lat, pt.Lon)
	if err != nil {
		_ = s.brk.RecordFailure(recordCtx, s.cfg.Name)
		return source.Failure(&model.TransientBackendError{Backend: s.cfg.Name, Err: err}, true)
	}

	switch {
	case status >= 500:
		_ = s.brk.RecordFailure(recordCtx, s.cfg.Name)
		return source.Failure(&model.TransientBackendError{
			Backend: s.cfg.Name,
			Err:     fmt.Errorf("upstream status %d", status),
		}, true)
	case status >= 400:
		// authentication or malformed request: definitive
		_ = s.brk.RecordFailure(recordCtx, s.cfg.Name)
		return source.Failure(fmt.Errorf("backend %s: status %d", s.cfg.Name, status), false)
	}

	out := s.parse(body)
	switch out.Kind {
	case source.KindValue:
		_ = s.brk.RecordSuccess(recordCtx, s.cfg.Name)
	case source.KindFailure:
		_ = s.brk.RecordFailure(recordCtx, s.cfg.Name)
	case source.KindNoCoverage:
		// a well-formed empty answer is not a health signal
	}
	return out
}

// HealthCheck probes the API without consuming quota accounting beyond one
// request.
func (s *Source) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	_, status, err := s.call(ctx, 0, 0)
	return err == nil && status < 500
}

func (s *Source) call(ctx context.Context, lat, lon float64) ([]byte, int, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("locations", fmt.Sprintf("%.6f,%.6f", lat, lon))
	if s.cfg.APIKey != "" {
		q.Set("key", s.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (s *Source) parse(body []byte) source.Outcome {
	switch s.cfg.Flavor {
	case FlavorGoogle:
		return s.parseGoogle(body)
	default:
		return s.parseOpenTopo(body)
	}
}

// opentopodata: {"status":"OK","results":[{"elevation":12.3|null,...}]}
func (s *Source) parseOpenTopo(body []byte) source.Outcome {
	var resp struct {
		Status  string `json:"status"`
		Error   string `json:"error"`
		Results []struct {
			Elevation *float64 `json:"elevation"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return source.Failure(&model.TransientBackendError{
			Backend: s.cfg.Name,
			Err:     fmt.Errorf("decode response: %w", err),
		}, true)
	}
	if resp.Status != "OK" {
		return source.Failure(fmt.Errorf("backend %s: status %q: %s", s.cfg.Name, resp.Status, resp.Error), false)
	}
	if len(resp.Results) == 0 || resp.Results[0].Elevation == nil {
		return source.NoCoverage()
	}
	return source.Value(*resp.Results[0].Elevation, map[string]string{"api": s.cfg.Name})
}

// google: {"status":"OK"|"ZERO_RESULTS"|...,"results":[{"elevation":...}]}
func (s *Source) parseGoogle(body []byte) source.Outcome {
	var resp struct {
		Status  string `json:"status"`
		Results []struct {
			Elevation  float64 `json:"elevation"`
			Resolution float64 `json:"resolution"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return source.Failure(&model.TransientBackendError{
			Backend: s.cfg.Name,
			Err:     fmt.Errorf("decode response: %w", err),
		}, true)
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return source.NoCoverage()
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		// hard provider-side quota: definitive for this window
		return source.Failure(&model.QuotaExceededError{
			Backend: s.cfg.Name,
			Kind:    "daily_requests",
		}, false)
	case "REQUEST_DENIED", "INVALID_REQUEST":
		return source.Failure(fmt.Errorf("backend %s: status %q", s.cfg.Name, resp.Status), false)
	default:
		return source.Failure(&model.TransientBackendError{
			Backend: s.cfg.Name,
			Err:     fmt.Errorf("status %q", resp.Status),
		}, true)
	}
	if len(resp.Results) == 0 {
		return source.NoCoverage()
	}
	md := map[string]string{"api": s.cfg.Name}
	if resp.Results[0].Resolution > 0 {
		md["resolution_m"] = fmt.Sprintf("%.1f", resp.Results[0].Resolution)
	}
	return source.Value(resp.Results[0].Elevation, md)
}
