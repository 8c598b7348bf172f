// Package router validates HTTP requests and maps resolution outcomes to
// responses.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openterrain/resolver/internal/core/model"
	"github.com/openterrain/resolver/internal/core/observability"
	"github.com/openterrain/resolver/internal/resolver"
)

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type errorBody struct {
	Error            string   `json:"error"`
	AttemptedSources []string `json:"attempted_sources,omitempty"`
	Retryable        *bool    `json:"retryable,omitempty"`
}

// HandleElevation serves GET /v1/elevation?lat=..&lon=..[&source=..].
func HandleElevation(logger *slog.Logger, ops *resolver.Ops) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/v1/elevation", sw.code, time.Since(start).Seconds())
		}()

		lat, lon, err := parseLatLon(r)
		if err != nil {
			writeJSON(sw, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		preferred := strings.TrimSpace(r.URL.Query().Get("source"))

		res, err := ops.Resolve(r.Context(), lat, lon, preferred)
		if err != nil {
			writeResolveError(sw, logger, err)
			return
		}
		writeJSON(sw, http.StatusOK, res)
	}
}

// HandleBatch serves POST /v1/elevations with a JSON array of points.
func HandleBatch(logger *slog.Logger, ops *resolver.Ops, maxPoints, concurrency int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/v1/elevations", sw.code, time.Since(start).Seconds())
		}()

		var points []resolver.Point
		if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
			writeJSON(sw, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
			return
		}
		if len(points) == 0 {
			writeJSON(sw, http.StatusBadRequest, errorBody{Error: "no points supplied"})
			return
		}
		if maxPoints > 0 && len(points) > maxPoints {
			writeJSON(sw, http.StatusBadRequest, errorBody{
				Error: fmt.Sprintf("too many points: %d (max %d)", len(points), maxPoints),
			})
			return
		}

		out := ops.ResolveBatch(r.Context(), points, concurrency)
		writeJSON(sw, http.StatusOK, out)
	}
}

// HandleHealth serves GET /v1/health.
func HandleHealth(ops *resolver.Ops) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ops.Health(r.Context()))
	}
}

// HandleCircuitReset serves POST /admin/circuit-reset?backend=..
func HandleCircuitReset(logger *slog.Logger, ops *resolver.Ops) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.URL.Query().Get("backend"))
		if name == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing required parameter: backend"})
			return
		}
		if err := ops.ResetCircuit(r.Context(), name); err != nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
			return
		}
		logger.Info("circuit reset", "backend", name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "backend": name})
	}
}

func parseLatLon(r *http.Request) (float64, float64, error) {
	rawLat := strings.TrimSpace(r.URL.Query().Get("lat"))
	rawLon := strings.TrimSpace(r.URL.Query().Get("lon"))
	if rawLat == "" || rawLon == "" {
		return 0, 0, errors.New("missing required parameters: lat, lon")
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lat: %w", err)
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lon: %w", err)
	}
	return lat, lon, nil
}

// writeResolveError maps the two caller-visible failures. Everything the
// engine absorbed is already in the attempt trace; no internal stack traces
// leak here.
func writeResolveError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ce *model.CoordinateError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ce.Error()})
		return
	}
	var ex *model.AllSourcesExhaustedError
	if errors.As(err, &ex) {
		retryable := ex.Retryable
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:            "no elevation data available at this point",
			AttemptedSources: ex.Attempted,
			Retryable:        &retryable,
		})
		return
	}
	logger.Error("unexpected resolve error", "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
