package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("GET", "/v1/elevation", 200, 0.001)
	ObserveBackendAttempt("qld_dem", "value", 0.002)
	SetCircuitOpen("opentopo", true)
	ObserveStateOp("incr", nil, 0.0001)
	ObserveStateOp("incr", errors.New("boom"), 0.0001)
	SetQuotaUsage("opentopo", "daily_requests", 42)
	IncResultCacheHit()
	IncResultCacheMiss()
	SetIndexStats(3, 1700000000)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{
		"app_build_info",
		"http_requests_total",
		"backend_attempts_total",
		"circuit_open",
		"state_store_op_total",
		"spatial_index_collections",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics payload missing %s; got:\n%s", name, body)
		}
	}
}

func TestExposeBuildInfo_EmptyVersionDefaultsToDev(t *testing.T) {
	ExposeBuildInfo("")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if !strings.Contains(rr.Body.String(), `app_build_info{version="dev"}`) {
		t.Fatalf("expected dev build info series")
	}
}
