package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TestMetricsUseRoutePattern verifies requests are counted under the chi
// route pattern rather than the raw path.
func TestMetricsUseRoutePattern(t *testing.T) {
	h := NewMux(&mockService{})
	do(t, h, http.MethodPost, "/v1/classify", `{"text":"x"}`)
	do(t, h, http.MethodGet, "/no/such/route", "")

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mrr.Body.Bytes()
	if !bytes.Contains(body, []byte(`inferd_http_requests_total{method="POST",path="/v1/classify",status="200"}`)) {
		t.Fatalf("classify counter missing")
	}
	if !bytes.Contains(body, []byte(`path="unmatched"`)) {
		t.Fatalf("unmatched label missing")
	}
	if !bytes.Contains(body, []byte("inferd_http_inflight_requests")) {
		t.Fatalf("inflight gauge missing")
	}
}

func TestMetricsMiddlewareRecordsStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status=%d", rr.Code)
	}
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !bytes.Contains(mrr.Body.Bytes(), []byte(`status="418"`)) {
		t.Fatalf("418 not recorded")
	}
}
