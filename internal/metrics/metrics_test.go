package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HyphaGroup/parker/internal/producer"
	"github.com/HyphaGroup/parker/internal/search"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/mcp", "/mcp"},
		{"/mcp/session/abc", "/mcp"},
		{"/favicon.ico", "other"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestProducerObserver_StateGauge(t *testing.T) {
	var o ProducerObserver
	o.StateChanged(producer.StateFilling, producer.StatePaused)

	if got := testutil.ToFloat64(ProducerState.WithLabelValues(string(producer.StatePaused))); got != 1 {
		t.Errorf("paused gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ProducerState.WithLabelValues(string(producer.StateFilling))); got != 0 {
		t.Errorf("filling gauge = %v, want 0", got)
	}
}

func TestProducerObserver_Delivered(t *testing.T) {
	var o ProducerObserver
	kind := string(producer.ResponseFinalBatch)
	before := testutil.ToFloat64(TriplesDelivered.WithLabelValues(kind))

	o.Admitted(search.Triple{X: 121, Y: 24, Z: 48}, 3)
	o.Delivered(producer.ResponseFinalBatch, 3, search.Cursor{})

	if got := testutil.ToFloat64(TriplesDelivered.WithLabelValues(kind)) - before; got != 3 {
		t.Errorf("delivered delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(BufferOccupancy); got != 0 {
		t.Errorf("occupancy = %v, want 0", got)
	}
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/health", "418"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/health", "418")) - before; got != 1 {
		t.Errorf("requests delta = %v, want 1", got)
	}
}

func TestHandler_Exposes(t *testing.T) {
	RecordSolution()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "parker_solutions_found_total") {
		t.Error("metrics output missing parker_solutions_found_total")
	}
}
