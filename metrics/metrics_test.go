package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveImport(t *testing.T) {
	r := NewRegistry()
	r.ObserveImport("ok", 10, 2, 8, 3, time.Second)
	r.ObserveImport("input", 5, 5, 0, 0, time.Millisecond)

	if got := testutil.ToFloat64(r.Imports.WithLabelValues("ok")); got != 1 {
		t.Errorf("imports{ok}: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RecordsReceived); got != 15 {
		t.Errorf("received: got %v, want 15", got)
	}
	if got := testutil.ToFloat64(r.RecordsInserted); got != 8 {
		t.Errorf("inserted: got %v, want 8", got)
	}
	if got := testutil.ToFloat64(r.CatalogSize); got != 8 {
		t.Errorf("catalog size: got %v, want 8", got)
	}
}

func TestObserveScrape(t *testing.T) {
	r := NewRegistry()
	r.ObserveScrape(true, "", false, time.Second)
	r.ObserveScrape(true, "transport", true, time.Second)

	if got := testutil.ToFloat64(r.Scrapes.WithLabelValues("ok", "none")); got != 1 {
		t.Errorf("scrapes{ok,none}: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.MockFallbacks); got != 1 {
		t.Errorf("mock fallbacks: got %v, want 1", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveImport("ok", 1, 0, 1, 0, time.Second)
	r.ObserveScrape(false, "status", false, time.Second)
	r.ObserveDelete()
}

func TestObserveDeleteShrinksCatalog(t *testing.T) {
	r := NewRegistry()
	r.ObserveImport("ok", 3, 0, 3, 0, time.Second)
	r.ObserveDelete()
	if got := testutil.ToFloat64(r.CatalogSize); got != 2 {
		t.Errorf("catalog size: got %v, want 2", got)
	}
	r.ObserveImport("ok", 5, 0, 5, 0, time.Second)
	if got := testutil.ToFloat64(r.CatalogSize); got != 5 {
		t.Errorf("catalog size after reimport: got %v, want 5", got)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveImport("ok", 1, 0, 1, 0, time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `auction_imports_total{result="ok"} 1`) {
		t.Errorf("metrics output missing import counter:\n%s", body)
	}
}
