// Package metrics exposes the importer's Prometheus counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	Imports          *prometheus.CounterVec
	RecordsReceived  prometheus.Counter
	RecordsSkipped   prometheus.Counter
	RecordsInserted  prometheus.Counter
	PriceScaled      prometheus.Counter
	ImportDuration   prometheus.Histogram
	Scrapes          *prometheus.CounterVec
	MockFallbacks    prometheus.Counter
	ScrapeDuration   prometheus.Histogram
	CatalogSize      prometheus.Gauge
	LastImportUnixTS prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	imports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_imports_total",
		Help: "Import runs by result (ok, input, transport, application, persistence).",
	}, []string{"result"})
	received := prometheus.NewCounter(prometheus.CounterOpts{Name: "auction_records_received_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "auction_records_skipped_total"})
	inserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "auction_records_inserted_total"})
	scaled := prometheus.NewCounter(prometheus.CounterOpts{Name: "auction_price_scaled_total"})
	importDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_import_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	scrapes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_scrapes_total",
		Help: "Scrape calls by result and failure kind.",
	}, []string{"result", "kind"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{Name: "auction_mock_fallback_total"})
	scrapeDur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_scrape_duration_seconds",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})
	catalog := prometheus.NewGauge(prometheus.GaugeOpts{Name: "auction_catalog_size"})
	lastImport := prometheus.NewGauge(prometheus.GaugeOpts{Name: "auction_last_import_timestamp_seconds"})

	r.MustRegister(imports, received, skipped, inserted, scaled, importDur,
		scrapes, fallbacks, scrapeDur, catalog, lastImport,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{
		reg:              r,
		Imports:          imports,
		RecordsReceived:  received,
		RecordsSkipped:   skipped,
		RecordsInserted:  inserted,
		PriceScaled:      scaled,
		ImportDuration:   importDur,
		Scrapes:          scrapes,
		MockFallbacks:    fallbacks,
		ScrapeDuration:   scrapeDur,
		CatalogSize:      catalog,
		LastImportUnixTS: lastImport,
	}
}

// ObserveImport records one finished import run. result is "ok" or the
// failure kind.
func (r *Registry) ObserveImport(result string, received, skipped, inserted, scaled int, d time.Duration) {
	if r == nil {
		return
	}
	r.Imports.WithLabelValues(result).Inc()
	r.RecordsReceived.Add(float64(received))
	r.RecordsSkipped.Add(float64(skipped))
	r.ImportDuration.Observe(d.Seconds())
	if result == "ok" {
		r.RecordsInserted.Add(float64(inserted))
		r.PriceScaled.Add(float64(scaled))
		r.CatalogSize.Set(float64(inserted))
		r.LastImportUnixTS.SetToCurrentTime()
	}
}

// ObserveDelete records one catalog row removed outside an import.
func (r *Registry) ObserveDelete() {
	if r == nil {
		return
	}
	r.CatalogSize.Dec()
}

// ObserveScrape records one call to the scrape function.
func (r *Registry) ObserveScrape(success bool, kind string, mock bool, d time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if !success {
		result = "failed"
	}
	if mock {
		result = "mock"
		r.MockFallbacks.Inc()
	}
	if kind == "" {
		kind = "none"
	}
	r.Scrapes.WithLabelValues(result, kind).Inc()
	r.ScrapeDuration.Observe(d.Seconds())
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
