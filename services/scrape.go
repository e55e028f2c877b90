package services

import (
	"context"
	"errors"
	"fmt"

	"auction-importer/metrics"
	"auction-importer/models"
	"auction-importer/scraper"
	"auction-importer/utils"
)

// Scraper is the call the scrape service makes to the remote function.
type Scraper interface {
	Scrape(ctx context.Context, source string, opts scraper.Options) scraper.Result
}

// ScrapeOutcome is what one scrape run produced. Report is nil unless the
// cars were imported.
type ScrapeOutcome struct {
	Result scraper.Result       `json:"scrape"`
	Report *models.ImportReport `json:"import,omitempty"`
}

// ErrMockImport is returned when a scrape fell back to mock data and an
// import was requested without ImportMock.
var ErrMockImport = errors.New("scrape fell back to mock data; refusing to replace the catalog")

// ScrapeService runs a scrape, applies the mock fallback and optionally
// imports what came back.
type ScrapeService struct {
	logger   *utils.Logger
	scraper  Scraper
	importer *Importer
	fallback scraper.FallbackPolicy
	metrics  *metrics.Registry

	// ImportMock lets fallback mock cars replace the catalog. Demo setups only.
	ImportMock bool
}

func NewScrapeService(logger *utils.Logger, s Scraper, im *Importer, fallback scraper.FallbackPolicy, m *metrics.Registry) *ScrapeService {
	return &ScrapeService{logger: logger, scraper: s, importer: im, fallback: fallback, metrics: m}
}

// Run scrapes source. A failed scrape that the fallback policy does not
// cover is returned as an ImportError of kind transport or application.
// Mock cars are never imported unless ImportMock is set; the request fails
// with ErrMockImport and the stored catalog is left alone.
func (s *ScrapeService) Run(ctx context.Context, source string, opts scraper.Options, doImport bool) (ScrapeOutcome, error) {
	res := s.scraper.Scrape(ctx, source, opts)
	failedKind := res.Kind
	res = scraper.Fallback(res, s.fallback)
	s.metrics.ObserveScrape(res.Success, string(failedKind), res.Mock, res.Duration)

	out := ScrapeOutcome{Result: res}
	if !res.Success {
		kind := KindApplication
		if res.Kind.IsTransport() {
			kind = KindTransport
		}
		return out, &ImportError{Stage: "scrape", Kind: kind, Err: failureOf(res, source)}
	}
	if res.Mock {
		s.logger.Warn("[scrape] %s: using %d mock cars after %s failure: %s", source, len(res.Cars), failedKind, res.Error)
	}

	if !doImport || s.importer == nil {
		return out, nil
	}
	if res.Mock && !s.ImportMock {
		return out, &ImportError{Stage: "scrape", Kind: KindApplication, Err: fmt.Errorf("%w: %w", ErrMockImport, failureOf(res, source))}
	}
	report, err := s.importer.ImportRaw(ctx, res.Cars, source)
	out.Report = report
	return out, err
}

func failureOf(res scraper.Result, source string) *scraper.Failure {
	if res.Failure != nil {
		return res.Failure
	}
	return &scraper.Failure{Kind: res.Kind, Source: source, Detail: res.Error}
}
