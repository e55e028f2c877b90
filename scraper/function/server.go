package function

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"auction-importer/models"
	"auction-importer/utils"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 120 * time.Second
)

// ServerConfig wires a Server.
type ServerConfig struct {
	Rules   map[string]*RuleSet
	Fetcher Fetcher
	// Browser, when set, serves requests that name a selector to wait for
	// and sources whose rules need one.
	Browser Fetcher
	Gate    *utils.FetchGate
}

// Server answers scrape requests at POST /{source}.
type Server struct {
	rules   map[string]*RuleSet
	fetcher Fetcher
	browser Fetcher
	gate    *utils.FetchGate
	logger  *utils.Logger
	now     func() time.Time
}

func NewServer(cfg ServerConfig, logger *utils.Logger) *Server {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewHTTPFetcher(nil)
	}
	if cfg.Gate == nil {
		cfg.Gate = utils.NewFetchGate(2, 0)
	}
	return &Server{
		rules:   cfg.Rules,
		fetcher: cfg.Fetcher,
		browser: cfg.Browser,
		gate:    cfg.Gate,
		logger:  logger,
		now:     time.Now,
	}
}

// Handler returns the function's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{source}", s.handleScrape)
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		sources := make([]string, 0, len(s.rules))
		for name := range s.rules {
			sources = append(sources, name)
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	})
	return mux
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")

	var req models.ScrapeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		s.fail(w, http.StatusBadRequest, models.ScrapeResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	rules, ok := s.rules[source]
	if !ok {
		s.fail(w, http.StatusNotFound, models.ScrapeResponse{Error: "unknown source " + source})
		return
	}

	res, status := s.Run(r.Context(), rules, req)
	if !res.Success {
		s.fail(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Run fetches and extracts one source. The returned status is the HTTP
// status the function should answer with.
func (s *Server) Run(ctx context.Context, rules *RuleSet, req models.ScrapeRequest) (models.ScrapeResponse, int) {
	timeout := time.Duration(req.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timeout = min(timeout, maxTimeout)

	waitFor := req.WaitForSelector
	if waitFor == "" {
		waitFor = rules.WaitForSelector
	}
	fetcher := s.fetcher
	if waitFor != "" && s.browser != nil {
		fetcher = s.browser
	}

	fr := FetchRequest{
		URL:             rules.URL,
		UserAgent:       UserAgent(req.UseRandomUserAgent),
		WaitForSelector: waitFor,
		Timeout:         timeout,
	}

	var page Page
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var ferr error
		page, ferr = fetcher.Fetch(ctx, fr)
		return ferr
	})
	if err != nil {
		s.logger.Warn("[function] %s: fetch failed: %v", rules.Source, err)
		res := models.ScrapeResponse{Error: err.Error(), Note: "fetching the source page failed"}
		var se *StatusError
		if errors.As(err, &se) {
			res.StatusCode = se.StatusCode
		}
		if req.Debug {
			res.HTML = page.HTML
		}
		return res, http.StatusBadGateway
	}

	ex, err := rules.Extract(page.HTML)
	if err != nil {
		return models.ScrapeResponse{Error: err.Error()}, http.StatusInternalServerError
	}

	seen := utils.NewKeySet()
	cars := make([]models.RawRecord, 0, len(ex.Cars))
	for _, c := range ex.Cars {
		if seen.Add(c.DetailURL.String()) {
			cars = append(cars, c)
		}
	}

	s.logger.Info("[function] %s: %d containers, %d cars (%d duplicates), match=%s",
		rules.Source, ex.Containers, len(cars), len(ex.Cars)-seen.Size(), ex.MatchStatus)

	res := models.ScrapeResponse{
		Success:     true,
		Cars:        cars,
		MatchStatus: ex.MatchStatus,
		Timestamp:   s.now().UTC().Format(time.RFC3339),
	}
	// Keep the page when it is needed for diagnosis.
	if req.Debug || len(cars) == 0 {
		res.HTML = page.HTML
	}
	return res, http.StatusOK
}

func (s *Server) fail(w http.ResponseWriter, status int, res models.ScrapeResponse) {
	res.Success = false
	res.Cars = nil
	res.Timestamp = s.now().UTC().Format(time.RFC3339)
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
