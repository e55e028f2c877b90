// Package api is the admin HTTP API: the public catalog, admin-only import
// and scrape triggers, and the visitor session endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"auction-importer/auth"
	"auction-importer/metrics"
	"auction-importer/scraper"
	"auction-importer/services"
	"auction-importer/session"
	"auction-importer/storage"
	"auction-importer/utils"
)

// Deps are the services behind the API. Metrics may be nil.
type Deps struct {
	Catalog     storage.Catalog
	Importer    *services.Importer
	Scrapes     *services.ScrapeService
	Insights    *services.InsightService
	Sessions    session.Store
	Auth        auth.Authenticator
	Metrics     *metrics.Registry
	CORSOrigin  string
	ServiceName string
	// SecureCookies marks the session cookie Secure; off for plain-HTTP dev.
	SecureCookies bool
}

type Server struct {
	logger *utils.Logger
	deps   Deps
}

func NewServer(logger *utils.Logger, deps Deps) *Server {
	if deps.CORSOrigin == "" {
		deps.CORSOrigin = "*"
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "auction-importer"
	}
	return &Server{logger: logger, deps: deps}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	mux.HandleFunc("GET /api/auctions", s.listAuctions)
	mux.HandleFunc("GET /api/auctions/stats", s.stats)
	mux.HandleFunc("GET /api/auctions/{id}", s.getAuction)

	mux.HandleFunc("POST /api/admin/imports", s.requireAdmin(s.createImport))
	mux.HandleFunc("POST /api/admin/scrapes/{source}", s.requireAdmin(s.runScrape))
	mux.HandleFunc("DELETE /api/admin/auctions/{id}", s.requireAdmin(s.deleteAuction))

	mux.HandleFunc("GET /api/session", s.getSession)
	mux.HandleFunc("POST /api/session/consent", s.setConsent)
	mux.HandleFunc("POST /api/session/logout", s.logout)

	return Chain(mux,
		Recover(s.logger),
		OTel(s.deps.ServiceName),
		Logger(s.logger),
		CORS(s.deps.CORSOrigin),
	)
}

func (s *Server) listAuctions(w http.ResponseWriter, r *http.Request) {
	q, err := storage.ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	res, err := s.deps.Catalog.List(r.Context(), q)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	cars, err := s.deps.Catalog.FetchAll(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Insights.Generate(cars))
}

func (s *Server) getAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	car, err := s.deps.Catalog.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (s *Server) deleteAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Catalog.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	s.deps.Metrics.ObserveDelete()
	u, _ := auth.UserFrom(r.Context())
	s.logger.Info("[api] auction %d deleted by %s", id, u.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Importer.ImportJSON(r.Context(), r.Body, r.ContentLength)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) runScrape(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := scraper.Options{
		UseRandomUserAgent: q.Get("random_ua") != "false",
		WaitForSelector:    q.Get("wait"),
		Debug:              q.Get("debug") == "true",
	}
	if v := q.Get("timeout"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid query", "timeout: "+err.Error())
			return
		}
		opts.Timeout = d
	}

	out, err := s.deps.Scrapes.Run(r.Context(), r.PathValue("source"), opts, q.Get("import") == "true")
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// parseTimeout accepts a Go duration ("30s") or plain milliseconds.
func parseTimeout(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
