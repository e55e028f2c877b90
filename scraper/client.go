package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"auction-importer/models"
	"auction-importer/utils"
)

// DefaultTimeout bounds a scrape when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a function response is read.
const maxResponseBytes = 100 << 20

// Options are the per-call knobs sent to the scrape function.
type Options struct {
	Timeout            time.Duration
	UseRandomUserAgent bool
	WaitForSelector    string
	Debug              bool
}

// Result is the outcome of one scrape. Exactly one of Cars (Success) or
// Failure is meaningful; HTML may be present either way.
type Result struct {
	Success     bool               `json:"success"`
	Source      string             `json:"source"`
	Cars        []models.RawRecord `json:"cars,omitempty"`
	HTML        string             `json:"html,omitempty"`
	MatchStatus string             `json:"matchStatus,omitempty"`
	Error       string             `json:"error,omitempty"`
	Kind        FailureKind        `json:"kind,omitempty"`
	Failure     *Failure           `json:"-"`
	Mock        bool               `json:"mock,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Duration    time.Duration      `json:"duration"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	FunctionPath   string
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// Client invokes the remote scrape function. A call is never retried.
type Client struct {
	baseURL      string
	apiKey       string
	functionPath string
	http         *http.Client
	limiter      *rate.Limiter
	logger       *utils.Logger
	now          func() time.Time
}

func NewClient(cfg ClientConfig, logger *utils.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	path := "/" + strings.Trim(cfg.FunctionPath, "/")
	if path == "/" {
		path = ""
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		functionPath: path,
		http:         hc,
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger,
		now:          time.Now,
	}
}

// Scrape asks the function for source's listings. Every failure comes back
// as a Result with Success false; Scrape itself never returns an error.
func (c *Client) Scrape(ctx context.Context, source string, opts Options) Result {
	start := c.now()
	ctx, span := otel.Tracer("scraper").Start(ctx, "scraper.Scrape")
	defer span.End()
	span.SetAttributes(attribute.String("scrape.source", source))

	res := c.scrape(ctx, source, opts)
	res.Source = source
	res.Timestamp = c.now()
	res.Duration = res.Timestamp.Sub(start)

	if res.Success {
		span.SetAttributes(attribute.Int("scrape.cars", len(res.Cars)))
		c.logger.Info("[scraper] %s: %d cars in %v", source, len(res.Cars), res.Duration.Round(time.Millisecond))
	} else {
		span.RecordError(res.Failure)
		span.SetStatus(codes.Error, string(res.Kind))
		c.logger.Warn("[scraper] %s failed (%s): %s", source, res.Kind, res.Error)
	}
	return res
}

func (c *Client) scrape(ctx context.Context, source string, opts Options) Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(&Failure{Kind: KindTransport, Source: source, Detail: err.Error(), Err: err}, "")
	}

	body, err := json.Marshal(models.ScrapeRequest{
		UseRandomUserAgent: opts.UseRandomUserAgent,
		Timeout:            int(timeout / time.Millisecond),
		WaitForSelector:    opts.WaitForSelector,
		Debug:              opts.Debug,
	})
	if err != nil {
		return fail(&Failure{Kind: KindApplication, Source: source, Detail: err.Error(), Err: err}, "")
	}

	endpoint := c.baseURL + c.functionPath + "/" + url.PathEscape(source)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(&Failure{Kind: ClassifyError(err), Source: source, Detail: err.Error(), Err: err}, "")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	c.logger.Debug("[scraper] POST %s (timeout %v)", endpoint, timeout)
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(&Failure{Kind: ClassifyError(err), Source: source, Detail: err.Error(), Err: err}, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(&Failure{Kind: ClassifyError(err), Source: source, Detail: err.Error(), Err: err}, "")
	}

	var payload models.ScrapeResponse
	decodeErr := errors.New("empty body")
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, &payload)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := http.StatusText(resp.StatusCode)
		if decodeErr == nil && payload.Error != "" {
			detail = payload.Error
		}
		return fail(&Failure{Kind: KindStatus, Source: source, StatusCode: resp.StatusCode, Detail: detail}, payload.HTML)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fail(&Failure{Kind: KindEmptyResponse, Source: source}, "")
	}
	if decodeErr != nil {
		return fail(&Failure{Kind: KindApplication, Source: source, Detail: "unreadable response: " + decodeErr.Error(), Err: decodeErr}, "")
	}

	if !payload.Success {
		detail := payload.Error
		if payload.Note != "" {
			detail = strings.TrimSpace(detail + " (" + payload.Note + ")")
		}
		kind := KindApplication
		if payload.MatchStatus == models.MatchRuleMismatch {
			kind = KindRuleMismatch
		}
		return fail(&Failure{Kind: kind, Source: source, StatusCode: payload.StatusCode, Detail: detail}, payload.HTML)
	}

	if len(payload.Cars) == 0 {
		kind := KindNoRecords
		if payload.MatchStatus == models.MatchRuleMismatch {
			kind = KindRuleMismatch
		}
		res := fail(&Failure{Kind: kind, Source: source}, payload.HTML)
		res.MatchStatus = payload.MatchStatus
		return res
	}

	return Result{
		Success:     true,
		Cars:        payload.Cars,
		HTML:        payload.HTML,
		MatchStatus: payload.MatchStatus,
	}
}

func fail(f *Failure, html string) Result {
	return Result{
		Success: false,
		HTML:    html,
		Error:   f.Error(),
		Kind:    f.Kind,
		Failure: f,
	}
}

// String is a one-line summary for CLI output.
func (r Result) String() string {
	if r.Success {
		return fmt.Sprintf("%s: %d cars (mock=%v)", r.Source, len(r.Cars), r.Mock)
	}
	return fmt.Sprintf("%s: %s", r.Source, r.Error)
}
