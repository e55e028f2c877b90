package function

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"auction-importer/utils"
)

// defaultUserAgent is sent when random user agents are off.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var userAgents = []string{
	defaultUserAgent,
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
}

// UserAgent picks the outgoing user agent.
func UserAgent(random bool) string {
	if !random {
		return defaultUserAgent
	}
	return userAgents[rand.IntN(len(userAgents))]
}

// FetchRequest is one page fetch.
type FetchRequest struct {
	URL             string
	UserAgent       string
	WaitForSelector string
	Timeout         time.Duration
}

// Page is a fetched document.
type Page struct {
	HTML       string
	StatusCode int
}

// Fetcher loads a page's HTML.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// StatusError is returned when the target answered with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: target returned HTTP %d", e.URL, e.StatusCode)
}

// maxPageBytes caps a fetched page.
const maxPageBytes = 20 << 20

// HTTPFetcher fetches static HTML with a plain GET.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, fr FetchRequest) (Page, error) {
	if fr.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fr.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fr.URL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", fr.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9,de;q=0.8,nl;q=0.7")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: read body: %w", fr.URL, err)
	}
	page := Page{HTML: string(body), StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, &StatusError{URL: fr.URL, StatusCode: resp.StatusCode}
	}
	return page, nil
}

// BrowserFetcher renders pages in headless Chrome so client-side listings
// are present, and can wait for a selector before reading the DOM.
type BrowserFetcher struct {
	chromeBin string
	logger    *utils.Logger
}

func NewBrowserFetcher(chromeBin string, logger *utils.Logger) *BrowserFetcher {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	return &BrowserFetcher{chromeBin: chromeBin, logger: logger}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, fr FetchRequest) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(fr.UserAgent),
	)
	if f.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(f.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	bctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))
	defer cancel()

	if fr.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		bctx, cancelTimeout = context.WithTimeout(bctx, fr.Timeout)
		defer cancelTimeout()
	}

	actions := []chromedp.Action{chromedp.Navigate(fr.URL)}
	if fr.WaitForSelector != "" {
		actions = append(actions, chromedp.WaitReady(fr.WaitForSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	// Scroll to trigger lazy-loaded cards
	actions = append(actions,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(1500*time.Millisecond),
	)

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	f.logger.Debug("[function] browser fetch %s (wait for %q)", fr.URL, fr.WaitForSelector)
	if err := chromedp.Run(bctx, actions...); err != nil {
		return Page{}, fmt.Errorf("browser fetch %s: %w", fr.URL, err)
	}
	return Page{HTML: html, StatusCode: http.StatusOK}, nil
}

func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
