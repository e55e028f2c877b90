package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-importer/models"
	"auction-importer/utils"
)

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{BaseURL: baseURL, APIKey: "anon-key", FunctionPath: "/functions/v1"},
		utils.NewLoggerTo(io.Discard, utils.LevelDebug))
}

func TestScrapeSuccess(t *testing.T) {
	var gotReq models.ScrapeRequest
	var gotPath, gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = io.WriteString(w, `{"success":true,"cars":[{"title":"BMW","detailUrl":"https://x/1","price":"12.500"}],"html":"<html/>","matchStatus":"matched","timestamp":"2025-03-10T10:00:00Z"}`)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Scrape(context.Background(), "autobid", Options{UseRandomUserAgent: true, Timeout: 5 * time.Second})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Cars) != 1 || res.Cars[0].Title.String() != "BMW" {
		t.Errorf("cars: got %+v", res.Cars)
	}
	if res.HTML != "<html/>" || res.MatchStatus != models.MatchMatched {
		t.Errorf("html/match: got %q %q", res.HTML, res.MatchStatus)
	}
	if gotPath != "/functions/v1/autobid" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer anon-key" || gotKey != "anon-key" {
		t.Errorf("headers: got %q %q", gotAuth, gotKey)
	}
	if !gotReq.UseRandomUserAgent || gotReq.Timeout != 5000 {
		t.Errorf("request body: got %+v", gotReq)
	}
}

func TestScrapeFailureTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind FailureKind
	}{
		{"non-2xx", http.StatusInternalServerError, `{"success":false,"error":"boom"}`, KindStatus},
		{"empty body", http.StatusOK, "  ", KindEmptyResponse},
		{"zero cars", http.StatusOK, `{"success":true,"cars":[],"matchStatus":"no_matches"}`, KindNoRecords},
		{"rule mismatch", http.StatusOK, `{"success":true,"cars":[],"matchStatus":"rule_mismatch"}`, KindRuleMismatch},
		{"failure payload", http.StatusOK, `{"success":false,"error":"target returned captcha","statusCode":403}`, KindApplication},
		{"garbage", http.StatusOK, `<html>`, KindApplication},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, tt.body)
		}))
		res := newTestClient(srv.URL).Scrape(context.Background(), "src", Options{})
		srv.Close()

		if res.Success {
			t.Errorf("%s: expected failure", tt.name)
			continue
		}
		if res.Kind != tt.wantKind {
			t.Errorf("%s: kind got %q, want %q", tt.name, res.Kind, tt.wantKind)
		}
		if !strings.HasPrefix(res.Error, tt.wantKind.Message()) {
			t.Errorf("%s: error %q should start with %q", tt.name, res.Error, tt.wantKind.Message())
		}
	}
}

func TestFailureMessagesDistinct(t *testing.T) {
	seen := map[string]FailureKind{}
	for _, k := range []FailureKind{KindTransport, KindStatus, KindEmptyResponse, KindNoRecords, KindRuleMismatch, KindApplication} {
		if prev, ok := seen[k.Message()]; ok {
			t.Errorf("%s and %s share a message", prev, k)
		}
		seen[k.Message()] = k
	}
}

func TestScrapeNetworkErrorIsTransport(t *testing.T) {
	// Grab a free port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	res := newTestClient("http://"+addr).Scrape(context.Background(), "src", Options{Timeout: 2 * time.Second})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Kind != KindTransport {
		t.Errorf("kind: got %q, want transport", res.Kind)
	}
	if !strings.Contains(res.Error, KindTransport.Message()) {
		t.Errorf("error %q lacks the transport message", res.Error)
	}
	if strings.Contains(res.Error, KindApplication.Message()) {
		t.Errorf("error %q carries the application message", res.Error)
	}
}

// roundTripFunc lets a test decide what the transport returns.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestScrapeNetworkPatternError(t *testing.T) {
	c := NewClient(ClientConfig{
		BaseURL: "https://backend.example",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("TypeError: Failed to fetch")
		})},
	}, utils.NewLoggerTo(io.Discard, utils.LevelInfo))

	res := c.Scrape(context.Background(), "src", Options{})
	if res.Success || res.Kind != KindTransport {
		t.Fatalf("got success=%v kind=%q, want transport failure", res.Success, res.Kind)
	}
	if !strings.Contains(res.Error, "Network error") {
		t.Errorf("error %q lacks network classification", res.Error)
	}
}

func TestScrapeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Scrape(context.Background(), "slow", Options{Timeout: 50 * time.Millisecond})
	if res.Success || res.Kind != KindTransport {
		t.Errorf("got success=%v kind=%q, want transport failure", res.Success, res.Kind)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{context.DeadlineExceeded, KindTransport},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransport},
		{errors.New("dial tcp 10.0.0.1:443: connect: connection refused"), KindTransport},
		{errors.New("NetworkError when attempting to fetch resource"), KindTransport},
		{errors.New("function crashed: undefined is not a function"), KindApplication},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) got %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFallback(t *testing.T) {
	failed := fail(&Failure{Kind: KindTransport}, "")
	policy := FallbackPolicy{Enabled: true}

	got := Fallback(failed, policy)
	if !got.Success || !got.Mock || len(got.Cars) < 6 {
		t.Fatalf("expected mock success, got success=%v mock=%v cars=%d", got.Success, got.Mock, len(got.Cars))
	}
	if got.Failure == nil || got.Kind != KindTransport {
		t.Errorf("original failure should be kept, got %+v", got.Failure)
	}

	if res := Fallback(failed, FallbackPolicy{}); res.Mock {
		t.Error("disabled policy must not substitute")
	}
	app := fail(&Failure{Kind: KindApplication}, "")
	if res := Fallback(app, policy); res.Mock {
		t.Error("application failures are not in the default fallback set")
	}
	if res := Fallback(app, FallbackPolicy{Enabled: true, Kinds: []FailureKind{KindApplication}}); !res.Mock {
		t.Error("configured kinds should be honoured")
	}
}

func TestMockCarsAreImportable(t *testing.T) {
	for i, r := range MockCars(time.Now()) {
		if r.Title.String() == "" || r.DetailURL.String() == "" {
			t.Errorf("mock car %d lacks title or detailUrl", i)
		}
	}
}
