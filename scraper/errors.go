package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// FailureKind classifies a failed scrape.
type FailureKind string

const (
	KindTransport     FailureKind = "transport"
	KindStatus        FailureKind = "status"
	KindEmptyResponse FailureKind = "empty_response"
	KindNoRecords     FailureKind = "no_records"
	KindRuleMismatch  FailureKind = "rule_mismatch"
	KindApplication   FailureKind = "application"
)

// Message is the human-readable text shown for the kind.
func (k FailureKind) Message() string {
	switch k {
	case KindTransport:
		return "Network error: the scrape function could not be reached"
	case KindStatus:
		return "The scrape function answered with an error status"
	case KindEmptyResponse:
		return "The scrape function returned an empty response"
	case KindNoRecords:
		return "The scrape finished but found no cars"
	case KindRuleMismatch:
		return "The page layout did not match the extraction rules"
	case KindApplication:
		return "Scraper error: the scrape function reported a failure"
	default:
		return "Scrape failed"
	}
}

// IsTransport reports whether the kind means the function was never reached.
func (k FailureKind) IsTransport() bool { return k == KindTransport }

// Failure is the structured error carried by an unsuccessful Result.
type Failure struct {
	Kind       FailureKind
	Source     string
	StatusCode int
	Detail     string
	Err        error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Kind.Message())
	if f.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", f.StatusCode)
	}
	if f.Detail != "" {
		b.WriteString(": ")
		b.WriteString(f.Detail)
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// transportPatterns are message fragments that identify a network failure
// when the error carries no usable type.
var transportPatterns = []string{
	"failed to fetch",
	"network",
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"timed out",
	"deadline exceeded",
	"unreachable",
	"eof",
	"tls handshake",
	"dial tcp",
}

// ClassifyError decides whether err is a transport failure or an
// application failure. Typed network errors are checked first; the message
// is matched against known network phrases as a last resort.
func ClassifyError(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransport
	}
	if IsTransportMessage(err.Error()) {
		return KindTransport
	}
	return KindApplication
}

// IsTransportMessage matches msg against the known network phrases.
func IsTransportMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range transportPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
