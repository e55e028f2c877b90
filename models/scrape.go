package models

// Match statuses reported by the scrape function alongside its records.
const (
	MatchMatched      = "matched"
	MatchNoMatches    = "no_matches"
	MatchRuleMismatch = "rule_mismatch"
)

// ScrapeRequest is the body POSTed to the remote scrape function.
type ScrapeRequest struct {
	UseRandomUserAgent bool   `json:"useRandomUserAgent"`
	Timeout            int    `json:"timeout"`
	WaitForSelector    string `json:"waitForSelector,omitempty"`
	Debug              bool   `json:"debug"`
}

// ScrapeResponse is the remote scrape function's reply, success or failure.
type ScrapeResponse struct {
	Success     bool        `json:"success"`
	Cars        []RawRecord `json:"cars,omitempty"`
	HTML        string      `json:"html,omitempty"`
	Error       string      `json:"error,omitempty"`
	StatusCode  int         `json:"statusCode,omitempty"`
	Note        string      `json:"note,omitempty"`
	MatchStatus string      `json:"matchStatus,omitempty"`
	Timestamp   string      `json:"timestamp"`
}
