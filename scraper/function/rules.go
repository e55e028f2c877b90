// Package function is the remote scrape function: it fetches a source's
// listing page and turns it into raw auction records with an explicit,
// per-source extraction rule set.
package function

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"auction-importer/models"
)

// FieldRule extracts one RawRecord field from a listing container.
type FieldRule struct {
	// Selector is relative to the container; empty means the container itself.
	Selector string `json:"selector,omitempty"`
	// Attr reads an attribute instead of the element text.
	Attr string `json:"attr,omitempty"`
	// Pattern keeps the first submatch (or the whole match) of a regexp.
	Pattern string `json:"pattern,omitempty"`

	re *regexp.Regexp
}

// RuleSet describes how to read one source.
type RuleSet struct {
	Source          string               `json:"source"`
	URL             string               `json:"url"`
	Container       string               `json:"container"`
	EmptyMarker     string               `json:"emptyMarker,omitempty"`
	WaitForSelector string               `json:"waitForSelector,omitempty"`
	Fields          map[string]FieldRule `json:"fields"`
}

// Extraction is the result of applying a RuleSet to a page.
type Extraction struct {
	Cars        []models.RawRecord
	MatchStatus string
	Containers  int
}

// fullDateField is written into endTime as {"fullDate": ...}.
const fullDateField = "endTime.fullDate"

// urlFields are resolved against the page URL.
var urlFields = map[string]bool{"detailUrl": true, "imageUrl": true}

// Compile checks the rule set and prepares its patterns.
func (rs *RuleSet) Compile() error {
	if rs.Source == "" || rs.URL == "" || rs.Container == "" {
		return fmt.Errorf("function: rule set needs source, url and container")
	}
	if _, err := url.Parse(rs.URL); err != nil {
		return fmt.Errorf("function: %s: bad url: %w", rs.Source, err)
	}
	for _, name := range []string{"title", "detailUrl"} {
		if _, ok := rs.Fields[name]; !ok {
			return fmt.Errorf("function: %s: missing rule for %q", rs.Source, name)
		}
	}
	for name, f := range rs.Fields {
		if f.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("function: %s.%s: %w", rs.Source, name, err)
		}
		f.re = re
		rs.Fields[name] = f
	}
	return nil
}

// Extract applies the rules to html. Zero containers with the empty marker
// present is "no_matches"; zero containers without it, or containers where
// no title and detail link could be read, is "rule_mismatch".
func (rs *RuleSet) Extract(html string) (Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extraction{}, fmt.Errorf("function: parse html: %w", err)
	}
	base, _ := url.Parse(rs.URL)

	containers := doc.Find(rs.Container)
	ex := Extraction{Containers: containers.Length(), Cars: []models.RawRecord{}}
	if ex.Containers == 0 {
		ex.MatchStatus = models.MatchRuleMismatch
		if rs.EmptyMarker != "" && doc.Find(rs.EmptyMarker).Length() > 0 {
			ex.MatchStatus = models.MatchNoMatches
		}
		return ex, nil
	}

	containers.Each(func(_ int, sel *goquery.Selection) {
		values := make(map[string]any, len(rs.Fields))
		for name, f := range rs.Fields {
			v := f.read(sel)
			if v == "" {
				continue
			}
			if urlFields[name] {
				v = resolve(base, v)
			}
			if name == fullDateField {
				values["endTime"] = map[string]string{"fullDate": v}
				continue
			}
			values[name] = v
		}

		rec, err := toRawRecord(values)
		if err != nil || rec.Title.String() == "" || rec.DetailURL.String() == "" {
			return
		}
		ex.Cars = append(ex.Cars, rec)
	})

	ex.MatchStatus = models.MatchMatched
	if len(ex.Cars) == 0 {
		ex.MatchStatus = models.MatchRuleMismatch
	}
	return ex, nil
}

func (f FieldRule) read(container *goquery.Selection) string {
	sel := container
	if f.Selector != "" {
		sel = container.Find(f.Selector).First()
	}
	if sel.Length() == 0 {
		return ""
	}

	var v string
	if f.Attr != "" {
		v, _ = sel.Attr(f.Attr)
	} else {
		v = sel.Text()
	}
	v = strings.Join(strings.Fields(v), " ")

	if f.re != nil {
		m := f.re.FindStringSubmatch(v)
		switch {
		case m == nil:
			return ""
		case len(m) > 1:
			v = m[1]
		default:
			v = m[0]
		}
	}
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// toRawRecord goes through JSON so the loose field decoders apply exactly as
// they do for import files.
func toRawRecord(values map[string]any) (models.RawRecord, error) {
	var rec models.RawRecord
	b, err := json.Marshal(values)
	if err != nil {
		return rec, err
	}
	err = json.Unmarshal(b, &rec)
	return rec, err
}

// LoadRules reads a JSON array of rule sets keyed by source.
func LoadRules(r io.Reader) (map[string]*RuleSet, error) {
	var sets []*RuleSet
	if err := json.NewDecoder(r).Decode(&sets); err != nil {
		return nil, fmt.Errorf("function: decode rules: %w", err)
	}
	out := make(map[string]*RuleSet, len(sets))
	for _, rs := range sets {
		if err := rs.Compile(); err != nil {
			return nil, err
		}
		out[rs.Source] = rs
	}
	return out, nil
}

// LoadRulesFile is LoadRules for a path.
func LoadRulesFile(path string) (map[string]*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("function: open rules: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// DefaultRules are the built-in sources.
func DefaultRules() map[string]*RuleSet {
	sets := []*RuleSet{
		{
			Source:      "autobid",
			URL:         "https://autobid.de/en/search-results",
			Container:   "div.search-result-item, article.vehicle-card",
			EmptyMarker: ".no-results, .search-empty",
			Fields: map[string]FieldRule{
				"auctionId":        {Attr: "data-auction-id"},
				"title":            {Selector: ".vehicle-title, h3"},
				"make":             {Attr: "data-make"},
				"model":            {Attr: "data-model"},
				"price":            {Selector: ".current-bid, .price"},
				"mileageFormatted": {Selector: ".mileage"},
				"year":             {Selector: ".first-registration", Pattern: `(\d{4})`},
				"fuel":             {Selector: ".fuel-type"},
				"transmission":     {Selector: ".transmission"},
				"country":          {Selector: ".country"},
				"imageUrl":         {Selector: "img", Attr: "src"},
				"detailUrl":        {Selector: "a", Attr: "href"},
				fullDateField:      {Selector: ".auction-end", Pattern: `(\d{2}/\d{2}/\d{4} \d{2}:\d{2})`},
			},
		},
		{
			Source:          "ecarstrade",
			URL:             "https://ecarstrade.com/search",
			Container:       ".car-item",
			EmptyMarker:     ".empty-state",
			WaitForSelector: ".car-item, .empty-state",
			Fields: map[string]FieldRule{
				"auctionId":    {Attr: "data-id"},
				"title":        {Selector: ".car-title"},
				"price":        {Selector: ".car-price"},
				"mileage":      {Selector: ".car-mileage", Pattern: `([\d.,]+)`},
				"year":         {Selector: ".car-year"},
				"fuel":         {Selector: ".car-fuel"},
				"transmission": {Selector: ".car-gearbox"},
				"location":     {Selector: ".car-location"},
				"imageUrl":     {Selector: "img", Attr: "data-src"},
				"detailUrl":    {Selector: "a.car-link", Attr: "href"},
				"endTime":      {Selector: "time", Attr: "datetime"},
			},
		},
	}
	out := make(map[string]*RuleSet, len(sets))
	for _, rs := range sets {
		if err := rs.Compile(); err != nil {
			panic(err)
		}
		out[rs.Source] = rs
	}
	return out
}
