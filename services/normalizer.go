package services

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"auction-importer/models"
	"auction-importer/utils"
)

// DefaultAuctionLength is used when a record's end time is missing or unreadable.
const DefaultAuctionLength = 7 * 24 * time.Hour

var (
	// priceCharsRegexp matches everything that cannot be part of a price.
	priceCharsRegexp = regexp.MustCompile(`[^\d.,]`)
	// leadingFloatRegexp captures the longest numeric prefix, "12.5" out of "12.5.00".
	leadingFloatRegexp = regexp.MustCompile(`^\d*\.?\d*`)
	// leadingIntRegexp captures a leading integer, "2019" out of "2019 (MY20)".
	leadingIntRegexp = regexp.MustCompile(`^\s*(\d+)`)
	// fullDateRegexp matches "DD/MM/YYYY HH:MM".
	fullDateRegexp = regexp.MustCompile(`^\s*(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2}):(\d{2})\s*$`)
)

// isoLayouts are tried in order for plain-string end times.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// NormalizerOptions overrides the Normalizer's collaborators. Zero values
// pick the defaults.
type NormalizerOptions struct {
	Policy   PricePolicy
	Now      func() time.Time
	Location *time.Location
	Rand     func() uint64
}

// Normalizer converts RawRecords into AuctionCars. It never fails: every
// unreadable field falls back to a default. Callers must have checked title
// and detail URL first.
type Normalizer struct {
	logger *utils.Logger
	policy PricePolicy
	now    func() time.Time
	loc    *time.Location
	rand   func() uint64
}

// NewNormalizer creates a Normalizer with the given logger and options.
func NewNormalizer(logger *utils.Logger, opts NormalizerOptions) *Normalizer {
	n := &Normalizer{
		logger: logger,
		policy: opts.Policy,
		now:    opts.Now,
		loc:    opts.Location,
		rand:   opts.Rand,
	}
	if n.policy == nil {
		n.policy = DefaultThousandsHeuristic
	}
	if n.now == nil {
		n.now = time.Now
	}
	if n.loc == nil {
		n.loc = time.Local
	}
	if n.rand == nil {
		n.rand = rand.Uint64
	}
	return n
}

// Policy returns the active price policy.
func (n *Normalizer) Policy() PricePolicy { return n.policy }

// Normalize converts one record.
func (n *Normalizer) Normalize(raw models.RawRecord) models.AuctionCar {
	car, _ := n.normalize(raw)
	return car
}

// NormalizeAll converts a batch and reports how many prices the policy rescaled.
func (n *Normalizer) NormalizeAll(raws []models.RawRecord) ([]models.AuctionCar, int) {
	out := make([]models.AuctionCar, 0, len(raws))
	scaled := 0
	for _, r := range raws {
		car, fired := n.normalize(r)
		if fired {
			scaled++
		}
		out = append(out, car)
	}
	return out, scaled
}

func (n *Normalizer) normalize(raw models.RawRecord) (models.AuctionCar, bool) {
	now := n.now()

	parsed := parsePrice(raw.Price)
	price, fired := n.policy.Apply(parsed)
	if fired {
		n.logger.Info("[normalizer] %s price policy rescaled %q: %.2f → %.2f",
			n.policy.Name(), raw.Title.String(), parsed, price)
	}

	location := raw.Country.String()
	if location == "" {
		location = raw.Location.String()
	}

	car := models.AuctionCar{
		ExternalID:   n.externalID(raw, now),
		Title:        raw.Title.String(),
		Make:         raw.Make.String(),
		Model:        raw.Model.String(),
		StartPrice:   price,
		Year:         parseYear(raw.Year, now),
		EndDate:      n.parseEndDate(raw.EndTime, now),
		ExternalURL:  raw.DetailURL.String(),
		Status:       models.StatusActive,
		Mileage:      mileage(raw),
		FuelType:     raw.Fuel.String(),
		Transmission: raw.Transmission.String(),
		Location:     location,
		ImageURL:     raw.ImageURL.String(),
	}
	return car, fired
}

// parsePrice returns 0 for a missing or unreadable price and never a negative.
func parsePrice(p models.Numeric) float64 {
	if !p.Present {
		return 0
	}
	var v float64
	if p.IsNumber {
		v = p.Number
	} else {
		cleaned := priceCharsRegexp.ReplaceAllString(p.Raw, "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		prefix := leadingFloatRegexp.FindString(cleaned)
		f, err := strconv.ParseFloat(strings.TrimSuffix(prefix, "."), 64)
		if err != nil {
			return 0
		}
		v = f
	}
	if v < 0 {
		return 0
	}
	return v
}

func parseYear(y models.Numeric, now time.Time) int {
	if y.Present {
		if y.IsNumber && y.Number > 0 {
			return int(y.Number)
		}
		if m := leadingIntRegexp.FindStringSubmatch(y.Raw); len(m) == 2 {
			if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
				return v
			}
		}
	}
	return now.Year()
}

func mileage(raw models.RawRecord) string {
	if s := raw.MileageFormatted.String(); s != "" {
		return s
	}
	return raw.Mileage.String()
}

func (n *Normalizer) parseEndDate(e models.EndTime, now time.Time) time.Time {
	fallback := now.Add(DefaultAuctionLength)
	switch {
	case !e.Present:
		return fallback
	case e.IsObject:
		if e.FullDate == "" {
			return fallback
		}
		t, err := parseFullDate(e.FullDate, n.loc)
		if err != nil {
			n.logger.Debug("[normalizer] unreadable fullDate %q: %v", e.FullDate, err)
			return fallback
		}
		return t
	default:
		t, err := parseISO(e.ISO, n.loc)
		if err != nil {
			n.logger.Debug("[normalizer] unreadable end time %q: %v", e.ISO, err)
			return fallback
		}
		return t
	}
}

// parseFullDate reads "DD/MM/YYYY HH:MM" field by field in loc.
func parseFullDate(s string, loc *time.Location) (time.Time, error) {
	m := fullDateRegexp.FindStringSubmatch(s)
	if len(m) != 6 {
		return time.Time{}, fmt.Errorf("fullDate %q: want DD/MM/YYYY HH:MM", s)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("fullDate %q: field out of range", s)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("fullDate %q: no such day", s)
	}
	return t, nil
}

func parseISO(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty end time")
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("end time %q: unrecognised format", s)
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// externalID keeps the source's auction ID, or synthesises
// "{unix-millis}-{9 base36 chars}".
func (n *Normalizer) externalID(raw models.RawRecord, now time.Time) string {
	if id := raw.AuctionID.String(); id != "" {
		return id
	}
	var b strings.Builder
	r := n.rand()
	for i := 0; i < 9; i++ {
		b.WriteByte(base36[r%36])
		r /= 36
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), b.String())
}
