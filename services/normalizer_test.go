package services

import (
	"io"
	"strings"
	"testing"
	"time"

	"auction-importer/models"
	"auction-importer/utils"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestNormalizer(policy PricePolicy) *Normalizer {
	return NewNormalizer(utils.NewLoggerTo(io.Discard, utils.LevelDebug), NormalizerOptions{
		Policy:   policy,
		Now:      func() time.Time { return fixedNow },
		Location: time.UTC,
		Rand:     func() uint64 { return 123456789 },
	})
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input models.Numeric
		want  float64
	}{
		{"absent", models.Numeric{}, 0},
		{"number", models.Num(15500), 15500},
		{"negative number", models.Num(-20), 0},
		{"euro thousands dot", models.Str("€ 12.500"), 12.5},
		{"comma decimal", models.Str("12,5"), 12.5},
		{"longest prefix", models.Str("1.234.567"), 1.234},
		{"digits only", models.Str("8900"), 8900},
		{"garbage", models.Str("on request"), 0},
		{"empty", models.Str(""), 0},
		{"trailing dot", models.Str("45."), 45},
	}
	for _, tt := range tests {
		got := parsePrice(tt.input)
		if got != tt.want {
			t.Errorf("%s: parsePrice(%+v) got %v, want %v", tt.name, tt.input, got, tt.want)
		}
	}
}

func TestThousandsHeuristicBoundary(t *testing.T) {
	n := newTestNormalizer(nil)
	tests := []struct {
		price float64
		want  float64
	}{
		{0, 0},
		{0.5, 500},
		{20, 20000},
		{99.99, 99990},
		{100, 100},
		{100.01, 100.01},
		{25000, 25000},
	}
	for _, tt := range tests {
		car := n.Normalize(models.RawRecord{Title: "x", DetailURL: "u", Price: models.Num(tt.price)})
		if diff := car.StartPrice - tt.want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("price %v: got %v, want %v", tt.price, car.StartPrice, tt.want)
		}
	}
}

func TestNoScalingPolicy(t *testing.T) {
	n := newTestNormalizer(NoScaling{})
	car := n.Normalize(models.RawRecord{Title: "x", DetailURL: "u", Price: models.Num(20)})
	if car.StartPrice != 20 {
		t.Errorf("got %v, want 20", car.StartPrice)
	}
}

func TestNormalizeAllCountsScaled(t *testing.T) {
	n := newTestNormalizer(nil)
	raws := []models.RawRecord{
		{Title: "a", DetailURL: "u1", Price: models.Num(12)},
		{Title: "b", DetailURL: "u2", Price: models.Num(12000)},
		{Title: "c", DetailURL: "u3", Price: models.Str("9,5")},
	}
	cars, scaled := n.NormalizeAll(raws)
	if len(cars) != 3 {
		t.Fatalf("got %d cars, want 3", len(cars))
	}
	if scaled != 2 {
		t.Errorf("scaled: got %d, want 2", scaled)
	}
}

func TestEndDateFallback(t *testing.T) {
	n := newTestNormalizer(nil)
	inputs := []models.EndTime{
		{},
		{Present: true, IsObject: true},
		{Present: true, IsObject: true, FullDate: "not a date"},
		{Present: true, IsObject: true, FullDate: "31/02/2025 10:00"},
		{Present: true, IsObject: true, FullDate: "12/13/2025 10:00"},
		{Present: true, ISO: "tomorrow"},
		{Present: true, ISO: "1741600000"},
	}
	want := fixedNow.Add(DefaultAuctionLength)
	for _, e := range inputs {
		car := n.Normalize(models.RawRecord{Title: "x", DetailURL: "u", EndTime: e})
		if !car.EndDate.Equal(want) {
			t.Errorf("EndTime %+v: got %v, want %v", e, car.EndDate, want)
		}
	}
}

func TestEndDateFallbackWithRealClock(t *testing.T) {
	n := NewNormalizer(utils.NewLoggerTo(io.Discard, utils.LevelInfo), NormalizerOptions{})
	before := time.Now()
	car := n.Normalize(models.RawRecord{Title: "x", DetailURL: "u"})
	after := time.Now()

	if car.EndDate.Before(before) || car.EndDate.After(after.Add(DefaultAuctionLength+time.Second)) {
		t.Errorf("fallback end date %v outside [%v, %v]", car.EndDate, before, after.Add(DefaultAuctionLength))
	}
}

func TestEndDateFullDate(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	n := NewNormalizer(utils.NewLoggerTo(io.Discard, utils.LevelInfo), NormalizerOptions{
		Now:      func() time.Time { return fixedNow },
		Location: loc,
	})
	car := n.Normalize(models.RawRecord{
		Title:     "x",
		DetailURL: "u",
		EndTime:   models.EndTime{Present: true, IsObject: true, FullDate: "20/03/2025 11:00"},
	})
	want := time.Date(2025, 3, 20, 11, 0, 0, 0, loc)
	if !car.EndDate.Equal(want) {
		t.Errorf("got %v, want %v", car.EndDate, want)
	}
}

func TestEndDateISO(t *testing.T) {
	n := newTestNormalizer(nil)
	tests := []struct {
		iso  string
		want time.Time
	}{
		{"2025-04-01T18:30:00Z", time.Date(2025, 4, 1, 18, 30, 0, 0, time.UTC)},
		{"2025-04-01T18:30:00.250+02:00", time.Date(2025, 4, 1, 16, 30, 0, 250e6, time.UTC)},
		{"2025-04-01 18:30:00", time.Date(2025, 4, 1, 18, 30, 0, 0, time.UTC)},
		{"2025-04-01", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		car := n.Normalize(models.RawRecord{Title: "x", DetailURL: "u", EndTime: models.EndTime{Present: true, ISO: tt.iso}})
		if !car.EndDate.Equal(tt.want) {
			t.Errorf("%q: got %v, want %v", tt.iso, car.EndDate, tt.want)
		}
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		input models.Numeric
		want  int
	}{
		{models.Num(2019), 2019},
		{models.Str("2018"), 2018},
		{models.Str("2017 (MY18)"), 2017},
		{models.Str("unknown"), fixedNow.Year()},
		{models.Num(0), fixedNow.Year()},
		{models.Numeric{}, fixedNow.Year()},
	}
	for _, tt := range tests {
		if got := parseYear(tt.input, fixedNow); got != tt.want {
			t.Errorf("parseYear(%+v) got %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeFieldMapping(t *testing.T) {
	n := newTestNormalizer(nil)
	car := n.Normalize(models.RawRecord{
		AuctionID:        models.Num(4711),
		Title:            "VW Golf",
		Make:             "Volkswagen",
		Model:            "Golf",
		Price:            models.Str("7.900"),
		Mileage:          models.Num(88000),
		MileageFormatted: "88.000 km",
		Fuel:             "Diesel",
		Transmission:     "Manual",
		Country:          "NL",
		Location:         "Utrecht",
		ImageURL:         "https://img/1.jpg",
		DetailURL:        "https://auctions/4711",
		Year:             models.Num(2016),
	})

	if car.ExternalID != "4711" {
		t.Errorf("ExternalID: got %q, want 4711", car.ExternalID)
	}
	if car.Status != models.StatusActive {
		t.Errorf("Status: got %q", car.Status)
	}
	if car.Mileage != "88.000 km" {
		t.Errorf("Mileage: got %q, want formatted value", car.Mileage)
	}
	if car.Location != "NL" {
		t.Errorf("Location: got %q, want country first", car.Location)
	}
	if car.ExternalURL != "https://auctions/4711" || car.FuelType != "Diesel" || car.ImageURL != "https://img/1.jpg" {
		t.Errorf("unexpected mapping: %+v", car)
	}
	// "7.900" parses as 7.9 and is rescaled.
	if diff := car.StartPrice - 7900; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("StartPrice: got %v, want 7900", car.StartPrice)
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	n := newTestNormalizer(nil)
	car := n.Normalize(models.RawRecord{Title: "x", DetailURL: "u", Mileage: models.Num(120000), Location: "Berlin"})

	if car.Mileage != "120000" {
		t.Errorf("Mileage: got %q, want raw mileage", car.Mileage)
	}
	if car.Location != "Berlin" {
		t.Errorf("Location: got %q, want Berlin", car.Location)
	}
	prefix := "1741597200000-"
	if !strings.HasPrefix(car.ExternalID, prefix) || len(car.ExternalID) != len(prefix)+9 {
		t.Errorf("ExternalID: got %q, want %s + 9 chars", car.ExternalID, prefix)
	}
}
