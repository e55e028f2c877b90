package scraper

import (
	"slices"
	"time"

	"auction-importer/models"
)

// DefaultFallbackKinds are the failures that switch to mock data.
var DefaultFallbackKinds = []FailureKind{KindTransport, KindStatus, KindNoRecords, KindRuleMismatch}

// FallbackPolicy decides when a failed scrape is replaced by MockCars.
type FallbackPolicy struct {
	Enabled bool
	Kinds   []FailureKind
}

// Applies reports whether res should be replaced.
func (p FallbackPolicy) Applies(res Result) bool {
	if !p.Enabled || res.Success {
		return false
	}
	kinds := p.Kinds
	if len(kinds) == 0 {
		kinds = DefaultFallbackKinds
	}
	return slices.Contains(kinds, res.Kind)
}

// Fallback returns res with MockCars substituted when the policy applies.
// The original failure stays on the result for diagnostics.
func Fallback(res Result, p FallbackPolicy) Result {
	if !p.Applies(res) {
		return res
	}
	res.Success = true
	res.Mock = true
	res.Cars = MockCars(time.Now())
	return res
}

// MockCars is a canned dataset in the shapes real sources send: string and
// numeric prices, fullDate objects, ISO strings and missing end times.
func MockCars(now time.Time) []models.RawRecord {
	iso := func(d time.Duration) models.EndTime {
		return models.EndTime{Present: true, ISO: now.Add(d).UTC().Format(time.RFC3339)}
	}
	full := func(d time.Duration) models.EndTime {
		return models.EndTime{Present: true, IsObject: true, FullDate: now.Add(d).Format("02/01/2006 15:04")}
	}
	return []models.RawRecord{
		{
			AuctionID: models.Str("mock-1001"), Title: "BMW 320d Touring M Sport", Make: "BMW", Model: "320d",
			Price: models.Str("€ 14.500"), MileageFormatted: "128.400 km", Fuel: "Diesel", Transmission: "Automatic",
			Country: "NL", ImageURL: "https://picsum.photos/seed/bmw320/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1001", Year: models.Num(2018), EndTime: full(26 * time.Hour),
		},
		{
			AuctionID: models.Str("mock-1002"), Title: "Audi A4 Avant 2.0 TDI", Make: "Audi", Model: "A4",
			Price: models.Num(11900), Mileage: models.Num(154000), Fuel: "Diesel", Transmission: "Manual",
			Location: "Düsseldorf", ImageURL: "https://picsum.photos/seed/audia4/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1002", Year: models.Str("2017"), EndTime: iso(50 * time.Hour),
		},
		{
			AuctionID: models.Str("mock-1003"), Title: "Volkswagen Golf 1.5 TSI", Make: "Volkswagen", Model: "Golf",
			Price: models.Num(9), MileageFormatted: "61.000 km", Fuel: "Petrol", Transmission: "Manual",
			Country: "BE", ImageURL: "https://picsum.photos/seed/golf/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1003", Year: models.Num(2020),
		},
		{
			AuctionID: models.Str("mock-1004"), Title: "Mercedes-Benz C 220 d", Make: "Mercedes-Benz", Model: "C 220",
			Price: models.Str("18,750"), Mileage: models.Str("98.200 km"), Fuel: "Diesel", Transmission: "Automatic",
			Country: "DE", ImageURL: "https://picsum.photos/seed/c220/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1004", Year: models.Num(2019), EndTime: full(74 * time.Hour),
		},
		{
			AuctionID: models.Str("mock-1005"), Title: "Toyota RAV4 Hybrid", Make: "Toyota", Model: "RAV4",
			Price: models.Num(24300), MileageFormatted: "45.900 km", Fuel: "Hybrid", Transmission: "Automatic",
			Location: "Rotterdam", ImageURL: "https://picsum.photos/seed/rav4/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1005", Year: models.Num(2021), EndTime: iso(8 * time.Hour),
		},
		{
			AuctionID: models.Str("mock-1006"), Title: "Peugeot 308 SW BlueHDi", Make: "Peugeot", Model: "308",
			Price: models.Str("6.2"), MileageFormatted: "172.300 km", Fuel: "Diesel", Transmission: "Manual",
			Country: "FR", ImageURL: "https://picsum.photos/seed/p308/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1006", Year: models.Str("2016"),
			EndTime: models.EndTime{Present: true, IsObject: true},
		},
		{
			AuctionID: models.Str("mock-1007"), Title: "Tesla Model 3 Long Range", Make: "Tesla", Model: "Model 3",
			Price: models.Num(27950), MileageFormatted: "39.800 km", Fuel: "Electric", Transmission: "Automatic",
			Country: "NL", ImageURL: "https://picsum.photos/seed/model3/640/480",
			DetailURL: "https://auctions.example.com/lots/mock-1007", Year: models.Num(2021), EndTime: full(98 * time.Hour),
		},
	}
}
