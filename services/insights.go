package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"auction-importer/models"
	"auction-importer/utils"
)

// endingSoonLimit caps the "ending soonest" list.
const endingSoonLimit = 5

type InsightService struct {
	logger *utils.Logger
	now    func() time.Time
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, now: time.Now}
}

// Generate computes catalog statistics. Auctions whose end date has passed
// count towards the total but not towards ActiveAuctions or EndingSoon.
func (s *InsightService) Generate(cars []models.AuctionCar) *models.InsightReport {
	report := &models.InsightReport{
		EndingSoon:      []*models.AuctionCar{},
		AuctionsByMake:  make(map[string]int),
		AuctionsByPlace: make(map[string]int),
	}

	if len(cars) == 0 {
		return report
	}

	now := s.now()
	report.TotalAuctions = len(cars)

	var priced []*models.AuctionCar
	var open []*models.AuctionCar

	for i := range cars {
		c := &cars[i]
		if c.StartPrice > 0 {
			priced = append(priced, c)
		}
		if c.Status == models.StatusActive && c.EndDate.After(now) {
			report.ActiveAuctions++
			open = append(open, c)
		}
		if c.Make != "" {
			report.AuctionsByMake[c.Make]++
		}
		if c.Location != "" {
			report.AuctionsByPlace[c.Location]++
		}
	}

	// Price stats (only cars with a price)
	if len(priced) > 0 {
		report.MinPrice = priced[0].StartPrice
		report.MaxPrice = priced[0].StartPrice
		report.MostExpensive = priced[0]
		var total float64
		for _, c := range priced {
			total += c.StartPrice
			if c.StartPrice < report.MinPrice {
				report.MinPrice = c.StartPrice
			}
			if c.StartPrice > report.MaxPrice {
				report.MaxPrice = c.StartPrice
				report.MostExpensive = c
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	sort.SliceStable(open, func(i, j int) bool {
		return open[i].EndDate.Before(open[j].EndDate)
	})
	if len(open) > endingSoonLimit {
		open = open[:endingSoonLimit]
	}
	report.EndingSoon = append(report.EndingSoon, open...)

	s.logger.Debug("[insights] %d auctions, %d active, %d priced", report.TotalAuctions, report.ActiveAuctions, len(priced))
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 AUCTION CATALOG INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total auctions  : \033[1m%d\033[0m\n", r.TotalAuctions)
	fmt.Fprintf(w, "  Still running   : \033[1m%d\033[0m\n", r.ActiveAuctions)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Start Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m€%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m€%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m€%.2f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Car\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Location : %s\n", r.MostExpensive.Location)
		fmt.Fprintf(w, "  Price    : \033[1;31m€%.2f\033[0m\n", r.MostExpensive.StartPrice)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Ending Soonest\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.EndingSoon) == 0 {
		fmt.Fprintf(w, "  No running auctions\n")
	} else {
		for i, c := range r.EndingSoon {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-36s \033[1;32m%s\033[0m\n",
				i+1, truncate(c.Title, 34), c.EndDate.Format("02/01 15:04"))
		}
	}
	fmt.Fprintln(w)

	printCounts(w, "Auctions by Make", r.AuctionsByMake, thin)
	printCounts(w, "Auctions by Location", r.AuctionsByPlace, thin)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printCounts(w io.Writer, heading string, counts map[string]int, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", heading)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n")
		return
	}
	type keyCount struct {
		key   string
		count int
	}
	var rows []keyCount
	for k, n := range counts {
		rows = append(rows, keyCount{k, n})
	}
	// Sort by count descending, then name
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, kc := range rows {
		bar := strings.Repeat("█", min(kc.count, 40))
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(kc.key, 28), bar, kc.count)
	}
	fmt.Fprintln(w)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
