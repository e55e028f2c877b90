package models

import "time"

// ImportReport summarises one full-dataset replace.
type ImportReport struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Received    int       `json:"received"`
	Skipped     int       `json:"skipped"`
	Duplicates  int       `json:"duplicates"`
	Inserted    int       `json:"inserted"`
	PriceScaled int       `json:"price_scaled"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ImportCompleted is published after a successful replace.
type ImportCompleted struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finished_at"`
}

// InsightReport holds the computed statistics over the persisted catalog.
type InsightReport struct {
	TotalAuctions   int            `json:"total_auctions"`
	ActiveAuctions  int            `json:"active_auctions"`
	AveragePrice    float64        `json:"average_price"`
	MinPrice        float64        `json:"min_price"`
	MaxPrice        float64        `json:"max_price"`
	MostExpensive   *AuctionCar    `json:"most_expensive,omitempty"`
	EndingSoon      []*AuctionCar  `json:"ending_soon"`
	AuctionsByMake  map[string]int `json:"auctions_by_make"`
	AuctionsByPlace map[string]int `json:"auctions_by_location"`
}
