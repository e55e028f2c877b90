package services

import (
	"fmt"
	"strings"
)

// PricePolicy post-processes a parsed start price. Apply reports whether it
// changed the value so callers can log and count it.
type PricePolicy interface {
	Name() string
	Apply(price float64) (float64, bool)
}

// ThousandsHeuristic reads implausibly small prices as thousands: "20"
// becomes 20000. Prices at or above Threshold are left alone.
type ThousandsHeuristic struct {
	Threshold float64
	Factor    float64
}

// DefaultThousandsHeuristic scales prices below 100 by 1000.
var DefaultThousandsHeuristic = ThousandsHeuristic{Threshold: 100, Factor: 1000}

func (h ThousandsHeuristic) Name() string { return "thousands" }

func (h ThousandsHeuristic) Apply(price float64) (float64, bool) {
	if price > 0 && price < h.Threshold {
		return price * h.Factor, true
	}
	return price, false
}

// NoScaling stores prices exactly as parsed.
type NoScaling struct{}

func (NoScaling) Name() string { return "none" }

func (NoScaling) Apply(price float64) (float64, bool) { return price, false }

// PricePolicyByName resolves the PRICE_POLICY setting.
func PricePolicyByName(name string) (PricePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "thousands":
		return DefaultThousandsHeuristic, nil
	case "none", "off":
		return NoScaling{}, nil
	default:
		return nil, fmt.Errorf("services: unknown price policy %q", name)
	}
}
