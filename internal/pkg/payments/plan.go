package payments

import (
	"math"
	"strings"

	"github.com/liquidsnips/liquidsnips/app/models"
)

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case models.PlanMonthly:
		return models.PlanMonthly
	case models.PlanYearly:
		return models.PlanYearly
	default:
		return ""
	}
}

// minorUnits converts a major-unit price (e.g. 29.00 USD) to provider minor
// units (2900 cents), rounding to the nearest cent.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// majorUnits converts a provider minor-unit total back to major units.
func majorUnits(total int64) float64 {
	return float64(total) / 100
}
