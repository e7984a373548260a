package utils

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/RokasMazelis/carscrape/models"
)

type CountyCount struct {
	County string
	Count  int
}

type HarvestStats struct {
	TotalAds int
	Revealed int
	Hidden   int
	Errored  int

	AveragePrice   float64
	MinimumPrice   float64
	MaximumPrice   float64
	MostExpensive  models.AdRecord
	AdsPerCounty   []CountyCount
	PricedAdsCount int
}

var priceDigitsRe = regexp.MustCompile(`[\d,]+`)

// PriceValue parses a display price like "€15,500" into a number.
func PriceValue(price string) (float64, bool) {
	m := priceDigitsRe.FindString(price)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// BuildHarvestStats summarizes a finished run.
func BuildHarvestStats(records []models.AdRecord) HarvestStats {
	stats := HarvestStats{TotalAds: len(records)}
	countyCounts := make(map[string]int)

	var totalPrice float64
	first := true

	for _, rec := range records {
		switch rec.Phone.Status {
		case models.PhoneRevealed:
			stats.Revealed++
		case models.PhoneError:
			stats.Errored++
		default:
			stats.Hidden++
		}

		if county := strings.TrimSpace(rec.Attributes["County"]); county != "" {
			countyCounts[county]++
		}

		price, ok := PriceValue(rec.Price)
		if !ok {
			continue
		}
		stats.PricedAdsCount++
		totalPrice += price
		if first {
			stats.MinimumPrice = price
			stats.MaximumPrice = price
			stats.MostExpensive = rec
			first = false
			continue
		}
		if price < stats.MinimumPrice {
			stats.MinimumPrice = price
		}
		if price > stats.MaximumPrice {
			stats.MaximumPrice = price
			stats.MostExpensive = rec
		}
	}

	if stats.PricedAdsCount > 0 {
		stats.AveragePrice = totalPrice / float64(stats.PricedAdsCount)
	}

	perCounty := make([]CountyCount, 0, len(countyCounts))
	for county, count := range countyCounts {
		perCounty = append(perCounty, CountyCount{County: county, Count: count})
	}
	sort.Slice(perCounty, func(i, j int) bool {
		if perCounty[i].Count == perCounty[j].Count {
			return perCounty[i].County < perCounty[j].County
		}
		return perCounty[i].Count > perCounty[j].Count
	})
	stats.AdsPerCounty = perCounty

	return stats
}
