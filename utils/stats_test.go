package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RokasMazelis/carscrape/models"
)

func TestPriceValue(t *testing.T) {
	cases := []struct {
		price string
		want  float64
		ok    bool
	}{
		{"€28,950", 28950, true},
		{"€1,000,000", 1000000, true},
		{"9500", 9500, true},
		{"N/A", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := PriceValue(tc.price)
		assert.Equal(t, tc.ok, ok, tc.price)
		assert.Equal(t, tc.want, got, tc.price)
	}
}

func TestBuildHarvestStats(t *testing.T) {
	records := []models.AdRecord{
		{ID: "1", Price: "€10,000", Phone: models.Revealed("0831234567"),
			Attributes: map[string]string{"County": "Dublin"}},
		{ID: "2", Price: "€30,000", Phone: models.Hidden(),
			Attributes: map[string]string{"County": "Cork"}},
		{ID: "3", Price: "N/A", Phone: models.PhoneFailed(),
			Attributes: map[string]string{"County": "Dublin"}},
	}

	stats := BuildHarvestStats(records)

	assert.Equal(t, 3, stats.TotalAds)
	assert.Equal(t, 1, stats.Revealed)
	assert.Equal(t, 1, stats.Hidden)
	assert.Equal(t, 1, stats.Errored)

	assert.Equal(t, 2, stats.PricedAdsCount)
	assert.Equal(t, float64(10000), stats.MinimumPrice)
	assert.Equal(t, float64(30000), stats.MaximumPrice)
	assert.Equal(t, float64(20000), stats.AveragePrice)
	assert.Equal(t, "2", stats.MostExpensive.ID)

	assert.Equal(t, []CountyCount{{County: "Dublin", Count: 2}, {County: "Cork", Count: 1}}, stats.AdsPerCounty)
}

func TestBuildHarvestStats_Empty(t *testing.T) {
	stats := BuildHarvestStats(nil)
	assert.Equal(t, 0, stats.TotalAds)
	assert.Equal(t, float64(0), stats.AveragePrice)
}
