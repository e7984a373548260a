package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RokasMazelis/carscrape/models"
)

func sampleRecord() models.AdRecord {
	return models.AdRecord{
		ID:    "39669123",
		URL:   "https://www.donedeal.ie/cars-for-sale/opel/39669123",
		Title: "Opel Grandland",
		Price: "€28,950",
		Phone: models.Revealed("0831234567"),
		Attributes: map[string]string{
			"Make": "Opel",
			"Year": "2022",
		},
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestNormalizeRecord(t *testing.T) {
	rec := sampleRecord()
	rec.Attributes["Road Tax/Year"] = "€210"

	row := NormalizeRecord(rec)

	assert.Equal(t, "39669123", row["id"])
	assert.Equal(t, "0831234567", row["phone"])
	assert.Equal(t, "Opel", row["make"])
	assert.Equal(t, "2022", row["year"])
	assert.Equal(t, "€210", row["road_tax_year"])
}

func TestHeader_Order(t *testing.T) {
	rec := sampleRecord()
	rec.Attributes["Zeta"] = "z"
	rec.Attributes["Alpha"] = "a"

	header := Header(NormalizeRecord(rec))

	// Core prefix, canonical columns in fixed order, ad-hoc sorted last.
	assert.Equal(t, []string{"id", "url", "phone", "title", "price", "year", "make", "alpha", "zeta"}, header)
}

func TestCSVStore_CreateThenAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ads.csv")
	store := NewCSVStore(path)

	require.NoError(t, store.Append(context.Background(), sampleRecord()))

	second := sampleRecord()
	second.ID = "39700001"
	second.URL = "https://www.donedeal.ie/cars-for-sale/ford/39700001"
	require.NoError(t, store.Append(context.Background(), second))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "url", "phone", "title", "price", "year", "make"}, rows[0])
	assert.Equal(t, "39669123", rows[1][0])
	assert.Equal(t, "39700001", rows[2][0])
}

// Columns first seen after the header is written stay on the record
// object but are absent from the file.
func TestCSVStore_FrozenHeaderDropsNewColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ads.csv")
	store := NewCSVStore(path)

	require.NoError(t, store.Append(context.Background(), sampleRecord()))

	late := sampleRecord()
	late.ID = "39700001"
	late.Attributes["Warranty Duration"] = "12 months"

	// Present on the in-memory record...
	assert.Equal(t, "12 months", NormalizeRecord(late)["warranty_duration"])

	require.NoError(t, store.Append(context.Background(), late))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.NotContains(t, rows[0], "warranty_duration")
	for _, row := range rows[1:] {
		assert.Len(t, row, len(rows[0]))
	}
}

// A fresh store instance appending to an existing file adopts its
// header instead of writing a second one.
func TestCSVStore_AppendToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ads.csv")

	require.NoError(t, NewCSVStore(path).Append(context.Background(), sampleRecord()))

	second := sampleRecord()
	second.ID = "39700001"
	require.NoError(t, NewCSVStore(path).Append(context.Background(), second))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.NotEqual(t, "id", rows[1][0])
	assert.NotEqual(t, "id", rows[2][0])
}

func TestNDJSONStore_CarriesEveryColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ads.ndjson")
	store := NewNDJSONStore(path)

	rec := sampleRecord()
	rec.Attributes["Warranty Duration"] = "12 months"
	require.NoError(t, store.Append(context.Background(), rec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"warranty_duration":"12 months"`)
}
