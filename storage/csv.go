// Package storage persists harvested records: an append-only CSV with a
// stable column schema, a self-describing NDJSON companion, and an
// optional Postgres store.
package storage

import (
	"context"
	"encoding/csv"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/RokasMazelis/carscrape/models"
)

// standardFields is the stable column order: the core prefix followed
// by the canonical vehicle attributes.
var standardFields = []string{
	"id",
	"url",
	"phone",
	"title",
	"price",
	"year",
	"make",
	"model",
	"mileage",
	"fuel_type",
	"transmission",
	"engine_size",
	"body_type",
	"colour",
	"nct_expiry",
	"county",
	"seller_type",
	"doors",
	"seats",
	"horsepower",
	"engine_description",
	"trim",
}

// fieldMapping maps the site's visible attribute labels to canonical
// column names. Unmapped labels pass through with a normalized name.
var fieldMapping = map[string]string{
	"Make":         "make",
	"Model":        "model",
	"Year":         "year",
	"Mileage":      "mileage",
	"Fuel Type":    "fuel_type",
	"Transmission": "transmission",
	"Engine Size":  "engine_size",
	"Body Type":    "body_type",
	"Colour":       "colour",
	"Doors":        "doors",
	"Seats":        "seats",
	"NCT Expiry":   "nct_expiry",
	"County":       "county",
	"Seller Type":  "seller_type",
	"Power":        "horsepower",
	"Trim Level":   "trim",
}

// NormalizeRecord flattens a record into the persisted row shape:
// core fields, canonically-mapped attributes, then any remaining
// attributes under lowercased, separator-collapsed names.
func NormalizeRecord(rec models.AdRecord) map[string]string {
	row := map[string]string{
		"id":    rec.ID,
		"url":   rec.URL,
		"phone": rec.Phone.String(),
		"title": rec.Title,
		"price": rec.Price,
	}
	for label, value := range rec.Attributes {
		if canonical, ok := fieldMapping[label]; ok {
			row[canonical] = value
			continue
		}
		key := strings.ToLower(label)
		key = strings.ReplaceAll(key, " ", "_")
		key = strings.ReplaceAll(key, "/", "_")
		row[key] = value
	}
	return row
}

// Header computes the column list for a row set: standard fields that
// are present, in their fixed order, then ad-hoc columns sorted for
// determinism.
func Header(row map[string]string) []string {
	standard := map[string]bool{}
	var header []string
	for _, f := range standardFields {
		standard[f] = true
		if _, ok := row[f]; ok {
			header = append(header, f)
		}
	}
	var extra []string
	for k := range row {
		if !standard[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(header, extra...)
}

// CSVStore appends records to a tabular file, one flush per record.
//
// The header is computed from the first record written (or read back
// from a pre-existing file) and never rewritten: ad-hoc columns first
// seen in later records stay on the record object but are dropped from
// the file. Use the NDJSON store alongside when every column matters.
type CSVStore struct {
	path string

	mu     sync.Mutex
	header []string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Append writes one row, creating the file and header on first use.
// Rows are aligned to the frozen header; missing columns are empty.
func (s *CSVStore) Append(_ context.Context, rec models.AdRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := NormalizeRecord(rec)

	writeHeader := false
	if s.header == nil {
		existing, err := readHeader(s.path)
		if err != nil {
			return err
		}
		if existing != nil {
			s.header = existing
		} else {
			s.header = Header(row)
			writeHeader = true
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(s.header); err != nil {
			return eris.Wrap(err, "write csv header")
		}
	}

	vals := make([]string, len(s.header))
	for i, col := range s.header {
		vals[i] = row[col]
	}
	if err := w.Write(vals); err != nil {
		return eris.Wrap(err, "write csv row")
	}

	w.Flush()
	return eris.Wrap(w.Error(), "flush csv")
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		// Empty file behaves like a fresh one.
		return nil, nil
	}
	return header, nil
}
