package storage

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/RokasMazelis/carscrape/models"
)

// NDJSONStore appends one self-describing JSON object per record.
// Unlike the CSV store it carries every column a record has, so it is
// immune to the frozen-header truncation.
type NDJSONStore struct {
	path string
	mu   sync.Mutex
}

func NewNDJSONStore(path string) *NDJSONStore {
	return &NDJSONStore{path: path}
}

func (s *NDJSONStore) Append(_ context.Context, rec models.AdRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "open %s", s.path)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(NormalizeRecord(rec)); err != nil {
		return eris.Wrap(err, "encode record")
	}
	return nil
}
