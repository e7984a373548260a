package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/RokasMazelis/carscrape/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore upserts one row per harvested ad, keyed by URL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open postgres connection")
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "ping postgres")
	}

	store := &PostgresStore{db: db}
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer schemaCancel()
	if err := store.ensureSchema(schemaCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Append upserts a single record. Called once per harvested ad so the
// table always reflects all ads processed so far.
func (s *PostgresStore) Append(ctx context.Context, rec models.AdRecord) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return eris.Wrap(err, "marshal attributes")
	}

	var status string
	switch rec.Phone.Status {
	case models.PhoneRevealed:
		status = "revealed"
	case models.PhoneError:
		status = "error"
	default:
		status = "hidden"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ads (ad_id, url, phone, phone_status, title, price, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url) DO UPDATE
		SET
			ad_id = EXCLUDED.ad_id,
			phone = EXCLUDED.phone,
			phone_status = EXCLUDED.phone_status,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			attributes = EXCLUDED.attributes,
			updated_at = NOW()`,
		rec.ID,
		rec.URL,
		rec.Phone.String(),
		status,
		rec.Title,
		rec.Price,
		attrs,
	)
	if err != nil {
		return eris.Wrapf(err, "upsert ad %q", rec.URL)
	}
	return nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ads (
			id BIGSERIAL PRIMARY KEY,
			ad_id TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT 'Hidden',
			phone_status TEXT NOT NULL DEFAULT 'hidden',
			title TEXT NOT NULL DEFAULT '',
			price TEXT NOT NULL DEFAULT '',
			attributes JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ads_phone_status ON ads(phone_status);
	`)
	if err != nil {
		return eris.Wrap(err, "ensure schema")
	}
	return nil
}
