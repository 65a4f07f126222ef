// Package sqlite stores observations in a local SQLite file using the pure Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

var _ observation.Repository = (*Store)(nil)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `CREATE TABLE IF NOT EXISTS observations (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	photo_file_id       TEXT NOT NULL,
	media_kind          TEXT NOT NULL DEFAULT '',
	date_of_observation TEXT NOT NULL,
	latitude            REAL,
	longitude           REAL,
	address             TEXT,
	fullname            TEXT,
	submitted_at        TEXT NOT NULL
)`

// Wall-clock observation times carry no zone. Submission times are fixed-width
// UTC so that text ordering matches time ordering.
const (
	observedLayout  = "2006-01-02T15:04:05"
	submittedLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store is an observation.Repository backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	loc  *time.Location
}

// NewStore opens (or creates) the database at path and applies the schema.
// Observation times are read back as wall time in loc (nil means time.Local).
func NewStore(ctx context.Context, path string, loc *time.Location) (*Store, error) {
	if path == "" {
		path = "pollinator.db"
	}
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under fan-out.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create observations table: %w", err)
	}
	return &Store{db: db, path: path, loc: loc}, nil
}

// Insert writes one observation. Re-inserting the same id is a no-op so retries stay idempotent.
func (s *Store) Insert(ctx context.Context, o observation.Observation) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO observations
		(id, user_id, photo_file_id, media_kind, date_of_observation, latitude, longitude, address, fullname, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		o.ID, o.UserID, o.MediaRef, string(o.MediaKind),
		o.ObservedAt.Format(observedLayout),
		nullFloat(o.Latitude), nullFloat(o.Longitude),
		nullString(o.Address), nullString(o.FullName),
		o.SubmittedAt.UTC().Format(submittedLayout),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// SelectAll returns every observation in submission order.
func (s *Store) SelectAll(ctx context.Context) ([]observation.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, photo_file_id, media_kind, date_of_observation,
		latitude, longitude, address, fullname, submitted_at
		FROM observations ORDER BY submitted_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("select observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []observation.Observation
	for rows.Next() {
		var (
			o                   observation.Observation
			kind                string
			observed, submitted string
			lat, lon            sql.NullFloat64
			address, fullName   sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.MediaRef, &kind, &observed, &lat, &lon, &address, &fullName, &submitted); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.MediaKind = observation.MediaKind(kind)
		if o.ObservedAt, err = time.ParseInLocation(observedLayout, observed, s.loc); err != nil {
			return nil, fmt.Errorf("decode date_of_observation %q: %w", observed, err)
		}
		if o.SubmittedAt, err = time.Parse(submittedLayout, submitted); err != nil {
			return nil, fmt.Errorf("decode submitted_at %q: %w", submitted, err)
		}
		o.Latitude = floatPtr(lat)
		o.Longitude = floatPtr(lon)
		o.Address = stringPtr(address)
		o.FullName = stringPtr(fullName)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
