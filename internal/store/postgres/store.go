// Package postgres provides a Postgres-backed observation repository.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

var _ observation.Repository = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pollinator?sslmode=disable"

	observedLayout = "2006-01-02 15:04:05"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		photo_file_id       TEXT NOT NULL,
		media_kind          TEXT NOT NULL DEFAULT '',
		date_of_observation TIMESTAMP NOT NULL,
		latitude            DOUBLE PRECISION,
		longitude           DOUBLE PRECISION,
		address             TEXT,
		fullname            TEXT,
		submitted_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS observations_submitted_at_idx ON observations (submitted_at)`,
}

// Store persists observations to Postgres.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// NewStore opens a Postgres store using dsn (falls back to defaultDSN) and
// ensures the observations table exists. Observation wall times are read back in loc.
func NewStore(ctx context.Context, dsn string, loc *time.Location) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if loc == nil {
		loc = time.Local
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, loc: loc}, nil
}

// Insert writes one observation; a repeated id is ignored so retries stay idempotent.
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
		VALUES ($1, $2, $3, $4, $5::timestamp, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		o.ID, o.UserID, o.MediaRef, string(o.MediaKind),
		o.ObservedAt.Format(observedLayout),
		nullFloat(o.Latitude), nullFloat(o.Longitude),
		nullString(o.Address), nullString(o.FullName),
		o.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// SelectAll returns every observation in submission order.
func (s *Store) SelectAll(ctx context.Context) ([]observation.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, photo_file_id, media_kind,
		to_char(date_of_observation, 'YYYY-MM-DD HH24:MI:SS'),
		latitude, longitude, address, fullname, submitted_at
		FROM observations ORDER BY submitted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []observation.Observation
	for rows.Next() {
		var (
			o                 observation.Observation
			kind, observed    string
			lat, lon          sql.NullFloat64
			address, fullName sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.MediaRef, &kind, &observed, &lat, &lon, &address, &fullName, &o.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if o.ObservedAt, err = time.ParseInLocation(observedLayout, observed, s.loc); err != nil {
			return nil, fmt.Errorf("decode date_of_observation %q: %w", observed, err)
		}
		o.MediaKind = observation.MediaKind(kind)
		o.SubmittedAt = o.SubmittedAt.UTC()
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

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

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
