// Package export builds the administrator spreadsheet of all observations.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/pollinator-bot/backend/internal/metrics"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

var (
	ErrUnauthorized   = errors.New("caller is not allowed to export observations")
	ErrNoObservations = errors.New("no observations stored")
)

const (
	// LinkUnavailable replaces links that could not be resolved.
	LinkUnavailable = "link unavailable"

	ContentType       = "text/csv; charset=utf-8"
	ObservedAtLayout  = "2006-01-02 15:04"
	SubmittedAtLayout = time.RFC3339
)

// Header is the column set of the exported table.
var Header = []string{
	"user_id",
	"photo_file_id",
	"date_of_observation",
	"latitude",
	"longitude",
	"address",
	"fullname",
	"submitted_at",
	"file_link",
}

// UTF-8 byte order mark so spreadsheet tools detect the encoding.
var bom = []byte{0xEF, 0xBB, 0xBF}

// LinkResolver turns a media reference into a retrievable URL.
type LinkResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Config controls authorization and link resolution.
type Config struct {
	Admins         []string
	ResolveTimeout time.Duration
	Concurrency    int
}

// File is a finished export ready to be sent to the caller.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

// Aggregator reads every observation and serializes it with resolved links.
type Aggregator struct {
	repo     observation.Repository
	resolver LinkResolver
	admins   map[string]struct{}
	cfg      Config
	now      func() time.Time
	metrics  *metrics.Metrics
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithMetrics reports export outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator builds an aggregator. A nil resolver marks every link unavailable.
func NewAggregator(repo observation.Repository, resolver LinkResolver, cfg Config, opts ...Option) *Aggregator {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	admins := make(map[string]struct{}, len(cfg.Admins))
	for _, id := range cfg.Admins {
		if id != "" {
			admins[id] = struct{}{}
		}
	}

	a := &Aggregator{
		repo:     repo,
		resolver: resolver,
		admins:   admins,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsAdmin reports whether callerID may export.
func (a *Aggregator) IsAdmin(callerID string) bool {
	_, ok := a.admins[callerID]
	return ok
}

// Export checks authorization, scans the repository and renders the table.
func (a *Aggregator) Export(ctx context.Context, callerID string) (*File, error) {
	if !a.IsAdmin(callerID) {
		a.metrics.Export(metrics.ExportUnauthorized)
		return nil, ErrUnauthorized
	}

	rows, err := a.repo.SelectAll(ctx)
	if err != nil {
		a.metrics.Export(metrics.ExportFailed)
		return nil, fmt.Errorf("select observations: %w", err)
	}
	if len(rows) == 0 {
		a.metrics.Export(metrics.ExportEmpty)
		return nil, ErrNoObservations
	}

	links := a.resolveLinks(ctx, rows)

	data, err := encode(rows, links)
	if err != nil {
		a.metrics.Export(metrics.ExportFailed)
		return nil, err
	}

	a.metrics.Export(metrics.ExportOK)
	log.Printf("[export] caller=%s rows=%d bytes=%d", callerID, len(rows), len(data))
	return &File{
		Name:        fmt.Sprintf("observations_%s.csv", a.now().UTC().Format("20060102_150405")),
		ContentType: ContentType,
		Data:        data,
		Rows:        len(rows),
	}, nil
}

// resolveLinks looks up every media link with bounded concurrency. Failures
// degrade to LinkUnavailable for that row only.
func (a *Aggregator) resolveLinks(ctx context.Context, rows []observation.Observation) []string {
	links := make([]string, len(rows))
	if a.resolver == nil {
		for i := range links {
			links[i] = LinkUnavailable
		}
		return links
	}

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, row := range rows {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.cfg.ResolveTimeout)
			defer cancel()

			link, err := a.resolver.Resolve(callCtx, row.MediaRef)
			if err != nil || link == "" {
				log.Printf("[export] resolve media=%s failed: %v", row.MediaRef, err)
				a.metrics.LinkFailed()
				link = LinkUnavailable
			}
			links[i] = link
			return nil
		})
	}
	_ = g.Wait()
	return links
}

func encode(rows []observation.Observation, links []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(bom)

	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(record(row, links[i])); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func record(o observation.Observation, link string) []string {
	observedAt := ""
	if !o.ObservedAt.IsZero() {
		observedAt = o.ObservedAt.Format(ObservedAtLayout)
	}
	submittedAt := ""
	if !o.SubmittedAt.IsZero() {
		submittedAt = o.SubmittedAt.UTC().Format(SubmittedAtLayout)
	}
	return []string{
		o.UserID,
		o.MediaRef,
		observedAt,
		formatFloat(o.Latitude),
		formatFloat(o.Longitude),
		deref(o.Address),
		deref(o.FullName),
		submittedAt,
		link,
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
