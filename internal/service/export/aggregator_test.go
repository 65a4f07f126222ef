package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pollinator-bot/backend/internal/metrics"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
)

type countingRepo struct {
	mu    sync.Mutex
	rows  []observation.Observation
	err   error
	reads int
}

func (r *countingRepo) Insert(context.Context, observation.Observation) error {
	return errors.New("read only")
}

func (r *countingRepo) SelectAll(context.Context) ([]observation.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	return append([]observation.Observation(nil), r.rows...), nil
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, ref string) (string, error) {
	link, ok := m[ref]
	if !ok {
		return "", errors.New("file not found")
	}
	return link, nil
}

func ptr[T any](v T) *T { return &v }

var exportNow = time.Date(2025, time.May, 1, 8, 0, 0, 0, time.UTC)

func newTestAggregator(repo observation.Repository, resolver LinkResolver) *Aggregator {
	return NewAggregator(repo, resolver, Config{Admins: []string{"admin"}}, WithClock(func() time.Time { return exportNow }))
}

func parse(t *testing.T, data []byte) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, bom), "missing utf-8 bom")
	r := csv.NewReader(bytes.NewReader(data[len(bom):]))
	r.Comma = ';'
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportUnauthorizedReadsNothing(t *testing.T) {
	repo := &countingRepo{rows: []observation.Observation{{UserID: "1", MediaRef: "f"}}}
	agg := newTestAggregator(repo, mapResolver{})

	file, err := agg.Export(context.Background(), "intruder")

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, file)
	assert.Zero(t, repo.reads)
}

func TestExportEmpty(t *testing.T) {
	repo := &countingRepo{}
	agg := newTestAggregator(repo, mapResolver{})

	file, err := agg.Export(context.Background(), "admin")

	assert.ErrorIs(t, err, ErrNoObservations)
	assert.Nil(t, file)
	assert.Equal(t, 1, repo.reads)
}

func TestExportRepositoryFailure(t *testing.T) {
	repo := &countingRepo{err: errors.New("db down")}
	agg := newTestAggregator(repo, mapResolver{})

	_, err := agg.Export(context.Background(), "admin")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestExportRendersRows(t *testing.T) {
	observed := time.Date(2025, time.April, 13, 15, 30, 0, 0, time.UTC)
	submitted := time.Date(2025, time.April, 13, 16, 0, 5, 0, time.UTC)
	repo := &countingRepo{rows: []observation.Observation{
		{
			UserID: "42", MediaRef: "p1", ObservedAt: observed,
			Latitude: ptr(43.222), Longitude: ptr(76.8512),
			FullName: ptr("Айгерим Нурланова"), SubmittedAt: submitted,
		},
		{
			UserID: "42", MediaRef: "p2", ObservedAt: observed,
			Address: ptr("Алматы; парк \"Горького\""), SubmittedAt: submitted,
		},
	}}
	resolver := mapResolver{"p1": "https://files.example/p1.jpg"}
	reg := prometheus.NewRegistry()
	agg := NewAggregator(repo, resolver, Config{Admins: []string{"admin"}},
		WithClock(func() time.Time { return exportNow }), WithMetrics(metrics.New(reg)))

	file, err := agg.Export(context.Background(), "admin")
	require.NoError(t, err)

	assert.Equal(t, "observations_20250501_080000.csv", file.Name)
	assert.Equal(t, ContentType, file.ContentType)
	assert.Equal(t, 2, file.Rows)

	records := parse(t, file.Data)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, "user_id;photo_file_id;date_of_observation;latitude;longitude;address;fullname;submitted_at;file_link",
		strings.Join(records[0], ";"))
	assert.Equal(t, []string{
		"42", "p1", "2025-04-13 15:30", "43.222", "76.8512", "", "Айгерим Нурланова",
		"2025-04-13T16:00:05Z", "https://files.example/p1.jpg",
	}, records[1])
	assert.Equal(t, []string{
		"42", "p2", "2025-04-13 15:30", "", "", "Алматы; парк \"Горького\"", "",
		"2025-04-13T16:00:05Z", LinkUnavailable,
	}, records[2])
}

func TestExportWithoutResolver(t *testing.T) {
	repo := &countingRepo{rows: []observation.Observation{{UserID: "1", MediaRef: "f", Address: ptr("x")}}}
	agg := NewAggregator(repo, nil, Config{Admins: []string{"admin"}})

	file, err := agg.Export(context.Background(), "admin")
	require.NoError(t, err)

	records := parse(t, file.Data)
	assert.Equal(t, LinkUnavailable, records[1][8])
}

type slowResolver struct{}

func (slowResolver) Resolve(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestExportResolveTimeout(t *testing.T) {
	repo := &countingRepo{rows: []observation.Observation{{UserID: "1", MediaRef: "f", Address: ptr("x")}}}
	agg := NewAggregator(repo, slowResolver{}, Config{Admins: []string{"admin"}, ResolveTimeout: 10 * time.Millisecond})

	file, err := agg.Export(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, LinkUnavailable, parse(t, file.Data)[1][8])
}

func TestIsAdmin(t *testing.T) {
	agg := NewAggregator(&countingRepo{}, nil, Config{Admins: []string{"1", "", "2"}})
	assert.True(t, agg.IsAdmin("1"))
	assert.True(t, agg.IsAdmin("2"))
	assert.False(t, agg.IsAdmin(""))
	assert.False(t, agg.IsAdmin("3"))
}
