package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
	"github.com/zhouzirui/pollinator-bot/backend/internal/metrics"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
	botservice "github.com/zhouzirui/pollinator-bot/backend/internal/service/bot"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/engine"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/export"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/session"
)

const testToken = "test-token"

func setupRouter(t *testing.T) (http.Handler, *observation.MemoryStore) {
	t.Helper()
	return setupRouterWithToken(t, testToken)
}

func setupRouterWithToken(t *testing.T, token string) (http.Handler, *observation.MemoryStore) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	repo := observation.NewMemoryStore()

	eng := engine.NewEngine(session.NewStore(), repo, engine.Config{
		RequireMedia:    true,
		Location:        time.UTC,
		DefaultLanguage: "en",
	}, engine.WithMetrics(m))

	resolver := media.Func(func(_ context.Context, ref string) (string, error) {
		return "https://files.example.org/" + ref, nil
	})
	agg := export.NewAggregator(repo, resolver, export.Config{Admins: []string{"1"}}, export.WithMetrics(m))

	return NewRouter(botservice.NewDispatcher(eng, agg), agg, nil, reg, token), repo
}

func send(t *testing.T, r http.Handler, body map[string]any) []conversation.Reply {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out struct {
		Replies []conversation.Reply `json:"replies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Replies
}

func TestFullObservationFlowAndExport(t *testing.T) {
	r, repo := setupRouter(t)

	send(t, r, map[string]any{"userId": "42", "text": "/start"})
	send(t, r, map[string]any{"userId": "42", "text": "Yes"})
	send(t, r, map[string]any{"userId": "42", "text": "Ada"})
	send(t, r, map[string]any{"userId": "42", "fileId": "p1"})
	send(t, r, map[string]any{"userId": "42", "fileId": "v1", "mimeType": "video/mp4"})
	send(t, r, map[string]any{"userId": "42", "text": "Next"})
	send(t, r, map[string]any{"userId": "42", "text": "13-04-2025 15:30"})
	replies := send(t, r, map[string]any{"userId": "42", "location": map[string]float64{"latitude": 43.222, "longitude": 76.8512}})
	require.NotEmpty(t, replies)
	assert.Equal(t, 2, repo.Len())

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set("X-User-ID", "1")
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	body := strings.TrimPrefix(resp.Body.String(), "\ufeff")
	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Header, rows[0])
	assert.Equal(t, "42", rows[1][0])
	assert.Equal(t, "https://files.example.org/"+rows[1][1], rows[1][8])
}

func TestExportRefusedForNonAdmin(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set("X-User-ID", "42")
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestForgedAdminHeaderWithoutToken(t *testing.T) {
	r, repo := setupRouter(t)
	addr := "Almaty"
	require.NoError(t, repo.Insert(context.Background(), observation.Observation{
		UserID: "42", MediaRef: "p1", MediaKind: observation.MediaImage, Address: &addr,
		ObservedAt: time.Now(), SubmittedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set("X-User-ID", "1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.NotContains(t, resp.Body.String(), "files.example.org")

	req = httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set("X-User-ID", "1")
	req.Header.Set("Authorization", "Bearer wrong")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	payload := []byte(`{"userId":"1","text":"/start"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAPIUnmountedWithoutToken(t *testing.T) {
	r, _ := setupRouterWithToken(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set("X-User-ID", "1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := setupRouter(t)
	send(t, r, map[string]any{"userId": "42", "text": "/start"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "pollinator_messages_total")
}
