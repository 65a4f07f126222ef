package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "API_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_ADMINS", "BOT_DEFAULT_LANGUAGE", "BOT_REQUIRE_MEDIA",
		"BOT_TIMEZONE", "BOT_SESSION_TTL", "BOT_PERSIST_TIMEOUT", "BOT_PERSIST_RETRIES",
		"BOT_PERSIST_CONCURRENCY", "BOT_RATE_LIMIT", "BOT_RATE_BURST", "STORE_DRIVER", "SQLITE_PATH",
		"DATABASE_URL", "MEDIA_DRIVER", "MEDIA_BASE_URL", "MEDIA_LINK_EXPIRY", "MEDIA_S3_BUCKET",
		"EXPORT_RESOLVE_TIMEOUT", "EXPORT_CONCURRENCY",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.APIToken)
	assert.False(t, cfg.Bot.TelegramEnabled())
	assert.Empty(t, cfg.Bot.Admins)
	assert.Equal(t, "ru", cfg.Bot.DefaultLanguage)
	assert.True(t, cfg.Bot.RequireMedia)
	assert.Equal(t, time.Local, cfg.Bot.Location)
	assert.Equal(t, 24*time.Hour, cfg.Bot.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.Bot.PersistTimeout)
	assert.Equal(t, 2, cfg.Bot.PersistRetries)
	assert.Equal(t, 4, cfg.Bot.PersistConcurrency)
	assert.Zero(t, cfg.Bot.RateLimit)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "data/observations.db", cfg.Store.SQLitePath)
	assert.Equal(t, "telegram", cfg.Media.Driver)
	assert.Equal(t, 8, cfg.Export.Concurrency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("API_TOKEN", " s3cret ")
	t.Setenv("TELEGRAM_BOT_TOKEN", " 123:abc ")
	t.Setenv("BOT_ADMINS", "42, 7,,")
	t.Setenv("BOT_REQUIRE_MEDIA", "false")
	t.Setenv("BOT_TIMEZONE", "Asia/Almaty")
	t.Setenv("BOT_SESSION_TTL", "90m")
	t.Setenv("BOT_PERSIST_TIMEOUT", "3")
	t.Setenv("BOT_PERSIST_RETRIES", "-1")
	t.Setenv("BOT_RATE_LIMIT", "1.5")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pollinator")
	t.Setenv("MEDIA_DRIVER", "s3")
	t.Setenv("MEDIA_S3_BUCKET", "pollinators")
	t.Setenv("MEDIA_S3_PATH_STYLE", "true")
	t.Setenv("EXPORT_RESOLVE_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.APIToken)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, []string{"42", "7"}, cfg.Bot.Admins)
	assert.False(t, cfg.Bot.RequireMedia)
	assert.Equal(t, "Asia/Almaty", cfg.Bot.Location.String())
	assert.Equal(t, 90*time.Minute, cfg.Bot.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.Bot.PersistTimeout)
	assert.Equal(t, 0, cfg.Bot.PersistRetries)
	assert.Equal(t, 1.5, cfg.Bot.RateLimit)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.True(t, cfg.Media.S3.PathStyle)
	assert.Equal(t, 2*time.Second, cfg.Export.ResolveTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"port":           {"PORT": "80 80"},
		"bool":           {"BOT_REQUIRE_MEDIA": "maybe"},
		"timezone":       {"BOT_TIMEZONE": "Mars/Olympus"},
		"duration":       {"BOT_SESSION_TTL": "soon"},
		"store driver":   {"STORE_DRIVER": "mongo"},
		"postgres dsn":   {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"media driver":   {"MEDIA_DRIVER": "ftp"},
		"static base":    {"MEDIA_DRIVER": "static", "MEDIA_BASE_URL": ""},
		"s3 bucket":      {"MEDIA_DRIVER": "s3", "MEDIA_S3_BUCKET": ""},
		"export workers": {"EXPORT_CONCURRENCY": "many"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("X_DURATION", "-5s")
	_, err := parseDurationEnv("X_DURATION", time.Second)
	assert.Error(t, err)

	t.Setenv("X_DURATION", "")
	d, err := parseDurationEnv("X_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}
