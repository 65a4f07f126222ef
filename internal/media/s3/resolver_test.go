package s3

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
)

func newTestResolver(t *testing.T, cfg Config) *Resolver {
	t.Helper()
	cfg.AccessKeyID = "AKIDEXAMPLE"
	cfg.SecretAccessKey = "secret"
	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return r
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestResolvePresignsPathStyleURL(t *testing.T) {
	r := newTestResolver(t, Config{
		Bucket:    "pollinators",
		Prefix:    "media/",
		Endpoint:  "http://127.0.0.1:9000",
		PathStyle: true,
		Expiry:    15 * time.Minute,
	})

	link, err := r.Resolve(context.Background(), "AgACphoto")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/pollinators/media/AgACphoto", u.Path)
	q := u.Query()
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Equal(t, "900", q.Get("X-Amz-Expires"))
	assert.True(t, strings.HasPrefix(q.Get("X-Amz-Credential"), "AKIDEXAMPLE/"))
}

func TestResolveDefaultsAndEmptyRef(t *testing.T) {
	r := newTestResolver(t, Config{Bucket: "pollinators"})
	assert.Equal(t, "p1", r.Key("p1"))
	assert.Equal(t, defaultExpiry, r.expiry)

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, media.ErrEmptyRef)
}
