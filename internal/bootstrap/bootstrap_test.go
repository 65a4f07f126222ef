package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/pollinator-bot/backend/internal/config"
	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
	mediaS3 "github.com/zhouzirui/pollinator-bot/backend/internal/media/s3"
	mediaTelegram "github.com/zhouzirui/pollinator-bot/backend/internal/media/telegram"
	"github.com/zhouzirui/pollinator-bot/backend/internal/store/sqlite"
)

type linker struct{}

func (linker) GetFileDirectURL(id string) (string, error) { return "https://t.me/file/" + id, nil }

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenRepository(ctx, config.StoreConfig{Driver: config.StoreMemory}, time.UTC)
	require.NoError(t, err)
	assert.NoError(t, mem.Close())

	path := filepath.Join(t.TempDir(), "obs.db")
	repo, err := OpenRepository(ctx, config.StoreConfig{Driver: config.StoreSQLite, SQLitePath: path}, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	_, ok := repo.(*sqlite.Store)
	assert.True(t, ok)

	_, err = OpenRepository(ctx, config.StoreConfig{Driver: "mongo"}, time.UTC)
	assert.Error(t, err)
}

func TestOpenResolver(t *testing.T) {
	ctx := context.Background()

	_, err := OpenResolver(ctx, config.MediaConfig{Driver: "telegram"}, nil)
	assert.ErrorIs(t, err, ErrNoFileLinker)

	r, err := OpenResolver(ctx, config.MediaConfig{Driver: "telegram"}, linker{})
	require.NoError(t, err)
	assert.IsType(t, &mediaTelegram.Resolver{}, r)

	r, err = OpenResolver(ctx, config.MediaConfig{Driver: "static", BaseURL: "https://files.example.org"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &media.Static{}, r)

	r, err = OpenResolver(ctx, config.MediaConfig{
		Driver: "s3",
		S3:     config.S3Config{Bucket: "pollinators", AccessKeyID: "AKID", SecretAccessKey: "secret"},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &mediaS3.Resolver{}, r)

	_, err = OpenResolver(ctx, config.MediaConfig{Driver: "ftp"}, nil)
	assert.Error(t, err)
}
