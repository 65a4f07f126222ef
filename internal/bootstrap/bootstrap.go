// Package bootstrap opens the configured repository and media resolver.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/zhouzirui/pollinator-bot/backend/internal/config"
	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
	mediaS3 "github.com/zhouzirui/pollinator-bot/backend/internal/media/s3"
	mediaTelegram "github.com/zhouzirui/pollinator-bot/backend/internal/media/telegram"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/store/postgres"
	"github.com/zhouzirui/pollinator-bot/backend/internal/store/sqlite"
)

// ErrNoFileLinker is returned when the telegram media driver has no bot API.
var ErrNoFileLinker = errors.New("telegram media driver requires TELEGRAM_BOT_TOKEN")

// Repository is an observation repository that may hold resources.
type Repository interface {
	observation.Repository
	io.Closer
}

type nopCloser struct{ observation.Repository }

func (nopCloser) Close() error { return nil }

// OpenRepository opens the store selected by cfg.Driver.
func OpenRepository(ctx context.Context, cfg config.StoreConfig, loc *time.Location) (Repository, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		log.Println("[store] using in-memory observation store, data is lost on restart")
		return nopCloser{observation.NewMemoryStore()}, nil
	case config.StoreSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, loc)
		if err != nil {
			return nil, err
		}
		log.Printf("[store] sqlite observation store at %s", store.Path())
		return store, nil
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.DatabaseURL, loc)
		if err != nil {
			return nil, err
		}
		log.Println("[store] postgres observation store connected")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %s", cfg.Driver)
	}
}

// OpenResolver builds the media link resolver. linker may be nil when no bot
// token is configured.
func OpenResolver(ctx context.Context, cfg config.MediaConfig, linker mediaTelegram.FileLinker) (media.Resolver, error) {
	switch media.Driver(cfg.Driver) {
	case media.DriverTelegram:
		if linker == nil {
			return nil, ErrNoFileLinker
		}
		return mediaTelegram.New(linker), nil
	case media.DriverS3:
		return mediaS3.New(ctx, mediaS3.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
			PathStyle:       cfg.S3.PathStyle,
			Expiry:          cfg.LinkExpiry,
		})
	case media.DriverStatic:
		return media.NewStatic(cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown media driver %s", cfg.Driver)
	}
}
