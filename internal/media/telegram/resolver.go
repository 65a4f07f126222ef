// Package telegram resolves Telegram file ids into direct download links.
package telegram

import (
	"context"
	"strings"

	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
)

var _ media.Resolver = (*Resolver)(nil)

// FileLinker is the part of the bot API used here; *tgbotapi.BotAPI satisfies it.
type FileLinker interface {
	GetFileDirectURL(fileID string) (string, error)
}

// Resolver looks up file links through the Bot API.
type Resolver struct {
	api FileLinker
}

// New wraps api as a media.Resolver.
func New(api FileLinker) *Resolver {
	return &Resolver{api: api}
}

type lookup struct {
	link string
	err  error
}

// Resolve implements media.Resolver. The Bot API call itself is not
// cancellable, so ctx only bounds how long the caller waits.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", media.ErrEmptyRef
	}
	done := make(chan lookup, 1)
	go func() {
		link, err := r.api.GetFileDirectURL(ref)
		done <- lookup{link: link, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.link, res.err
	}
}
