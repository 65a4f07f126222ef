// Package media turns stored media references into downloadable links.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Driver 标识媒体链接的解析方式。
type Driver string

const (
	DriverTelegram Driver = "telegram"
	DriverS3       Driver = "s3"
	DriverStatic   Driver = "static"
)

// ErrEmptyRef is returned when a resolver is asked for an empty reference.
var ErrEmptyRef = errors.New("media: empty reference")

// Resolver maps an opaque media reference to a URL.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, ref string) (string, error)

// Resolve implements Resolver.
func (f Func) Resolve(ctx context.Context, ref string) (string, error) { return f(ctx, ref) }

// Static builds links by joining a fixed base URL with the escaped reference.
type Static struct {
	base string
}

// NewStatic validates baseURL and returns a Static resolver.
func NewStatic(baseURL string) (*Static, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("media: base url required for %s driver", DriverStatic)
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("media: invalid base url %q", baseURL)
	}
	return &Static{base: strings.TrimRight(baseURL, "/")}, nil
}

// Resolve implements Resolver.
func (s *Static) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(ref) == "" {
		return "", ErrEmptyRef
	}
	return s.base + "/" + url.PathEscape(ref), nil
}
