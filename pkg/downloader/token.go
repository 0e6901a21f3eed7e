package downloader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/bjornlunden"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/tokencache"
)

// TokenFetcher performs the client-credentials exchange.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (bjornlunden.AccessToken, error)
}

// TokenProvider serves the cached token while it is valid and fetches a new
// one otherwise, writing it back to the cache.
type TokenProvider struct {
	cache   *tokencache.Cache
	fetcher TokenFetcher
	logger  *slog.Logger
}

// NewTokenProvider creates a TokenProvider. A nil cache disables caching.
func NewTokenProvider(cache *tokencache.Cache, fetcher TokenFetcher, logger *slog.Logger) *TokenProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenProvider{cache: cache, fetcher: fetcher, logger: logger}
}

// Token returns a bearer token. Failures wrap ErrAuthentication.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if p.cache != nil {
		if token, ok := p.cache.Load(); ok {
			p.logger.Debug("Using cached token", "expires_at", token.ExpiresAt)
			return token.Value, nil
		}
	}

	token, err := p.fetcher.FetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	p.logger.Debug("Fetched new token", "ttl", token.TTL, "ttl_source", token.Source)

	if p.cache != nil {
		if _, err := p.cache.Save(token.Value, token.TTL); err != nil {
			p.logger.Warn("Failed to cache token", "path", p.cache.Path(), "error", err)
		}
	}

	return token.Value, nil
}
