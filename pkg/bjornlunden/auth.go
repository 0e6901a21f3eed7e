package bjornlunden

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenTTL is assumed when neither the token response nor the token itself carries an expiry.
const DefaultTokenTTL = time.Hour

// AuthConfig represents the configuration for the client-credentials exchange.
type AuthConfig struct {
	AuthBaseURL  string
	ClientID     string
	ClientSecret string
	DefaultTTL   time.Duration // Default: DefaultTokenTTL
	HTTPClient   *http.Client
	Now          func() time.Time
}

// AccessToken is a bearer token and how long it may be used.
type AccessToken struct {
	Value string
	TTL   time.Duration
	// Source tells where TTL came from: "expires_in", "jwt" or "default".
	Source string
}

// Authenticator exchanges client credentials for a bearer token.
type Authenticator struct {
	config     clientcredentials.Config
	httpClient *http.Client
	defaultTTL time.Duration
	now        func() time.Time
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(config AuthConfig) *Authenticator {
	defaultTTL := config.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Authenticator{
		config: clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     strings.TrimSuffix(config.AuthBaseURL, "/") + "/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: httpClient,
		defaultTTL: defaultTTL,
		now:        now,
	}
}

// FetchToken performs the client-credentials exchange.
// A non-200 answer is returned as *APIError carrying the status code.
func (a *Authenticator) FetchToken(ctx context.Context) (AccessToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.config.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return AccessToken{}, newAPIError("fetch token", "", retrieveErr.Response.StatusCode, retrieveErr.Body)
		}
		return AccessToken{}, fmt.Errorf("bjornlunden: fetch token: %w", err)
	}

	ttl, source := a.resolveTTL(tok)
	return AccessToken{Value: tok.AccessToken, TTL: ttl, Source: source}, nil
}

// resolveTTL prefers the server-provided expiry, then the JWT exp claim, then the default.
func (a *Authenticator) resolveTTL(tok *oauth2.Token) (time.Duration, string) {
	now := a.now()

	if !tok.Expiry.IsZero() {
		if ttl := tok.Expiry.Sub(now); ttl > 0 {
			return ttl, "expires_in"
		}
	}

	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		if ttl := exp.Sub(now); ttl > 0 {
			return ttl, "jwt"
		}
	}

	return a.defaultTTL, "default"
}

// jwtExpiry reads the exp claim of a JWT without verifying its signature.
// The token is only inspected to learn its lifetime, never trusted.
func jwtExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
