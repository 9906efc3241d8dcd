package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/csm-companion/internal/bridge"
	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/errors"
)

// TokenSource obtains bearer tokens for one backend through the SSO channel.
// With the "page" policy a token is fetched once and reused until it expires;
// with "none" every call fetches a new one.
type TokenSource struct {
	bridge  bridge.Bridge
	service string
	env     string
	memoize bool
	now     func() time.Time

	mu    sync.Mutex
	token string
	group singleflight.Group
}

// NewTokenSource creates a token source for an SSO service name.
func NewTokenSource(b bridge.Bridge, service, env, policy string) *TokenSource {
	return &TokenSource{
		bridge:  b,
		service: service,
		env:     env,
		memoize: policy != config.TokenCacheNone,
		now:     time.Now,
	}
}

// Token returns a bearer token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if !s.memoize {
		return s.fetch(ctx)
	}

	s.mu.Lock()
	cached := s.token
	s.mu.Unlock()
	if cached != "" && !expired(cached, s.now()) {
		return cached, nil
	}

	v, err, _ := s.group.Do(s.service, func() (any, error) {
		tok, err := s.fetch(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = tok
		s.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the memoized token.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	var resp bridge.SSOResponse
	if err := s.bridge.Invoke(ctx, bridge.ChannelSSORequest, bridge.SSORequest{Env: s.env, Service: s.service}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.NewUnauthorized("empty token from sso service " + s.service)
	}
	return resp.Token, nil
}

// expired reports whether tok is a JWT whose exp claim has passed.
// Tokens that are not JWTs, or carry no exp, never expire.
func expired(tok string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
