package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hpungsan/csm-companion/internal/errors"
)

// Claims are carried by emulator-issued tokens.
type Claims struct {
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

// issueToken signs a token for an SSO service name.
func (s *Server) issueToken(service, env string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.tokenTTL)
	claims := Claims{
		Service: service,
		Env:     env,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.systemAccount,
			Issuer:    "companion-backend",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// verifyToken checks signature and expiry.
func (s *Server) verifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}
	return claims, nil
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			writeError(w, errors.NewUnauthorized("missing or invalid token"))
			return
		}
		claims, err := s.verifyToken(tokenString)
		if err != nil {
			s.log.Debug("rejected token", "path", r.URL.Path, "error", err)
			writeError(w, errors.NewUnauthorized(err.Error()))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// ClaimsFrom returns the verified claims of a request.
func ClaimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// callerService names the token service of an authenticated request.
func callerService(r *http.Request) string {
	if c := ClaimsFrom(r.Context()); c != nil {
		return c.Service
	}
	return ""
}
