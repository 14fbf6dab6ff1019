// Package identity turns bearer tokens into caller principals.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Claims are the JWT claims accepted by the API. The subject is the caller
// principal; Name is informational only.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Middleware creates JWT authentication middleware. Requests without a valid
// HS256 token are rejected with 401 before reaching a handler.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthenticated(w, "missing authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				writeUnauthenticated(w, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeUnauthenticated(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				writeUnauthenticated(w, "token has no subject")
				return
			}

			ctx := WithPrincipal(r.Context(), types.Principal(claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal stores the caller principal in ctx
func WithPrincipal(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFrom returns the caller principal, empty when anonymous
func PrincipalFrom(ctx context.Context) types.Principal {
	p, _ := ctx.Value(principalContextKey).(types.Principal)
	return p
}

// IssueToken signs a token for subject valid for cfg.TokenTTL
func IssueToken(cfg config.AuthConfig, subject, name string, now time.Time) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        types.NewEventID(),
		},
		Name: name,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	if cfg.TokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TokenTTL))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	appErr := apperrors.Unauthenticated(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]string{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}
