package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuth = config.AuthConfig{
	JWTSecret: "test-secret-0123456789",
	Issuer:    "casedesk",
	Audience:  "casedesk-api",
	TokenTTL:  time.Hour,
}

func serve(t *testing.T, cfg config.AuthConfig, header string) (*httptest.ResponseRecorder, types.Principal) {
	t.Helper()
	var seen types.Principal
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareAcceptsIssuedToken(t *testing.T) {
	token, err := IssueToken(testAuth, "alice", "Alice", time.Now())
	require.NoError(t, err)

	rec, principal := serve(t, testAuth, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, types.Principal("alice"), principal)

	rec, principal = serve(t, testAuth, "bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, types.Principal("alice"), principal)
}

func TestMiddlewareRejects(t *testing.T) {
	valid, err := IssueToken(testAuth, "alice", "", time.Now())
	require.NoError(t, err)

	expired, err := IssueToken(testAuth, "alice", "", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	otherSecret := testAuth
	otherSecret.JWTSecret = "another-secret-987654321"
	forged, err := IssueToken(otherSecret, "alice", "", time.Now())
	require.NoError(t, err)

	otherAudience := testAuth
	otherAudience.Audience = "someone-else"
	wrongAudience, err := IssueToken(otherAudience, "alice", "", time.Now())
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: testAuth.Issuer, Audience: jwt.ClaimStrings{testAuth.Audience}},
	}).SignedString([]byte(testAuth.JWTSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + valid},
		{"no token", "Bearer"},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + forged},
		{"wrong audience", "Bearer " + wrongAudience},
		{"no subject", "Bearer " + noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, principal := serve(t, testAuth, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHENTICATED")
			assert.True(t, principal.IsZero())
		})
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	_, err := IssueToken(testAuth, "", "", time.Now())
	assert.Error(t, err)
}
