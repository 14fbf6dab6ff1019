package idempotency

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/sentinel-ops/casedesk/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	resp, err := s.Claim(ctx, "k", 0)
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = s.Claim(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, s.Complete(ctx, "k", Response{Status: 201, Body: []byte(`{"id":1}`)}, 0))
	resp, err = s.Claim(ctx, "k", 0)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)

	require.NoError(t, s.Release(ctx, "k"))
	resp, err = s.Claim(ctx, "k", 0)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	_, err := s.Claim(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	resp, err := s.Claim(ctx, "k", 0)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestDecodeResponse(t *testing.T) {
	_, err := decodeResponse([]byte(pendingMarker))
	assert.ErrorIs(t, err, ErrInFlight)

	resp, err := decodeResponse([]byte(`{"status":201,"content_type":"application/json","body":"eyJpZCI6MX0="}`))
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, `{"id":1}`, string(resp.Body))

	_, err = decodeResponse([]byte("{"))
	assert.Error(t, err)
}

func newHandler(t *testing.T, status int) (http.Handler, *int) {
	t.Helper()
	calls := 0
	s := NewMemoryStore(time.Minute)
	t.Cleanup(s.Close)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"id":` + string(rune('0'+calls)) + `}`))
	})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Middleware(s, time.Minute, log)(inner), &calls
}

func post(h http.Handler, principal types.Principal, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	req = req.WithContext(identity.WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	h, calls := newHandler(t, http.StatusCreated)

	first := post(h, "alice", "/api/v1/cases", "abc")
	second := post(h, "alice", "/api/v1/cases", "abc")

	assert.Equal(t, 1, *calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestMiddlewareScopesKeys(t *testing.T) {
	h, calls := newHandler(t, http.StatusCreated)

	post(h, "alice", "/api/v1/cases", "abc")
	post(h, "bob", "/api/v1/cases", "abc")
	post(h, "alice", "/api/v1/incidents", "abc")
	post(h, "alice", "/api/v1/cases", "")
	post(h, "alice", "/api/v1/cases", "")

	assert.Equal(t, 5, *calls)
}

func TestMiddlewareReleasesOnServerError(t *testing.T) {
	h, calls := newHandler(t, http.StatusInternalServerError)

	post(h, "alice", "/api/v1/cases", "abc")
	rec := post(h, "alice", "/api/v1/cases", "abc")

	assert.Equal(t, 2, *calls)
	assert.Empty(t, rec.Header().Get(HeaderReplayed))
}

func TestMiddlewareReleasesOnPanic(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	t.Cleanup(s.Close)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("handler blew up")
		}
		w.WriteHeader(http.StatusCreated)
	})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Middleware(s, time.Minute, log)(inner)

	assert.PanicsWithValue(t, "handler blew up", func() {
		post(h, "alice", "/api/v1/cases", "abc")
	})

	rec := post(h, "alice", "/api/v1/cases", "abc")
	assert.Equal(t, http.StatusCreated, rec.Code, "retry must not see IDEMPOTENCY_IN_FLIGHT")
	assert.Equal(t, 2, calls)
	assert.Empty(t, rec.Header().Get(HeaderReplayed))
}

func TestMiddlewareRejectsLongKeys(t *testing.T) {
	h, calls := newHandler(t, http.StatusCreated)

	rec := post(h, "alice", "/api/v1/cases", strings.Repeat("k", maxKeyLength+1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, *calls)
}

func TestMiddlewareIgnoresOtherMethods(t *testing.T) {
	h, calls := newHandler(t, http.StatusOK)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
		req.Header.Set(HeaderKey, "abc")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, *calls)
}
