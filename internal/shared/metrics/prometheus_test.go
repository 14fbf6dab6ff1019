package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/v1/cases", "/api/v1/cases"},
		{"/api/v1/cases/12", "/api/v1/cases/{id}"},
		{"/api/v1/cases/12/notes", "/api/v1/cases/{id}/notes"},
		{"/api/v1/incidents/3", "/api/v1/incidents/{id}"},
		{"/api/v1/operators/me", "/api/v1/operators/me"},
		{"/api/v1/operators/register", "/api/v1/operators/register"},
		{"/api/v1/operators/alice/role", "/api/v1/operators/{principal}/role"},
		{"/" + strings.Repeat("x", 120), "/api/..."},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestMiddlewareCapturesStatus(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cases/1", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
}
