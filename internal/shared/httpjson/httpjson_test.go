package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/sentinel-ops/casedesk/internal/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noteRequest struct {
	Content string `json:"content" validate:"required"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{"valid", `{"content":"hi"}`, false, ""},
		{"missing field", `{}`, true, "content"},
		{"empty field", `{"content":""}`, true, "content"},
		{"unknown field", `{"content":"hi","extra":1}`, true, "body"},
		{"malformed", `{"content":`, true, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst noteRequest
			err := Decode(req, &dst)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "hi", dst.Content)
				return
			}
			require.True(t, apperrors.Is(err, apperrors.ErrInvalidArgument), "got %v", err)
			appErr, _ := apperrors.As(err)
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}

func TestWriteError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NotFound("case", "7"), http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", apperrors.Forbidden("admin only"), http.StatusForbidden, "FORBIDDEN"},
		{"wrapped", apperrors.Wrap(apperrors.AlreadyExists("operator", "a"), "register"), http.StatusConflict, "ALREADY_EXISTS"},
		{"invariant", apperrors.Invariant("id %d reused", 3), http.StatusInternalServerError, "INVARIANT_VIOLATION"},
		{"foreign", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), log, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}
