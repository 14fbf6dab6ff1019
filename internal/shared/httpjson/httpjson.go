// Package httpjson holds the JSON request and response helpers shared by the
// API handlers.
package httpjson

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sentinel-ops/casedesk/internal/shared/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode reads a JSON body into dst and validates its struct tags
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.InvalidArgument("body", "invalid request body")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.InvalidArgument("body", "invalid request body")
		}
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return errors.Validation("request validation failed", details)
	}
	return nil
}

// WriteJSON writes data with the given status
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError maps err to its HTTP status. Internal causes are logged and
// never sent to the client.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	appErr, ok := errors.As(err)
	if !ok || appErr.HTTPStatus >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "code", errors.CodeOf(err), "error", err)
	}
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	WriteJSON(w, appErr.HTTPStatus, map[string]any{
		"error":   appErr.Message,
		"code":    appErr.Code,
		"details": appErr.Details,
	})
}
