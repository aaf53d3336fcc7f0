package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
)

// envelope is the body shape of every management API response.
type envelope struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Success    bool   `json:"success"`
	Payload    any    `json:"payload"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Err(err).Msg("failed to encode response")
	}
}

func respond(w http.ResponseWriter, status int, message string, payload any) {
	writeJSON(w, status, envelope{
		Message:    message,
		StatusCode: status,
		Success:    status < 400,
		Payload:    payload,
	})
}

// respondError maps service errors to status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= 500 {
		logging.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}

	var payload any
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		payload = map[string]any{"errors": fields}
	}
	respond(w, status, message, payload)
}

func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, errBadJSON):
		return http.StatusBadRequest, "Invalid JSON format"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "Permission denied"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrCacheUnavailable):
		return http.StatusServiceUnavailable, "Cache temporarily unavailable"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	case errors.Is(err, domain.ErrAllocationExhausted):
		return http.StatusInternalServerError, "Could not allocate a shortcode"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

var errBadJSON = errors.New("invalid json")

var validate = newValidator()

// newValidator reports fields by their JSON names.
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

// decode reads a JSON body into dst and runs struct validation.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(errBadJSON, err)
	}
	return validate.Struct(dst)
}
