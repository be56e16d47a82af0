package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/socialgraph/internal/application/query"
	"github.com/alem-hub/socialgraph/internal/domain/graph"
	"github.com/alem-hub/socialgraph/internal/domain/shared"
	"github.com/alem-hub/socialgraph/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("id", func(fl validator.FieldLevel) bool {
		return graph.ValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("target_type", func(fl validator.FieldLevel) bool {
		return graph.TargetType(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("profile_type", func(fl validator.FieldLevel) bool {
		return graph.ProfileType(fl.Field().String()).IsValid()
	})
	return v
}

// validationError carries a readable message built from validator errors.
type validationError struct {
	message string
}

func (e *validationError) Error() string { return e.message }

func (e *validationError) Is(target error) bool { return target == shared.ErrValidation }

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return &validationError{message: strings.Join(msgs, "; ")}
}

func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "id":
		return fmt.Sprintf("%s must be a UUID", field)
	case "target_type":
		return fmt.Sprintf("%s must be one of: %s", field, joinTargetTypes(graph.AllTargetTypes))
	case "profile_type":
		return fmt.Sprintf("%s must be a profile type", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func joinTargetTypes(types []graph.TargetType) string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return strings.Join(out, ", ")
}

// decodeJSON reads the body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &validationError{message: "request body is required"}
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &validationError{message: "request body too large"}
		}
		return &validationError{message: "invalid JSON: " + err.Error()}
	}
	return validateStruct(dst)
}

// pageParams reads ?limit= and ?offset=. Absent values are zero.
func pageParams(r *http.Request) (query.Page, error) {
	var page query.Page
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &page.Limit}, {"offset", &page.Offset}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page, &validationError{message: p.name + " must be an integer"}
		}
		*p.dst = n
	}
	return page, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: APIError{Code: code, Message: message}})
}

// writeError maps err onto a status code. Unexpected errors are logged and
// their text is not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", rootMessage(err))
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", rootMessage(err))
	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "conflict", rootMessage(err))
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

// rootMessage returns the message of the innermost domain error, without
// the operation prefixes added while the error bubbled up.
func rootMessage(err error) string {
	var ve *validationError
	if errors.As(err, &ve) {
		return ve.message
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
