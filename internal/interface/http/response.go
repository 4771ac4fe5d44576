package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

// respond writes a success envelope.
func respond(c *gin.Context, status int, data any) {
	respondWithMeta(c, status, data, nil)
}

// respondWithMeta writes a success envelope with custom metadata.
func respondWithMeta(c *gin.Context, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: handlers.GetRequestID(c),
	})
}

// respondError maps err to a status code and writes an error envelope.
func respondError(c *gin.Context, err error) {
	respondErrorWithData(c, err, nil)
}

// respondErrorWithData writes an error envelope that still carries data, such
// as the rejected transition or the session state after a failed action.
func respondErrorWithData(c *gin.Context, err error, data any) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	_ = c.Error(err)

	c.JSON(status, JSONResponse{
		Success:   false,
		Data:      data,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: handlers.GetRequestID(c),
	})
}

// respondErrorCode writes an error envelope with an explicit code.
func respondErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: handlers.GetRequestID(c),
	})
}

// respondBindError reports a malformed or invalid request body.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		respondErrorCode(c, http.StatusBadRequest, "invalid_input", bindMessage(verrs[0]))
		return
	}
	respondErrorCode(c, http.StatusBadRequest, "invalid_request", "request body is not valid JSON: "+err.Error())
}

var registerFieldNames sync.Once

// useJSONFieldNames makes binding errors name fields the way clients send them.
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}

func bindMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// classifyError maps the domain error taxonomy to HTTP.
func classifyError(err error) (int, string) {
	switch {
	case shared.IsInvalidTransition(err):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, shared.ErrSelectionStale):
		return http.StatusConflict, "selection_stale"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrClassificationInputInvalid):
		return http.StatusUnprocessableEntity, "classification_input_invalid"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_input"
	case shared.IsDataUnavailable(err):
		return http.StatusServiceUnavailable, "data_unavailable"
	case errors.Is(err, shared.ErrWriteFailed):
		return http.StatusBadGateway, "write_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
