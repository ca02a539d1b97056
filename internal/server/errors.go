package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	inventorydomain "github.com/smallbiznis/mrpledger/internal/inventory/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details any               `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var shortage *inventorydomain.InsufficientInventoryError
	if errors.As(err, &shortage) {
		return http.StatusConflict, errorPayload{
			Type:    "insufficient_inventory",
			Message: shortage.Error(),
			Code:    "insufficient_inventory",
			Details: shortage,
		}
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return mapAppError(appErr)
	}

	for _, m := range sentinelErrors {
		if errors.Is(err, m.err) {
			return m.status, errorPayload{Type: m.typ, Message: m.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

var sentinelErrors = []struct {
	err     error
	status  int
	typ     string
	message string
}{
	{ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "too many requests"},
	{ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
}

// appErrorStatus maps each apperror kind to its HTTP status and payload type.
// Kinds missing here are storage failures and keep their detail in the logs.
var appErrorStatus = map[apperror.Kind]struct {
	status int
	typ    string
}{
	apperror.KindNotFound:      {http.StatusNotFound, "not_found"},
	apperror.KindConflict:      {http.StatusConflict, "conflict"},
	apperror.KindConfiguration: {http.StatusUnprocessableEntity, "configuration_error"},
}

func mapAppError(err *apperror.Error) (int, errorPayload) {
	if err.Kind == apperror.KindValidation {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Code:    err.Code,
			Errors: []ValidationError{{
				Field:   validationErrorField(err.Code),
				Code:    err.Code,
				Message: err.Message,
			}},
		}
	}
	if m, ok := appErrorStatus[err.Kind]; ok {
		return m.status, errorPayload{Type: m.typ, Message: err.Message, Code: err.Code}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "transaction_error",
		Message: "the operation was rolled back",
		Code:    err.Code,
	}
}

// classifyErrorForLog feeds the request logger a low-cardinality type and
// code for the last handler error.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch {
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	case strings.HasPrefix(code, "missing_"):
		return strings.TrimPrefix(code, "missing_")
	default:
		return ""
	}
}
