package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	journeydomain "github.com/smallbiznis/journeys/internal/journey/domain"
	userstatusdomain "github.com/smallbiznis/journeys/internal/userstatus/domain"
	"gorm.io/gorm"
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
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// fieldRules turns domain validation sentinels into a single field error.
// The sentinel text is the error code.
var fieldRules = []struct {
	err     error
	field   string
	message string
}{
	{journeydomain.ErrInvalidName, "name", "name is required"},
	{journeydomain.ErrInvalidDistance, "distanceKm", "distance must be between 0 and 99999.99"},
	{journeydomain.ErrInvalidTimeRange, "arrivalTime", "arrival time must not be before start time"},
	{journeydomain.ErrInvalidTransport, "transportType", "unknown transport type"},
	{journeydomain.ErrInvalidOwner, "ownerId", "owner is required"},
	{journeydomain.ErrCannotFavoriteOwn, "journeyId", "cannot favorite your own journey"},
	{userstatusdomain.ErrInvalidStatus, "status", "unknown user status"},
}

// statusRules are checked in order after validation.
var statusRules = []struct {
	status  int
	kind    string
	message string
	errs    []error
}{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{ErrUnauthorized}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{ErrForbidden}},
	{http.StatusConflict, "conflict", "conflict", []error{journeydomain.ErrAlreadyFavorited}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound,
		journeydomain.ErrNotFound,
		journeydomain.ErrAlreadyDeleted,
		userstatusdomain.ErrUserNotFound,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrTooManyRequests}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{ErrServiceUnavailable}},
}

// ErrorHandlingMiddleware renders the last error recorded by AbortWithError
// unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
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
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	for _, rule := range fieldRules {
		if errors.Is(err, rule.err) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: rule.field, Code: rule.err.Error(), Message: rule.message}},
			}
		}
	}
	for _, rule := range statusRules {
		for _, target := range rule.errs {
			if errors.Is(err, target) {
				return rule.status, errorPayload{Type: rule.kind, Message: rule.message}
			}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

// classifyErrorForLog feeds the request logger a low-cardinality type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
