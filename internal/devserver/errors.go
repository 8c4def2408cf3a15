package devserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	SummaryMalformedPath   = "path/malformed_path/"
	SummaryDisallowedName  = "path/disallowed_name/"
	SummaryConflict        = "path/conflict/file/"
	SummaryNotFound        = "lookup_failed/not_found/"
	SummaryIncorrectOffset = "lookup_failed/incorrect_offset/"
	SummaryTooLarge        = "payload_too_large/"
	SummaryInvalidToken    = "invalid_access_token/"
	SummaryRateLimited     = "too_many_requests/"
	SummaryInternal        = "internal_error/"
)

// APIError is the error body returned for every failed request
type APIError struct {
	ErrorSummary string `json:"error_summary"`
	UserMessage  string `json:"user_message,omitempty"`
}

// routeError is a failure with the http status it maps to
type routeError struct {
	status  int
	summary string
	message string
}

func (e *routeError) Error() string {
	if e.message == "" {
		return e.summary
	}
	return fmt.Sprintf("%s %s", e.summary, e.message)
}

func conflictError(summary string, format string, args ...any) *routeError {
	return &routeError{status: http.StatusConflict, summary: summary, message: fmt.Sprintf(format, args...)}
}

func internalError(err error) *routeError {
	return &routeError{status: http.StatusInternalServerError, summary: SummaryInternal, message: err.Error()}
}

func abortWithError(ctx *gin.Context, err *routeError) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(err.status, APIError{
		ErrorSummary: err.summary,
		UserMessage:  err.message,
	})
}

// abortBadInput mirrors how the real api rejects an undecodable argument: plain text, status 400
func abortBadInput(ctx *gin.Context, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.String(http.StatusBadRequest, "Error in call to API function %q: %s", ctx.FullPath(), err)
}
