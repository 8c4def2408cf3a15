package dbxsdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/openmined/treeup/internal/remote"
)

var (
	ErrNoAccessToken = errors.New("sdk: access token missing")
	ErrNoServerURL   = errors.New("sdk: server url missing")
)

// error_summary prefixes the remote uses for reserved or unusable names
var disallowedSummaries = []string{"disallowed_name", "malformed_path"}

// APIError is an error response from the upload API.
// The summary is a slash separated tag path, e.g. `path/conflict/file/..`
type APIError struct {
	StatusCode   int    `json:"-"`
	ErrorSummary string `json:"error_summary"`
	UserMessage  string `json:"user_message,omitempty"`
}

func (e *APIError) ErrorCode() string    { return e.ErrorSummary }
func (e *APIError) ErrorMessage() string { return e.UserMessage }

func (e *APIError) Error() string {
	if e.UserMessage != "" {
		return fmt.Sprintf("api error: %d %s - %s", e.StatusCode, e.ErrorSummary, e.UserMessage)
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.ErrorSummary)
}

// Unwrap maps the error onto the remote error kinds.
func (e *APIError) Unwrap() error {
	for _, s := range disallowedSummaries {
		if strings.Contains(e.ErrorSummary, s) {
			return remote.ErrDisallowedName
		}
	}
	return remote.ErrRejected
}

// RateLimited reports whether the remote asked us to slow down.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func newAPIError(resp *req.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, _ := resp.ToBytes()
	if err := jsonUnmarshal(body, apiErr); err != nil || apiErr.ErrorSummary == "" {
		// non-json bodies, e.g. 400s for a malformed header
		apiErr.ErrorSummary = strings.TrimSpace(string(body))
		if apiErr.ErrorSummary == "" {
			apiErr.ErrorSummary = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		return fmt.Errorf("%s %w", operation, newAPIError(resp))
	}

	return nil
}
