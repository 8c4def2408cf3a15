package dbxsdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/treeup/internal/remote"
	"github.com/openmined/treeup/internal/utils"
	"github.com/openmined/treeup/internal/version"
)

const (
	contentTypeOctetStream = "application/octet-stream"

	retryCount      = 3
	retryMinBackoff = 1 * time.Second
	retryMaxBackoff = 8 * time.Second
)

// Client talks to a Dropbox-compatible content endpoint.
// It implements remote.Storage.
type Client struct {
	client     *req.Client
	baseURL    string
	minBackoff time.Duration
	maxBackoff time.Duration
}

var _ remote.Storage = (*Client)(nil)

// New creates a new upload client
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := req.C().
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonBearerAuthToken(config.AccessToken).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	slog.Debug("upload client", "baseURL", config.BaseURL, "token", utils.MaskSecret(config.AccessToken))

	return &Client{
		client:     client,
		baseURL:    config.BaseURL,
		minBackoff: retryMinBackoff,
		maxBackoff: retryMaxBackoff,
	}, nil
}

// UploadOneshot uploads a file smaller than one chunk in a single request.
func (c *Client) UploadOneshot(ctx context.Context, data []byte, commit *remote.CommitInfo) (*remote.Metadata, error) {
	var meta fileMetadata
	if err := c.upload(ctx, v2Upload, newCommitArg(commit), data, &meta, false); err != nil {
		return nil, err
	}
	return meta.toRemote(), nil
}

// SessionStart opens an upload session with the first chunk. It is never retried:
// a retried start could leave a second session behind on the remote.
func (c *Client) SessionStart(ctx context.Context, data []byte) (string, error) {
	var res startResult
	if err := c.upload(ctx, v2SessionStart, startArg{}, data, &res, false); err != nil {
		return "", err
	}
	if res.SessionID == "" {
		return "", fmt.Errorf("session start: %w: empty session id", remote.ErrRejected)
	}
	return res.SessionID, nil
}

func (c *Client) SessionAppend(ctx context.Context, data []byte, cursor *remote.Cursor) error {
	arg := appendArg{Cursor: newCursorArg(cursor)}
	return c.upload(ctx, v2SessionAppend, arg, data, nil, true)
}

func (c *Client) SessionFinish(ctx context.Context, data []byte, cursor *remote.Cursor, commit *remote.CommitInfo) (*remote.Metadata, error) {
	arg := finishArg{Cursor: newCursorArg(cursor), Commit: newCommitArg(commit)}

	var meta fileMetadata
	if err := c.upload(ctx, v2SessionFinish, arg, data, &meta, true); err != nil {
		return nil, err
	}
	return meta.toRemote(), nil
}

// upload sends data as the request body and arg in the Dropbox-API-Arg header.
func (c *Client) upload(ctx context.Context, endpoint string, arg any, data []byte, result any, retry bool) error {
	header, err := encodeArg(arg)
	if err != nil {
		return err
	}

	r := c.client.R().
		SetContext(ctx).
		SetHeader(HeaderAPIArg, header).
		SetContentType(contentTypeOctetStream).
		SetBodyBytes(data)

	if result != nil {
		r.SetSuccessResult(result)
	}

	if retry {
		attempt := 0
		r.SetRetryCount(retryCount).
			SetRetryBackoffInterval(c.minBackoff, c.maxBackoff).
			SetRetryCondition(shouldRetry).
			AddRetryHook(func(resp *req.Response, err error) {
				attempt++
				slog.Warn("retrying upload request", "endpoint", endpoint, "attempt", attempt, "reason", retryReason(resp, err))
			})
	} else {
		r.SetRetryCount(0)
	}

	resp, err := r.Post(endpoint)
	return handleAPIError(resp, err, endpoint)
}

// shouldRetry retries transport failures, rate limiting and server errors.
// Anything else is an answer from the remote that a retry would not change.
func shouldRetry(resp *req.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil || resp.Response == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

func retryReason(resp *req.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil && resp.Response != nil {
		return resp.Status
	}
	return "unknown"
}
