package devserver

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "sl.test-token"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	config.DataDir = t.TempDir()
	config.Token = testToken
	srv, err := New(config)
	require.NoError(t, err)
	t.Cleanup(srv.store.Close)
	return srv
}

func call(t *testing.T, h http.Handler, endpoint string, arg string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	if arg != "" {
		req.Header.Set(HeaderAPIArg, arg)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestServer_ConfigValidation(t *testing.T) {
	_, err := New(&Config{Token: "x"})
	assert.ErrorIs(t, err, ErrNoDataDir)

	_, err = New(&Config{DataDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = New(&Config{DataDir: t.TempDir(), Token: "x", RateLimit: "lots"})
	assert.Error(t, err)
}

func TestServer_SessionProtocol(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.Handler()

	w := call(t, h, "/2/files/upload_session/start", `{"close":false}`, []byte("0123456789"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode[StartResult](t, w)
	require.NotEmpty(t, start.SessionID)

	w = call(t, h, "/2/files/upload_session/append_v2", `{"cursor":{"session_id":"`+start.SessionID+`","offset":10},"close":false}`, []byte("abcdefghij"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "null", w.Body.String())

	w = call(t, h, "/2/files/upload_session/finish",
		`{"cursor":{"session_id":"`+start.SessionID+`","offset":20},"commit":{"path":"/café/file.bin","mode":"add","autorename":false,"client_modified":"2017-03-28T19:50:58Z","mute":false}}`,
		nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	meta := decode[FileMetadata](t, w)
	assert.Equal(t, "/café/file.bin", meta.PathDisplay)
	assert.EqualValues(t, 20, meta.Size)

	got, err := os.ReadFile(srv.Store().LocalPath("/café/file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdefghij", string(got))
}

func TestServer_Errors(t *testing.T) {
	srv := newTestServer(t, &Config{MaxChunkSize: 8})
	h := srv.Handler()

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/2/files/upload", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, SummaryInvalidToken, decode[APIError](t, w).ErrorSummary)
	})

	t.Run("missing arg", func(t *testing.T) {
		w := call(t, h, "/2/files/upload", "", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), HeaderAPIArg)
	})

	t.Run("bad json", func(t *testing.T) {
		w := call(t, h, "/2/files/upload", "{nope", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "could not decode input as JSON")
	})

	t.Run("disallowed name", func(t *testing.T) {
		w := call(t, h, "/2/files/upload", `{"path":"/x/.DS_Store"}`, []byte("x"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, SummaryDisallowedName, decode[APIError](t, w).ErrorSummary)
	})

	t.Run("unknown session", func(t *testing.T) {
		w := call(t, h, "/2/files/upload_session/append_v2", `{"cursor":{"session_id":"nope","offset":0}}`, []byte("x"))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, SummaryNotFound, decode[APIError](t, w).ErrorSummary)
	})

	t.Run("chunk too large", func(t *testing.T) {
		w := call(t, h, "/2/files/upload", `{"path":"/big.bin"}`, bytes.Repeat([]byte("x"), 9))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, SummaryTooLarge, decode[APIError](t, w).ErrorSummary)
	})
}

func TestServer_RateLimit(t *testing.T) {
	srv := newTestServer(t, &Config{RateLimit: "2-M"})
	h := srv.Handler()

	codes := make([]int, 0, 3)
	for range 3 {
		w := call(t, h, "/2/files/upload_session/start", `{}`, []byte("x"))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
