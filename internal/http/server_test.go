package httpapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alphabot-ai/tagblog/internal/auth"
	"github.com/alphabot-ai/tagblog/internal/config"
	"github.com/alphabot-ai/tagblog/internal/rate"
	"github.com/alphabot-ai/tagblog/internal/store/sqlite"
)

type allowAllLimiter struct{}

func (a allowAllLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	return true, 0
}

type testServer struct {
	*Server
	st   *sqlite.Store
	logs *bytes.Buffer
}

func newTestServer(t *testing.T, limiter rate.Limiter, limits config.RateLimits) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlite.Open(fmt.Sprintf("file:http_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Config{CORSOrigins: []string{"*"}, RateLimits: limits}
	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)
	return &testServer{
		Server: NewServer(st, auth.NewService(st, bcrypt.MinCost), limiter, cfg, logger),
		st:     st,
		logs:   logs,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTokenFromHeader(t *testing.T) {
	cases := []struct {
		header string
		want   string
		err    error
	}{
		{"Token abc", "abc", nil},
		{"token abc", "abc", nil},
		{"Bearer abc", "abc", nil},
		{"  Bearer   abc ", "abc", nil},
		{"", "", auth.ErrMissingToken},
		{"Basic dXNlcjpwYXNz", "", auth.ErrMissingToken},
		{"Token", "", auth.ErrInvalidToken},
		{"Token a b", "", auth.ErrInvalidToken},
	}
	for _, tc := range cases {
		got, err := tokenFromHeader(tc.header)
		assert.Equal(t, tc.want, got, tc.header)
		assert.ErrorIs(t, err, tc.err, tc.header)
		if tc.err == nil {
			assert.NoError(t, err, tc.header)
		}
	}
}

func TestReadJSON(t *testing.T) {
	var req postRequest
	require.NoError(t, readJSON(io.NopCloser(strings.NewReader("")), &req))
	assert.Nil(t, req.Title)

	require.NoError(t, readJSON(io.NopCloser(strings.NewReader(`{"title":"t","author":5,"hashtags":[]}`)), &req))
	require.NotNil(t, req.Title)
	assert.Equal(t, "t", *req.Title)
	require.NotNil(t, req.Hashtags)
	assert.Empty(t, *req.Hashtags)

	err := readJSON(io.NopCloser(strings.NewReader(`{"title":`)), &req)
	var jerr *jsonError
	require.ErrorAs(t, err, &jerr)
	assert.True(t, strings.HasPrefix(jerr.Error(), "JSON parse error - "))
}

func TestWriteRateLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimit(rec, 1500*time.Millisecond)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	body := decode[map[string]any](t, rec)
	assert.Equal(t, msgThrottled, body["detail"])
	assert.Equal(t, float64(2), body["retry_after"])
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, allowAllLimiter{}, config.RateLimits{})
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, rec))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t, allowAllLimiter{}, config.RateLimits{})

	rec := ts.do(t, http.MethodGet, "/api/nope/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNotFound, decode[map[string]string](t, rec)["detail"])

	rec = ts.do(t, http.MethodDelete, "/api/hashtags/", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	ts := newTestServer(t, allowAllLimiter{}, config.RateLimits{})
	rec := ts.do(t, http.MethodGet, "/api/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "2.0", doc["swagger"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/posts/")
	assert.Contains(t, paths, "/api/auth/login/")

	info, ok := doc["info"].(map[string]any)
	require.True(t, ok)
	desc, _ := info["description"].(string)
	assert.True(t, strings.HasPrefix(desc, "Posts, comments and hashtags with token authentication.\n"))
	assert.Contains(t, desc, "## Authentication")
	assert.Contains(t, desc, "## Hashtags")
	assert.Contains(t, desc, "`Authorization: Bearer TOKEN` is accepted as well.")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, allowAllLimiter{}, config.RateLimits{})
	req := httptest.NewRequest(http.MethodOptions, "/api/posts/", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestPanicBecomes500(t *testing.T) {
	logs := &bytes.Buffer{}
	h := hlog.NewHandler(zerolog.New(logs))(recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, decode[map[string]string](t, rec)["detail"])
	assert.Contains(t, logs.String(), "handler panic")
}
