package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/comment-moderator/internal/logging"
	"github.com/whisper/comment-moderator/internal/protocol"
	"github.com/whisper/comment-moderator/internal/service"
)

type checkerFunc func(ctx context.Context, req protocol.CheckRequest) (protocol.CheckResult, error)

func (f checkerFunc) Check(ctx context.Context, req protocol.CheckRequest) (protocol.CheckResult, error) {
	return f(ctx, req)
}

func verdict(ok bool, reason string) checkerFunc {
	return func(_ context.Context, req protocol.CheckRequest) (protocol.CheckResult, error) {
		return protocol.CheckResult{
			CommentID:     req.CommentID,
			IsAppropriate: ok,
			Reason:        reason,
			Stage:         "model",
			DecisionID:    "d-1",
		}, nil
	}
}

func newTestServer(c Checker, opts ...Option) http.Handler {
	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"https://example.com"}
	return New(cfg, c, logging.NewNop(), opts...).Handler()
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/moderate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestModerate_OK(t *testing.T) {
	h := newTestServer(verdict(false, "Offensive."))

	rec := post(t, h, `{"text":"you are awful"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res protocol.CheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.IsAppropriate)
	assert.Equal(t, "Offensive.", res.Reason)
}

func TestModerate_BadRequests(t *testing.T) {
	h := newTestServer(verdict(true, ""))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"text":`, http.StatusBadRequest},
		{"empty text", `{"text":"   "}`, http.StatusBadRequest},
		{"bad comment id", `{"comment_id":"a.b","text":"hi"}`, http.StatusBadRequest},
		{"too large", `{"text":"` + strings.Repeat("a", protocol.MaxRequestBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var resp protocol.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, protocol.CodeBadRequest, resp.Code)
		})
	}
}

func TestModerate_RateLimited(t *testing.T) {
	h := newTestServer(checkerFunc(func(context.Context, protocol.CheckRequest) (protocol.CheckResult, error) {
		return protocol.CheckResult{}, service.ErrRateLimited
	}))

	rec := post(t, h, `{"author_id":"u1","text":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestModerate_InternalError(t *testing.T) {
	h := newTestServer(checkerFunc(func(context.Context, protocol.CheckRequest) (protocol.CheckResult, error) {
		return protocol.CheckResult{}, errors.New("boom")
	}))

	rec := post(t, h, `{"text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestHealth(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestServer(verdict(true, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	})

	t.Run("failing dependency", func(t *testing.T) {
		h := newTestServer(verdict(true, ""),
			WithHealthCheck("nats", func(context.Context) error { return nil }),
			WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
		)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "ok", resp.Checks["nats"])
		assert.Equal(t, "connection refused", resp.Checks["redis"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(verdict(true, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moderator_in_flight")
}

func TestCORS_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/moderate", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()

	newTestServer(verdict(true, "")).ServeHTTP(rec, req)
	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
