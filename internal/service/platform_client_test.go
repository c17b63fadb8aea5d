package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		header    http.Header
		code      retry.Code
		retryable bool
	}{
		{name: "ok", status: 200, body: `{"id":"1"}`},
		{name: "too many requests", status: 429, body: `{}`, header: http.Header{"Retry-After": {"120"}}, code: retry.CodeTooManyRequests, retryable: true},
		{name: "unavailable", status: 503, body: ``, code: retry.CodeServiceUnavailable, retryable: true},
		{name: "server error", status: 500, body: `oops`, code: retry.CodeServerError, retryable: true},
		{name: "gateway timeout", status: 504, body: ``, code: retry.CodeTimeout, retryable: true},
		{name: "unauthorized", status: 401, body: `{"error":"bad token"}`, code: retry.CodeAuthenticationFailed},
		{name: "forbidden", status: 403, body: `{}`, code: retry.CodePermissionDenied},
		{name: "not found", status: 404, body: `{}`, code: retry.CodeNotFound},
		{name: "bad request", status: 400, body: `{"message":"caption too long"}`, code: retry.CodeBadRequest},
		{name: "throttle text", status: 400, body: `{"message":"You are being throttled"}`, code: retry.CodeRateLimit, retryable: true},
		{name: "graph rate limit", status: 400, body: `{"error":{"message":"Application request limit reached","code":4}}`, code: retry.CodeRateLimit, retryable: true},
		{name: "graph expired token", status: 400, body: `{"error":{"message":"Session has expired","code":190}}`, code: retry.CodeAuthenticationFailed},
		{name: "graph permission", status: 400, body: `{"error":{"message":"Requires pages_manage_posts","code":200}}`, code: retry.CodePermissionDenied},
		{name: "graph transient", status: 400, body: `{"error":{"message":"Please retry","code":2,"is_transient":true}}`, code: retry.CodeServerError, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			perr := classifyResponse(tt.status, []byte(tt.body), header)
			if tt.code == "" {
				assert.Nil(t, perr)
				return
			}
			require.NotNil(t, perr)
			assert.Equal(t, tt.code, perr.Code)
			assert.True(t, perr.Sent)
			assert.Equal(t, tt.retryable, retry.Classify(perr.Code).Retryable)
		})
	}
}

func TestClassifyResponseRetryAfter(t *testing.T) {
	perr := classifyResponse(429, nil, http.Header{"Retry-After": {"90"}})
	require.NotNil(t, perr)
	assert.Equal(t, 90*time.Second, perr.RetryAfter)
}

func TestClassifyResponseKeepsStoredBodyValidText(t *testing.T) {
	body := strings.Repeat("a", maxResponseSnippet-1) + "è più"
	perr := classifyResponse(400, []byte(body), nil)
	require.NotNil(t, perr)
	assert.True(t, utf8.ValidString(perr.Response))
	assert.Equal(t, strings.Repeat("a", maxResponseSnippet-1), perr.Response)

	assert.Equal(t, "ok\uFFFDx", snippet([]byte("ok\xffx\x00")))
	assert.Equal(t, "è più", snippet([]byte("è più")))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "nested", errorMessage(400, []byte(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "plain", errorMessage(400, []byte(`{"error":"plain"}`)))
	assert.Equal(t, "top", errorMessage(400, []byte(`{"message":"top"}`)))
	assert.Equal(t, "HTTP 502: gateway", errorMessage(502, []byte(`gateway`)))
	assert.Equal(t, "HTTP 500", errorMessage(500, nil))
}

func TestPlatformClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newPlatformClient("test", 20*time.Millisecond)
	_, err := c.get(context.Background(), srv.URL)
	require.Error(t, err)

	perr := retry.AsError(err)
	assert.Equal(t, retry.CodeTimeout, perr.Code)
	assert.True(t, perr.Sent)
}

func TestPlatformClientConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newPlatformClient("test", time.Second)
	_, err := c.get(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, retry.CodeConnectionFailed, retry.AsError(err).Code)
}

func TestPlatformClientBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newPlatformClient("test", time.Second)
	for i := 0; i < 10; i++ {
		_, _ = c.get(context.Background(), srv.URL)
	}

	before := atomic.LoadInt32(&hits)
	_, err := c.get(context.Background(), srv.URL)
	require.Error(t, err)

	perr := retry.AsError(err)
	assert.Equal(t, retry.CodeServiceUnavailable, perr.Code)
	assert.False(t, perr.Sent)
	assert.Equal(t, before, atomic.LoadInt32(&hits))
}
