package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
)

const maxResponseSnippet = 2000

// breakerTransport runs every round trip through a circuit breaker so a
// platform that keeps failing is not hammered.
type breakerTransport struct {
	base    http.RoundTripper
	breaker circuitbreaker.CircuitBreaker[*http.Response]
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return failsafe.With[*http.Response](t.breaker).WithContext(req.Context()).Get(func() (*http.Response, error) {
		return t.base.RoundTrip(req)
	})
}

func newBreaker(name string) circuitbreaker.CircuitBreaker[*http.Response] {
	return circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		OnOpen(func(circuitbreaker.StateChangedEvent) {
			slog.Warn("circuit breaker opened", "platform", name)
		}).
		Build()
}

type platformClient struct {
	name string
	http *http.Client
}

func newPlatformClient(name string, timeout time.Duration) *platformClient {
	return &platformClient{
		name: name,
		http: &http.Client{
			Timeout: timeout,
			Transport: &breakerTransport{
				base:    http.DefaultTransport,
				breaker: newBreaker(name),
			},
		},
	}
}

type apiResponse struct {
	Status int
	Body   []byte
	Header http.Header
}

func (c *platformClient) postForm(ctx context.Context, endpoint string, values url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, retry.Wrap(retry.CodeBadRequest, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *platformClient) postJSON(ctx context.Context, endpoint string, payload interface{}, header http.Header) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Wrap(retry.CodeValidation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Wrap(retry.CodeBadRequest, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	return c.do(req)
}

func (c *platformClient) get(ctx context.Context, endpoint string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Wrap(retry.CodeBadRequest, err)
	}
	return c.do(req)
}

// do sends req and returns the response when the platform answered 2xx.
// Every other outcome becomes a classified *retry.Error.
func (c *platformClient) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		perr := classifyTransportError(err)
		perr.Header = resp.Header
		return nil, perr
	}

	out := &apiResponse{Status: resp.StatusCode, Body: body, Header: resp.Header}
	if perr := classifyResponse(resp.StatusCode, body, resp.Header); perr != nil {
		slog.Info("platform request failed", "platform", c.name, "status", resp.StatusCode, "code", perr.Code)
		return out, perr
	}
	return out, nil
}

func classifyTransportError(err error) *retry.Error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return &retry.Error{Code: retry.CodeServiceUnavailable, Message: "circuit breaker open", Err: err}
	}

	perr := &retry.Error{Message: err.Error(), Err: err, Sent: true}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		perr.Code = retry.CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		perr.Code = retry.CodeTimeout
	case errors.Is(err, context.Canceled):
		perr.Code = retry.CodeNetworkError
	default:
		perr.Code = retry.CodeConnectionFailed
	}
	return perr
}

// graphError is the error envelope of the Facebook and Instagram Graph API.
type graphError struct {
	Error *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
	} `json:"error"`
}

var graphRateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true, 80001: true, 80002: true, 80004: true}

func looksThrottled(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "rate_limit") ||
		strings.Contains(s, "throttl") ||
		strings.Contains(s, "too many")
}

// classifyResponse maps a platform response to a failure, or nil on success.
func classifyResponse(status int, body []byte, header http.Header) *retry.Error {
	if status >= 200 && status < 300 {
		return nil
	}

	perr := &retry.Error{
		Message:  errorMessage(status, body),
		Response: snippet(body),
		Header:   header,
		Sent:     true,
	}

	var ge graphError
	if json.Unmarshal(body, &ge) == nil && ge.Error != nil && ge.Error.Code != 0 {
		switch {
		case graphRateLimitCodes[ge.Error.Code]:
			perr.Code = retry.CodeRateLimit
			perr.RetryAfter = retryAfter(header)
			return perr
		case ge.Error.Code == 190:
			perr.Code = retry.CodeAuthenticationFailed
			return perr
		case ge.Error.Code == 10 || (ge.Error.Code >= 200 && ge.Error.Code < 300):
			perr.Code = retry.CodePermissionDenied
			return perr
		case ge.Error.IsTransient:
			perr.Code = retry.CodeServerError
			return perr
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		perr.Code = retry.CodeTooManyRequests
		perr.RetryAfter = retryAfter(header)
	case status == http.StatusServiceUnavailable:
		perr.Code = retry.CodeServiceUnavailable
		perr.RetryAfter = retryAfter(header)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		perr.Code = retry.CodeTimeout
	case status >= 500:
		perr.Code = retry.CodeServerError
	case looksThrottled(string(body)):
		perr.Code = retry.CodeRateLimit
		perr.RetryAfter = retryAfter(header)
	case status == http.StatusUnauthorized:
		perr.Code = retry.CodeAuthenticationFailed
	case status == http.StatusForbidden:
		perr.Code = retry.CodePermissionDenied
	case status == http.StatusNotFound:
		perr.Code = retry.CodeNotFound
	case status == http.StatusUnprocessableEntity:
		perr.Code = retry.CodeValidation
	default:
		perr.Code = retry.CodeBadRequest
	}
	return perr
}

func errorMessage(status int, body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &plain) == nil && plain != "" {
			return plain
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(body) > 0 {
		return fmt.Sprintf("HTTP %d: %s", status, snippet(body))
	}
	return fmt.Sprintf("HTTP %d", status)
}

// retryAfter reads Retry-After as seconds or an HTTP date.
func retryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// snippet returns at most maxResponseSnippet bytes of body as text that a
// Postgres TEXT column accepts: whole runes only, no NUL bytes.
func snippet(body []byte) string {
	if len(body) > maxResponseSnippet {
		cut := maxResponseSnippet
		for cut > 0 && cut > maxResponseSnippet-utf8.UTFMax && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	s := strings.ToValidUTF8(string(body), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}
