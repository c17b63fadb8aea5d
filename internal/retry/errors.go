package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code identifies the kind of a publish failure.
type Code string

const (
	CodeSecurityViolation    Code = "security_violation"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeMissingCredential    Code = "missing_credential"
	CodePermissionDenied     Code = "permission_denied"
	CodeValidation           Code = "validation_error"
	CodeInvalidChannel       Code = "invalid_channel"
	CodeBadRequest           Code = "bad_request"
	CodeNotFound             Code = "not_found"
	CodeNoMedia              Code = "no_media"
	CodeFileNotFound         Code = "file_not_found"

	CodeRateLimit          Code = "rate_limit"
	CodeRateLimited        Code = "rate_limited"
	CodeThrottling         Code = "throttling"
	CodeTooManyRequests    Code = "too_many_requests"
	CodeNetworkError       Code = "network_error"
	CodeTimeout            Code = "timeout"
	CodeServerError        Code = "server_error"
	CodeServiceUnavailable Code = "service_unavailable"
	CodeConnectionFailed   Code = "connection_failed"

	CodeUnknown Code = "unknown"
)

// Error is a classified publish failure. Adapters return it instead of raw
// transport errors so the dispatcher can decide what to do next.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Response   string
	Header     http.Header
	// Sent is true when the request reached the platform.
	Sent bool
	Err  error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError converts any error into a classified one. Context expiry maps to
// timeout, everything unrecognised to unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, err)
	}
	return Wrap(CodeUnknown, err)
}
