package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/notify"
)

type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

type Classification struct {
	Severity  notify.Severity
	Retryable bool
}

var retryableCodes = map[Code]bool{
	CodeRateLimit:          true,
	CodeRateLimited:        true,
	CodeThrottling:         true,
	CodeTooManyRequests:    true,
	CodeNetworkError:       true,
	CodeTimeout:            true,
	CodeServerError:        true,
	CodeServiceUnavailable: true,
	CodeConnectionFailed:   true,
}

// Classify maps a failure code to its severity and retryability. Unknown
// codes are not retried but are kept at medium severity for investigation.
func Classify(code Code) Classification {
	switch code {
	case CodeSecurityViolation:
		return Classification{Severity: notify.SeverityCritical}
	case CodeAuthenticationFailed, CodeMissingCredential, CodePermissionDenied:
		return Classification{Severity: notify.SeverityHigh}
	case CodeValidation, CodeInvalidChannel, CodeBadRequest:
		return Classification{Severity: notify.SeverityLow}
	case CodeNotFound, CodeNoMedia, CodeFileNotFound:
		return Classification{Severity: notify.SeverityMedium}
	case CodeRateLimit, CodeRateLimited, CodeThrottling, CodeTooManyRequests:
		return Classification{Severity: notify.SeverityLow, Retryable: true}
	case CodeNetworkError, CodeTimeout, CodeServerError, CodeServiceUnavailable, CodeConnectionFailed:
		return Classification{Severity: notify.SeverityMedium, Retryable: true}
	default:
		return Classification{Severity: notify.SeverityMedium}
	}
}

// StrategyFor picks the backoff family for a failure. Rate limits back off
// exponentially, transient faults linearly, anything else waits a fixed delay.
func StrategyFor(code Code) Strategy {
	switch code {
	case CodeRateLimit, CodeRateLimited, CodeThrottling, CodeTooManyRequests:
		return StrategyExponential
	case CodeNetworkError, CodeTimeout, CodeConnectionFailed, CodeServerError, CodeServiceUnavailable:
		return StrategyLinear
	}
	return StrategyFixed
}

type Policy struct {
	BaseDelay  time.Duration
	FixedDelay time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	// Jitter is the maximum fraction added on top of the computed delay.
	Jitter float64
	rand   func() float64
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:  2 * time.Second,
		FixedDelay: 10 * time.Second,
		MaxDelay:   time.Hour,
		MaxRetries: 5,
		Jitter:     0.1,
	}
}

// WithoutJitter returns a copy of p that never randomises delays.
func (p Policy) WithoutJitter() Policy {
	p.rand = func() float64 { return 0 }
	return p
}

// Delay is the un-jittered backoff for the n-th retry, capped at MaxDelay.
func (p Policy) Delay(strategy Strategy, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	var d time.Duration
	switch strategy {
	case StrategyExponential:
		exp := math.Pow(2, float64(retryCount-1))
		d = time.Duration(float64(p.BaseDelay) * exp)
		if exp > float64(p.MaxDelay/p.BaseDelay) {
			d = p.MaxDelay
		}
	case StrategyLinear:
		d = p.BaseDelay * time.Duration(retryCount)
	default:
		d = p.FixedDelay
	}
	if d > p.MaxDelay || d < 0 {
		d = p.MaxDelay
	}
	return d
}

// Backoff is Delay plus up to Jitter of random extra time, still capped.
func (p Policy) Backoff(strategy Strategy, retryCount int) time.Duration {
	d := p.Delay(strategy, retryCount)
	r := p.rand
	if r == nil {
		r = rand.Float64
	}
	d += time.Duration(float64(d) * p.Jitter * r())
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// NextAttempt schedules the n-th retry. A platform or limiter hint wins when
// it asks for a longer wait than the computed backoff.
func (p Policy) NextAttempt(now time.Time, strategy Strategy, retryCount int, retryAfter time.Duration) time.Time {
	d := p.Backoff(strategy, retryCount)
	if retryAfter > d {
		d = retryAfter
	}
	return now.Add(d)
}

// ShouldRetry is false for non-retryable failures and once the context has
// used up MaxRetries.
func (p Policy) ShouldRetry(err *Error, rc models.RetryContext) bool {
	if err == nil {
		return false
	}
	if !Classify(err.Code).Retryable {
		return false
	}
	return rc.RetryCount < p.MaxRetries
}
