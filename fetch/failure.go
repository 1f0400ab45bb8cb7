package fetch

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FailureClass groups fetch failures by the backoff policy they get.
type FailureClass string

const (
	// ClassRateLimited is HTTP 429: wait Retry-After, no exponential penalty.
	ClassRateLimited FailureClass = "rate_limited"
	// ClassBlocked is HTTP 403: anti-bot defense, 30s * 2^attempt.
	ClassBlocked FailureClass = "blocked"
	// ClassTransient covers timeouts, connection errors and other statuses.
	ClassTransient FailureClass = "transient"
)

const defaultRetryAfter = 60 * time.Second

// Failure is returned once every attempt for a URL has failed. Callers are
// expected to skip the unit of work and carry on.
type Failure struct {
	URL        string
	Class      FailureClass
	Attempts   int
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("fetch %s: %s after %d attempts", f.URL, f.Class, f.Attempts)
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", f.StatusCode)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Classify maps a status code to its failure class. ok is true for 2xx.
func Classify(status int) (class FailureClass, ok bool) {
	switch {
	case status >= 200 && status < 300:
		return "", true
	case status == http.StatusTooManyRequests:
		return ClassRateLimited, false
	case status == http.StatusForbidden:
		return ClassBlocked, false
	default:
		return ClassTransient, false
	}
}

// RetryAfter reads the Retry-After header as seconds or an HTTP date,
// falling back to 60s.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// BlockedBackoff is 30s * 2^attempt with attempt counted from zero.
func BlockedBackoff(attempt int) time.Duration {
	return 30 * time.Second << attempt
}

// TransientBackoff is 2^attempt seconds plus jitter in [0,1) seconds.
func TransientBackoff(attempt int, jitter float64) time.Duration {
	return time.Second<<attempt + time.Duration(jitter*float64(time.Second))
}
