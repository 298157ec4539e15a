// Package crawlerrors normalizes failures from the upstream crawl service
// into a stable taxonomy with a retryability verdict.
package crawlerrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind identifies a failure class.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindAuth       Kind = "AUTH"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindServer     Kind = "SERVER"
	KindClient     Kind = "CLIENT"
	KindNetwork    Kind = "NETWORK"
	KindTimeout    Kind = "TIMEOUT"
	KindUnknown    Kind = "UNKNOWN"
)

// Mode controls how much raw detail a classified error carries.
type Mode string

const (
	ModeProduction  Mode = "production"
	ModeDevelopment Mode = "development"
)

// Classified is a failure normalized into the taxonomy. It is created once
// per failure and never mutated afterwards.
type Classified struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Retryable  bool
	Details    string
}

func (e *Classified) Error() string {
	return e.Message
}

// StatusError is the carrier produced by the HTTP layer for non-2xx
// upstream responses. Body is capped at write time, not here.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %s", e.Status)
}

var timeoutPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

// Classify inspects err and produces a Classified error. An error that is
// already Classified is returned unchanged, so classification happens
// exactly once, at the point closest to the failure's origin.
func Classify(err error, context string, mode Mode) *Classified {
	var classified *Classified
	if errors.As(err, &classified) {
		return classified
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr, context, mode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Classified{
			Kind:      KindTimeout,
			Message:   buildMessage(context, "request timed out"),
			Retryable: true,
			Details:   detailsForMode(mode, 0, err.Error()),
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Classified{
			Kind:      KindNetwork,
			Message:   buildMessage(context, "network error contacting upstream"),
			Retryable: true,
			Details:   detailsForMode(mode, 0, err.Error()),
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Classified{
			Kind:      KindNetwork,
			Message:   buildMessage(context, "network error contacting upstream"),
			Retryable: true,
			Details:   detailsForMode(mode, 0, err.Error()),
		}
	}

	if err != nil && containsAnyPattern(err.Error(), timeoutPatterns) {
		return &Classified{
			Kind:      KindTimeout,
			Message:   buildMessage(context, "request timed out"),
			Retryable: true,
			Details:   detailsForMode(mode, 0, err.Error()),
		}
	}

	message := "unknown error"
	var details string
	if err != nil {
		message = err.Error()
		details = err.Error()
	}
	return &Classified{
		Kind:      KindUnknown,
		Message:   buildMessage(context, message),
		Retryable: false,
		Details:   detailsForMode(mode, 0, details),
	}
}

func classifyStatus(statusErr *StatusError, context string, mode Mode) *Classified {
	kind := KindClient
	retryable := false
	switch {
	case statusErr.StatusCode == 400 || statusErr.StatusCode == 422:
		kind = KindValidation
	case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
		kind = KindAuth
	case statusErr.StatusCode == 429:
		kind = KindRateLimit
		retryable = true
	case statusErr.StatusCode >= 500:
		kind = KindServer
		retryable = true
	}
	return &Classified{
		Kind:       kind,
		HTTPStatus: statusErr.StatusCode,
		Message:    buildMessage(context, upstreamMessage(statusErr)),
		Retryable:  retryable,
		Details:    detailsForMode(mode, statusErr.StatusCode, statusErr.Body),
	}
}

// upstreamMessage pulls a human-readable message out of an upstream error
// body, falling back to the HTTP status line.
func upstreamMessage(statusErr *StatusError) string {
	for _, key := range []string{"error", "message", "detail"} {
		if msg := jsonStringField(statusErr.Body, key); msg != "" {
			return msg
		}
	}
	return statusErr.Error()
}

func buildMessage(context, message string) string {
	context = strings.TrimSpace(context)
	if context == "" {
		return message
	}
	return context + ": " + message
}

// detailsForMode strips raw payloads in production so that response bodies
// never leak into caller-visible diagnostics.
func detailsForMode(mode Mode, status int, raw string) string {
	if mode != ModeDevelopment {
		if status > 0 {
			return fmt.Sprintf("status %d", status)
		}
		return ""
	}
	return raw
}

func jsonStringField(body, key string) string {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return ""
	}
	if value, ok := decoded[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func containsAnyPattern(text string, patterns []string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
