package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimit   ErrorKind = "rate_limit"
	KindTimeout     ErrorKind = "timeout"
	KindMalformed   ErrorKind = "malformed"
	KindUnavailable ErrorKind = "unavailable"
)

// ProviderError is returned when a completion provider fails.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Code     int // HTTP status code when one was received
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %s: %d %s", e.Provider, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}

const maxErrorBody = 512

func statusError(provider string, code int, body []byte) *ProviderError {
	kind := KindUnavailable
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = KindTimeout
	}
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Code:     code,
		Message:  fmt.Sprintf("API error (%d): %s", code, msg),
	}
}

func transportError(provider string, err error) *ProviderError {
	kind := KindUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Message:  "request failed",
		Err:      err,
	}
}

// requestError reports a request that could not be built, such as one
// against an unparseable base URL.
func requestError(provider, msg string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindUnavailable,
		Message:  msg,
		Err:      err,
	}
}

func malformedError(provider, msg string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindMalformed,
		Message:  msg,
		Err:      err,
	}
}
