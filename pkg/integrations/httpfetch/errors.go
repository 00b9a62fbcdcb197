package httpfetch

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidFetcherConfig = errors.New("invalid fetcher config")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrUpstream             = errors.New("upstream error")
	ErrDecode               = errors.New("failed to decode response")
)

// RateLimitError is returned once the dedicated 429 retry budget is spent.
// Callers must not retry it.
type RateLimitError struct {
	Label    string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded after %d attempts", e.Label, e.Attempts)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// HTTPError is a non-2xx, non-429 upstream response. It is never retried.
type HTTPError struct {
	Label  string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Label, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Label, e.Status, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrUpstream
}

type DecodeError struct {
	Label string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Label, ErrDecode, e.Err)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err must not be retried by an outer layer.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrDecode)
}
