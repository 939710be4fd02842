// Package inference holds the provider error taxonomy shared by the
// synchronous extraction core and the batch adapters.
package inference

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError carries the HTTP status code a provider returned. Adapters
// normalize their SDK or transport errors into this type so the retry engine
// can classify without knowing the provider.
type ProviderError struct {
	Code    int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error (status %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusCode implements the status-carrying error convention.
func (e *ProviderError) StatusCode() int {
	return e.Code
}

// NewProviderError wraps err with the provider's status code.
func NewProviderError(code int, message string, err error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Err: err}
}

// StatusOf extracts a provider status code from err. Priority order: an
// explicit *ProviderError, then any error exposing StatusCode(), then any
// error exposing HTTPStatusCode() (AWS smithy-style responses).
func StatusOf(err error) (int, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	var hc interface{ HTTPStatusCode() int }
	if errors.As(err, &hc) {
		return hc.HTTPStatusCode(), true
	}
	return 0, false
}

var cacheExpirySubstrings = []string{"not found", "expired", "invalid"}

// IsCacheExpired reports whether err indicates the server-side prompt cache
// referenced by the request no longer exists. A structured 400/404 whose
// message names the cache resource is preferred; plain substring matching is
// the last resort.
func IsCacheExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "cache") && !strings.Contains(msg, "cachedcontent") {
		return false
	}
	if code, ok := StatusOf(err); ok && (code == 400 || code == 404) {
		return true
	}
	for _, s := range cacheExpirySubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
