package reliability

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// StatusOverloaded is the non-standard status Anthropic uses when the API is overloaded.
const StatusOverloaded = 529

// IsThrottlingHTTPStatus classifies status codes that signal provider-side throttling.
func IsThrottlingHTTPStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, StatusOverloaded:
		return true
	default:
		return false
	}
}

// ThrottleError marks a provider failure as a rate-limit signal that may be retried.
type ThrottleError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ThrottleError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s throttled (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s throttled (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ThrottleError) Unwrap() error { return e.Err }

// IsThrottled reports whether err carries a ThrottleError anywhere in its chain.
func IsThrottled(err error) bool {
	var te *ThrottleError
	return errors.As(err, &te)
}

// JitteredBackoff returns (2^attempt + jitter) * unit. jitter is expected in [0, 1).
func JitteredBackoff(attempt int, unit time.Duration, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	factor := math.Pow(2, float64(attempt)) + jitter
	return time.Duration(factor * float64(unit))
}
