package evegateway

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for 401/403 responses. There is no token-aware
// retry at this layer; callers fail fast.
var ErrUnauthorized = errors.New("esi: unauthorized")

// ErrNotFound is returned for 404 responses. Enrichment treats it as terminal.
var ErrNotFound = errors.New("esi: not found")

// ErrErrorBudgetExhausted is returned when the per-process error budget has
// been driven to zero by upstream 429s. Outbound calls are suspended until
// successes restore the budget.
var ErrErrorBudgetExhausted = errors.New("esi: error budget exhausted")

// HTTPError is the typed surface for any other non-2xx upstream status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("esi: upstream returned status %d", e.StatusCode)
}

// IsTransient reports whether the status is worth retrying later.
func (e *HTTPError) IsTransient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// statusToError maps an upstream status code to the client error taxonomy.
// 2xx maps to nil.
func statusToError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 404:
		return ErrNotFound
	default:
		return &HTTPError{StatusCode: status}
	}
}
