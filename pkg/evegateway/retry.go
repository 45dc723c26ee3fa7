package evegateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	maxAttempts   = 3
	baseBackoff   = 1 * time.Second
	initialBudget = 100
)

// ErrorBudget tracks upstream health per process. A 429 decrements, any
// success increments back up to the initial allowance. At zero all outbound
// calls are suspended with ErrErrorBudgetExhausted.
type ErrorBudget struct {
	mu        sync.Mutex
	remaining int
	limit     int
}

// NewErrorBudget creates a budget with the standard allowance.
func NewErrorBudget() *ErrorBudget {
	return &ErrorBudget{remaining: initialBudget, limit: initialBudget}
}

// Allow reports whether outbound calls may proceed.
func (b *ErrorBudget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining > 0
}

// RecordSuccess restores one unit of budget, capped at the initial allowance.
func (b *ErrorBudget) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining < b.limit {
		b.remaining++
	}
}

// RecordThrottle consumes one unit of budget.
func (b *ErrorBudget) RecordThrottle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining > 0 {
		b.remaining--
	}
	if b.remaining == 0 {
		slog.Warn("Upstream error budget exhausted, suspending outbound calls")
	}
}

// Remaining returns the current budget for status reporting.
func (b *ErrorBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// doWithRetry executes the request with exponential backoff on 429 and 5xx
// responses and on transport errors. Backoff is 1s, 2s between attempts, at
// most three attempts total. The request must have a reusable body via GetBody
// or no body at all.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !c.budget.Allow() {
		return nil, ErrErrorBudgetExhausted
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			slog.Debug("Retrying upstream request",
				"attempt", attempt+1,
				"backoff", backoff,
				"url", req.URL.Path)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}

		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.budget.RecordThrottle()
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode}
		default:
			c.budget.RecordSuccess()
			return resp, nil
		}
	}

	return nil, lastErr
}
