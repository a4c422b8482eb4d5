package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)
	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"network error", errors.New("connection reset"), 1, true},
		{"server error", &statusError{code: http.StatusServiceUnavailable, err: errors.New("x")}, 1, true},
		{"throttled", &statusError{code: http.StatusTooManyRequests, err: errors.New("x")}, 2, true},
		{"request timeout", &statusError{code: http.StatusRequestTimeout, err: errors.New("x")}, 1, true},
		{"not found", &statusError{code: http.StatusNotFound, err: errors.New("x")}, 1, false},
		{"forbidden", &statusError{code: http.StatusForbidden, err: errors.New("x")}, 1, false},
		{"budget spent", errors.New("connection reset"), 3, false},
		{"canceled", context.Canceled, 1, false},
		{"deadline", context.DeadlineExceeded, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.ShouldRetry(tc.err, tc.attempt); got != tc.want {
				t.Fatalf("ShouldRetry(%v, %d) = %v; want %v", tc.err, tc.attempt, got, tc.want)
			}
		})
	}
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		ceiling := 100 * time.Millisecond << (attempt - 1)
		if ceiling > 400*time.Millisecond {
			ceiling = 400 * time.Millisecond
		}
		for i := 0; i < 20; i++ {
			d := p.Backoff(attempt)
			if d < ceiling/2 || d > ceiling {
				t.Fatalf("Backoff(%d) = %v; want within [%v, %v]", attempt, d, ceiling/2, ceiling)
			}
		}
	}
}

func TestRetryPolicyNormalizesAttempts(t *testing.T) {
	t.Parallel()

	if got := NewRetryPolicy(0, time.Millisecond, time.Millisecond).MaxAttempts(); got != 1 {
		t.Fatalf("expected at least one attempt, got %d", got)
	}
}
