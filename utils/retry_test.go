package utils

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{statusErr(503), true},
		{statusErr(429), true},
		{statusErr(404), false},
		{fmt.Errorf("wrapped: %w", statusErr(502)), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{syscall.ECONNRESET, true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("parse error"), false},
	}
	for _, c := range cases {
		if got := IsTransient(c.err); got != c.want {
			t.Errorf("IsTransient(%v) = %v; want %v", c.err, got, c.want)
		}
	}
}

func TestRetryRetriesTransient(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	calls := 0
	err := r.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return statusErr(500)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	calls := 0
	err := r.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return statusErr(404)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	err := r.Do(context.Background(), "fetch", func(context.Context) error {
		return statusErr(503)
	})
	var se statusErr
	if !errors.As(err, &se) || int(se) != 503 {
		t.Errorf("want wrapped 503, got %v", err)
	}
}
