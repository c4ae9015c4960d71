package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedProvider returns the queued errors in order, then succeeds.
type scriptedProvider struct {
	errs  []error
	calls int
}

func (s *scriptedProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &Completion{Content: "ok", InputTokens: 10, OutputTokens: 5}, nil
}

func fastRetrier(inner Provider) *RetryingProvider {
	r := NewRetryingProvider(inner)
	r.InitialInterval = time.Millisecond
	return r
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &scriptedProvider{errs: []error{ErrRateLimited, ErrConnectionFailed}}
	r := fastRetrier(inner)

	completion, err := r.Complete(context.Background(), Request{MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Content != "ok" {
		t.Errorf("content = %q, want ok", completion.Content)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryExhaustion(t *testing.T) {
	inner := &scriptedProvider{errs: []error{ErrTimedOut, ErrTimedOut, ErrTimedOut, ErrTimedOut}}
	r := fastRetrier(inner)

	_, err := r.Complete(context.Background(), Request{MaxTokens: 64})
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut after exhaustion, got %v", err)
	}
	// Initial attempt plus MaxRetries retries.
	if inner.calls != 4 {
		t.Errorf("calls = %d, want 4", inner.calls)
	}
}

func TestAuthErrorIsNeverRetried(t *testing.T) {
	inner := &scriptedProvider{errs: []error{ErrAuthInvalid}}
	r := fastRetrier(inner)

	_, err := r.Complete(context.Background(), Request{MaxTokens: 64})
	if !errors.Is(err, ErrAuthInvalid) {
		t.Fatalf("expected ErrAuthInvalid, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries)", inner.calls)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRateLimited, true},
		{ErrConnectionFailed, true},
		{ErrTimedOut, true},
		{ErrAuthInvalid, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	inner := &scriptedProvider{errs: []error{ErrRateLimited, ErrRateLimited, ErrRateLimited, ErrRateLimited}}
	r := fastRetrier(inner)
	r.InitialInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Complete(ctx, Request{MaxTokens: 64})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}
