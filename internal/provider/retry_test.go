package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockProvider fails a configurable number of times before succeeding.
type mockProvider struct {
	failures  int
	failWith  error
	calls     int
	streamSeq []StreamEvent
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (*Response, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, m.failWith
	}
	return &Response{Content: "ok", StopReason: "stop"}, nil
}

func (m *mockProvider) Stream(ctx context.Context, req *CompletionRequest, handler StreamHandler) error {
	m.calls++
	if m.calls <= m.failures {
		return m.failWith
	}
	for _, ev := range m.streamSeq {
		handler(ev)
	}
	return nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	mock := &mockProvider{failures: 2, failWith: fmt.Errorf("request failed: connection refused")}
	r := NewRetryProvider(mock, fastRetryConfig())

	resp, err := r.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected ok, got %q", resp.Content)
	}
	if mock.calls != 3 {
		t.Errorf("expected 3 calls, got %d", mock.calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockProvider{failures: 100, failWith: fmt.Errorf("request failed: connection refused")}
	r := NewRetryProvider(mock, fastRetryConfig())

	_, err := r.Complete(context.Background(), &CompletionRequest{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if mock.calls != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryClientErrors(t *testing.T) {
	mock := &mockProvider{failures: 100, failWith: fmt.Errorf("API error (status 404): model not found")}
	r := NewRetryProvider(mock, fastRetryConfig())

	_, err := r.Complete(context.Background(), &CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.calls != 1 {
		t.Errorf("client errors should not be retried, got %d calls", mock.calls)
	}
}

func TestRetry_RetriesServerErrors(t *testing.T) {
	mock := &mockProvider{failures: 1, failWith: fmt.Errorf("API error (status 503): loading model")}
	r := NewRetryProvider(mock, fastRetryConfig())

	if _, err := r.Complete(context.Background(), &CompletionRequest{}); err != nil {
		t.Fatal(err)
	}
	if mock.calls != 2 {
		t.Errorf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryContextCancellation(t *testing.T) {
	mock := &mockProvider{failures: 100, failWith: context.Canceled}
	r := NewRetryProvider(mock, fastRetryConfig())

	_, err := r.Complete(context.Background(), &CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_StreamBuffersRetriedOutput(t *testing.T) {
	mock := &mockProvider{
		failures: 1,
		failWith: fmt.Errorf("request failed: connection reset"),
		streamSeq: []StreamEvent{
			{Type: "text", Content: "hello"},
			{Type: "done", Done: true, StopReason: "stop"},
		},
	}
	r := NewRetryProvider(mock, fastRetryConfig())

	var events []StreamEvent
	err := r.Stream(context.Background(), &CompletionRequest{}, func(ev StreamEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events (no duplicates), got %d", len(events))
	}
	if events[0].Content != "hello" || !events[1].Done {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestRetry_BackoffCapped(t *testing.T) {
	r := NewRetryProvider(&mockProvider{}, RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		JitterFraction: 0,
	})

	if d := r.backoff(10); d != 2*time.Second {
		t.Errorf("expected backoff capped at 2s, got %v", d)
	}
}
