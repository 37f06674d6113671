package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestLoomError_Error(t *testing.T) {
	err := New(CodeConfigInvalid, "memory capacity must be positive")
	expected := "[CONFIG_INVALID] memory capacity must be positive"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestLoomError_Wrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap(CodeStorageUnavailable, "durable write failed", inner)

	if err.Error() != "[STORAGE_UNAVAILABLE] durable write failed: connection refused" {
		t.Errorf("unexpected error string: %s", err.Error())
	}

	// Unwrap should return inner
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find inner error")
	}
}

func TestLoomError_WithSuggestion(t *testing.T) {
	err := New(CodeProviderUnavailable, "Ollama not reachable").
		WithSuggestion("Start Ollama with 'ollama serve' or fix ollama.base_url in loom.yaml")

	if err.Suggestion != "Start Ollama with 'ollama serve' or fix ollama.base_url in loom.yaml" {
		t.Errorf("unexpected suggestion: %s", err.Suggestion)
	}
}

func TestLoomError_ErrorsAs(t *testing.T) {
	err := Wrap(CodeTimeout, "durable write timed out", fmt.Errorf("deadline exceeded"))

	var loomErr *LoomError
	if !errors.As(err, &loomErr) {
		t.Fatal("errors.As should work")
	}
	if loomErr.Code != CodeTimeout {
		t.Errorf("expected code %q, got %q", CodeTimeout, loomErr.Code)
	}
}

func TestAsCode(t *testing.T) {
	err := New(CodeSessionInvalid, "no buffer and store unreachable")
	if AsCode(err) != CodeSessionInvalid {
		t.Errorf("expected code %q, got %q", CodeSessionInvalid, AsCode(err))
	}

	// Non-LoomError
	plain := fmt.Errorf("plain error")
	if AsCode(plain) != "" {
		t.Error("expected empty code for non-LoomError")
	}
}

func TestSuggestion(t *testing.T) {
	err := New(CodeImageFailed, "image backend error").WithSuggestion("check the image server")
	if Suggestion(err) != "check the image server" {
		t.Errorf("expected 'check the image server', got %q", Suggestion(err))
	}

	// Non-LoomError
	if Suggestion(fmt.Errorf("plain")) != "" {
		t.Error("expected empty suggestion for non-LoomError")
	}
}

func TestLoomError_WrappedAs(t *testing.T) {
	inner := New(CodeStorageUnavailable, "disk full")
	wrapped := fmt.Errorf("record turn: %w", inner)

	var loomErr *LoomError
	if !errors.As(wrapped, &loomErr) {
		t.Fatal("errors.As should unwrap through fmt.Errorf")
	}
	if loomErr.Code != CodeStorageUnavailable {
		t.Errorf("expected code %q, got %q", CodeStorageUnavailable, loomErr.Code)
	}
}
