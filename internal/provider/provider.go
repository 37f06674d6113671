package provider

import (
	"context"
	"time"
)

// Message is one turn of conversation sent to the model.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Usage tracks token counts reported by the model runtime.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed model reply.
type Response struct {
	Content    string        `json:"content"`
	Model      string        `json:"model"`
	StopReason string        `json:"stop_reason"` // stop, length
	Usage      Usage         `json:"usage"`
	Duration   time.Duration `json:"duration"`
}

// CompletionRequest is a chat completion request. Zero-valued sampling
// fields defer to the backend's defaults.
type CompletionRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	NumPredict  int       `json:"num_predict,omitempty"`
	KeepAlive   string    `json:"keep_alive,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// StreamHandler receives streaming events as they arrive. It is called
// from the request goroutine and must not block for long.
type StreamHandler func(event StreamEvent)

// StreamEvent is one chunk of a streaming completion. Type is "text" for
// incremental content and "done" for the final event carrying usage.
type StreamEvent struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	Done       bool   `json:"done"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage,omitempty"`
}

// ModelInfo describes one model available on the backend.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Provider is a chat completion backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Complete sends a completion request and waits for the full reply.
	Complete(ctx context.Context, req *CompletionRequest) (*Response, error)

	// Stream sends a completion request and delivers the reply
	// incrementally through handler.
	Stream(ctx context.Context, req *CompletionRequest, handler StreamHandler) error
}
