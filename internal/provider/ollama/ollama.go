package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	loomerr "github.com/loomchat/loom/internal/errors"
	"github.com/loomchat/loom/internal/provider"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "gemma:2b"
)

// Client talks to a local Ollama runtime over its HTTP API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates an Ollama client. An empty baseURL falls back to
// OLLAMA_BASE_URL and then the local default.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}

	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "ollama"
}

// Complete sends a chat request and waits for the full reply.
func (c *Client) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.Response, error) {
	start := time.Now()

	body, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &provider.Response{
		Content:    apiResp.Message.Content,
		Model:      apiResp.Model,
		StopReason: stopReason(apiResp.DoneReason),
		Usage: provider.Usage{
			PromptTokens: apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream sends a chat request and delivers the reply as it is generated.
// Ollama streams newline-delimited JSON objects, one per chunk.
func (c *Client) Stream(ctx context.Context, req *provider.CompletionRequest, handler provider.StreamHandler) error {
	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var usage provider.Usage
	var reason string

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // skip malformed lines
		}

		if chunk.Message.Content != "" {
			handler(provider.StreamEvent{
				Type:    "text",
				Content: chunk.Message.Content,
			})
		}

		if chunk.Done {
			usage.PromptTokens = chunk.PromptEvalCount
			usage.OutputTokens = chunk.EvalCount
			reason = stopReason(chunk.DoneReason)
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}

	handler(provider.StreamEvent{
		Type:       "done",
		Done:       true,
		StopReason: reason,
		Usage:      usage,
	})
	return nil
}

// ListModels returns the models installed on the backend.
func (c *Client) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var tags struct {
		Models []struct {
			Name       string    `json:"name"`
			Size       int64     `json:"size"`
			ModifiedAt time.Time `json:"modified_at"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]provider.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, provider.ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}

// WaitReady polls the tags endpoint until the backend answers or ctx
// expires.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.ListModels(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return loomerr.Wrap(loomerr.CodeProviderUnavailable,
				fmt.Sprintf("ollama at %s did not become ready", c.baseURL), ctx.Err()).
				WithSuggestion("Start ollama (`ollama serve`) or point ollama.base_url at a running instance")
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// buildRequest converts our request to Ollama's chat format. Sampling
// knobs travel in the options object.
func (c *Client) buildRequest(req *provider.CompletionRequest, stream bool) map[string]interface{} {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.NumPredict > 0 {
		options["num_predict"] = req.NumPredict
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}

	apiReq := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   stream,
	}
	if len(options) > 0 {
		apiReq["options"] = options
	}
	if req.KeepAlive != "" {
		apiReq["keep_alive"] = req.KeepAlive
	}
	return apiReq
}

// chatResponse is one Ollama /api/chat object, complete or chunked.
type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func stopReason(doneReason string) string {
	switch doneReason {
	case "", "stop":
		return "stop"
	case "length":
		return "length"
	default:
		return doneReason
	}
}
