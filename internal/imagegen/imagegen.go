package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loomchat/loom/internal/config"
	loomerr "github.com/loomchat/loom/internal/errors"
)

// Client renders images through a Stable Diffusion WebUI txt2img endpoint.
type Client struct {
	baseURL    string
	outputDir  string
	width      int
	height     int
	steps      int
	guidance   float64
	httpClient *http.Client
}

// Result describes one generated image on disk.
type Result struct {
	Path     string        `json:"path"`
	Prompt   string        `json:"prompt"`
	Duration time.Duration `json:"duration"`
}

// NewClient creates an image client from config. The output directory is
// created on first use, not here.
func NewClient(cfg config.ImageConfig) *Client {
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	steps := cfg.Steps
	if steps <= 0 {
		steps = 20
	}
	guidance := cfg.GuidanceScale
	if guidance <= 0 {
		guidance = 7.5
	}
	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = "generated_images"
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		outputDir: outputDir,
		width:     width,
		height:    height,
		steps:     steps,
		guidance:  guidance,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Generate renders the prompt and saves the first image as a PNG under
// the output directory. The filename embeds a cleaned prompt slug, a
// short prompt hash, and a timestamp so repeated prompts never collide.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, loomerr.New(loomerr.CodeImageFailed, "image prompt is empty")
	}

	start := time.Now()

	body, err := json.Marshal(map[string]interface{}{
		"prompt":    prompt,
		"width":     c.width,
		"height":    c.height,
		"steps":     c.steps,
		"cfg_scale": c.guidance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, loomerr.Wrap(loomerr.CodeImageFailed, "image backend unreachable", err).
			WithSuggestion("Start the Stable Diffusion WebUI or disable image.enabled")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, loomerr.New(loomerr.CodeImageFailed,
			fmt.Sprintf("image backend error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var apiResp struct {
		Images []string `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, loomerr.Wrap(loomerr.CodeImageFailed, "failed to parse image response", err)
	}
	if len(apiResp.Images) == 0 {
		return nil, loomerr.New(loomerr.CodeImageFailed, "image backend returned no images")
	}

	png, err := base64.StdEncoding.DecodeString(apiResp.Images[0])
	if err != nil {
		return nil, loomerr.Wrap(loomerr.CodeImageFailed, "failed to decode image data", err)
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return nil, loomerr.Wrap(loomerr.CodeImageFailed, "failed to create output directory", err)
	}

	path := filepath.Join(c.outputDir, filename(prompt, start))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return nil, loomerr.Wrap(loomerr.CodeImageFailed, "failed to save image", err)
	}

	return &Result{
		Path:     path,
		Prompt:   prompt,
		Duration: time.Since(start),
	}, nil
}

// Ping checks that the image backend answers.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/sdapi/v1/options", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return loomerr.Wrap(loomerr.CodeImageFailed, "image backend unreachable", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return loomerr.New(loomerr.CodeImageFailed,
			fmt.Sprintf("image backend error (status %d)", resp.StatusCode))
	}
	return nil
}

// filename builds `<slug>_<hash>_<unixts>.png` from the prompt.
func filename(prompt string, at time.Time) string {
	slug := slugify(prompt, 40)

	h := fnv.New32a()
	h.Write([]byte(prompt))

	return fmt.Sprintf("%s_%08x_%d.png", slug, h.Sum32(), at.Unix())
}

// slugify keeps letters and digits, collapses everything else to single
// underscores, and caps the length.
func slugify(s string, max int) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
		if b.Len() >= max {
			break
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "image"
	}
	return out
}
