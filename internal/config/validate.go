package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	loomerr "github.com/loomchat/loom/internal/errors"
)

// Validate checks the configuration and returns a CONFIG_INVALID error
// listing every problem found. Called at startup; the process must not
// begin serving on failure.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Memory.Capacity <= 0 {
		problems = append(problems, fmt.Sprintf("memory.capacity must be positive, got %d", cfg.Memory.Capacity))
	}
	switch cfg.Memory.Driver {
	case "sqlite", "file":
	default:
		problems = append(problems, fmt.Sprintf("memory.driver must be sqlite or file, got %q", cfg.Memory.Driver))
	}
	if cfg.Memory.Path == "" {
		problems = append(problems, "memory.path is required")
	}
	if cfg.Memory.Table == "" {
		problems = append(problems, "memory.table is required")
	}
	if cfg.Memory.QueueSize <= 0 {
		problems = append(problems, fmt.Sprintf("memory.queue_size must be positive, got %d", cfg.Memory.QueueSize))
	}
	if err := checkDuration(cfg.Memory.WriteTimeout); err != nil {
		problems = append(problems, fmt.Sprintf("memory.write_timeout: %v", err))
	}
	if err := checkDuration(cfg.Memory.IdleTTL); err != nil {
		problems = append(problems, fmt.Sprintf("memory.idle_ttl: %v", err))
	}

	if err := checkURL(cfg.Ollama.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("ollama.base_url: %v", err))
	}
	if cfg.Ollama.Model == "" {
		problems = append(problems, "ollama.model is required")
	}
	if cfg.Ollama.Temperature < 0 || cfg.Ollama.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("ollama.temperature must be in [0, 2], got %g", cfg.Ollama.Temperature))
	}
	if cfg.Ollama.TopP < 0 || cfg.Ollama.TopP > 1 {
		problems = append(problems, fmt.Sprintf("ollama.top_p must be in [0, 1], got %g", cfg.Ollama.TopP))
	}
	if cfg.Ollama.KeepAlive != "" {
		if err := checkDuration(cfg.Ollama.KeepAlive); err != nil {
			problems = append(problems, fmt.Sprintf("ollama.keep_alive: %v", err))
		}
	}

	if cfg.Image.Enabled {
		if err := checkURL(cfg.Image.BaseURL); err != nil {
			problems = append(problems, fmt.Sprintf("image.base_url: %v", err))
		}
		if cfg.Image.OutputDir == "" {
			problems = append(problems, "image.output_dir is required when image generation is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		problems = append(problems, fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		problems = append(problems, fmt.Sprintf("logging.format must be text or json, got %q", cfg.Logging.Format))
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be in (0, 65535], got %d", cfg.Server.Port))
	}

	for _, h := range cfg.Hooks.Hooks {
		switch h.Type {
		case "shell":
			if h.Command == "" {
				problems = append(problems, fmt.Sprintf("hook %q: shell hooks need a command", h.Name))
			}
		case "webhook":
			if h.URL == "" {
				problems = append(problems, fmt.Sprintf("hook %q: webhook hooks need a url", h.Name))
			}
		case "log":
		default:
			problems = append(problems, fmt.Sprintf("hook %q: unknown type %q", h.Name, h.Type))
		}
	}

	if len(problems) > 0 {
		return loomerr.New(loomerr.CodeConfigInvalid, strings.Join(problems, "; ")).
			WithSuggestion("Fix loom.yaml and restart")
	}
	return nil
}

func checkDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL %q", s)
	}
	return nil
}
