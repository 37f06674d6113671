package config

import "time"

// Config represents the main application configuration (loom.yaml)
type Config struct {
	Name    string        `yaml:"name" json:"name"`
	Version string        `yaml:"version" json:"version"`
	Ollama  OllamaConfig  `yaml:"ollama" json:"ollama"`
	Memory  MemoryConfig  `yaml:"memory" json:"memory"`
	Image   ImageConfig   `yaml:"image" json:"image"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Hooks   HooksConfig   `yaml:"hooks" json:"hooks"`
}

// OllamaConfig configures the local inference server.
type OllamaConfig struct {
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TopP        float64 `yaml:"top_p" json:"top_p"`
	NumPredict  int     `yaml:"num_predict" json:"num_predict"`
	KeepAlive   string  `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty"` // e.g. "5m"; how long ollama keeps the model loaded

	// SystemPrompts maps a response style name to a system prompt.
	// The "default" entry is used when no style is requested.
	SystemPrompts map[string]string `yaml:"system_prompts,omitempty" json:"system_prompts,omitempty"`
}

// MemoryConfig configures the conversation memory subsystem.
type MemoryConfig struct {
	Capacity     int    `yaml:"capacity" json:"capacity"`           // session buffer window size
	Driver       string `yaml:"driver" json:"driver"`               // sqlite, file
	Path         string `yaml:"path" json:"path"`                   // db file or jsonl directory
	Table        string `yaml:"table" json:"table"`                 // sqlite table name
	WriteTimeout string `yaml:"write_timeout" json:"write_timeout"` // per durable write, e.g. "5s"
	QueueSize    int    `yaml:"queue_size" json:"queue_size"`       // pending durable writes
	IdleTTL      string `yaml:"idle_ttl" json:"idle_ttl"`           // session buffer eviction, e.g. "30m"
}

// ImageConfig configures the image generation backend.
type ImageConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	BaseURL       string  `yaml:"base_url" json:"base_url"`
	OutputDir     string  `yaml:"output_dir" json:"output_dir"`
	Width         int     `yaml:"width" json:"width"`
	Height        int     `yaml:"height" json:"height"`
	Steps         int     `yaml:"steps" json:"steps"`
	GuidanceScale float64 `yaml:"guidance_scale" json:"guidance_scale"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text, json
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// ServerConfig configures the web UI server.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// HooksConfig configures lifecycle event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log
	Events   []string `yaml:"events" json:"events"` // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
}

// SystemPrompt returns the system prompt for the given response style,
// falling back to the "default" entry and then to empty.
func (c *Config) SystemPrompt(style string) string {
	if style != "" {
		if prompt, ok := c.Ollama.SystemPrompts[style]; ok {
			return prompt
		}
	}
	return c.Ollama.SystemPrompts["default"]
}

// WriteTimeoutDuration parses the write timeout, falling back to 5s.
func (m MemoryConfig) WriteTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(m.WriteTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// IdleTTLDuration parses the idle TTL, falling back to 30m.
func (m MemoryConfig) IdleTTLDuration() time.Duration {
	d, err := time.ParseDuration(m.IdleTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}
