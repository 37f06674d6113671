package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads the main application configuration from dir/loom.yaml
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, "loom.yaml"))
}

// LoadFile loads the configuration from an explicit file path. A missing
// file yields the defaults; a present but invalid file is an error.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if no file exists
			cfg := defaultConfig()
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Interpolate environment variables
	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults, then fail fast on anything still invalid.
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Name:    "loom",
		Version: "1.0",
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "gemma:2b",
			Temperature: 0.7,
			TopP:        0.9,
			NumPredict:  512,
			SystemPrompts: map[string]string{
				"default":  "You are a helpful assistant. Answer clearly and concisely.",
				"beginner": "You are a patient tutor. Explain concepts simply, avoid jargon, and use everyday examples.",
				"expert":   "You are a domain expert. Be precise and technical; assume the reader knows the fundamentals.",
				"phd":      "You are an academic researcher. Give rigorous, nuanced answers and cite the reasoning behind claims.",
			},
		},
		Memory: MemoryConfig{
			Capacity:     10,
			Driver:       "sqlite",
			Path:         ".loom/history.db",
			Table:        "messages",
			WriteTimeout: "5s",
			QueueSize:    256,
			IdleTTL:      "30m",
		},
		Image: ImageConfig{
			BaseURL:       "http://localhost:7860",
			OutputDir:     ".loom/images",
			Width:         512,
			Height:        512,
			Steps:         20,
			GuidanceScale: 7.5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()

	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = def.Ollama.BaseURL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = def.Ollama.Model
	}
	if cfg.Ollama.Temperature == 0 {
		cfg.Ollama.Temperature = def.Ollama.Temperature
	}
	if cfg.Ollama.TopP == 0 {
		cfg.Ollama.TopP = def.Ollama.TopP
	}
	if cfg.Ollama.NumPredict == 0 {
		cfg.Ollama.NumPredict = def.Ollama.NumPredict
	}
	if len(cfg.Ollama.SystemPrompts) == 0 {
		cfg.Ollama.SystemPrompts = def.Ollama.SystemPrompts
	}
	if cfg.Memory.Capacity == 0 {
		cfg.Memory.Capacity = def.Memory.Capacity
	}
	if cfg.Memory.Driver == "" {
		cfg.Memory.Driver = def.Memory.Driver
	}
	if cfg.Memory.Path == "" {
		cfg.Memory.Path = def.Memory.Path
	}
	if cfg.Memory.Table == "" {
		cfg.Memory.Table = def.Memory.Table
	}
	if cfg.Memory.WriteTimeout == "" {
		cfg.Memory.WriteTimeout = def.Memory.WriteTimeout
	}
	if cfg.Memory.QueueSize == 0 {
		cfg.Memory.QueueSize = def.Memory.QueueSize
	}
	if cfg.Memory.IdleTTL == "" {
		cfg.Memory.IdleTTL = def.Memory.IdleTTL
	}
	if cfg.Image.BaseURL == "" {
		cfg.Image.BaseURL = def.Image.BaseURL
	}
	if cfg.Image.OutputDir == "" {
		cfg.Image.OutputDir = def.Image.OutputDir
	}
	if cfg.Image.Width == 0 {
		cfg.Image.Width = def.Image.Width
	}
	if cfg.Image.Height == 0 {
		cfg.Image.Height = def.Image.Height
	}
	if cfg.Image.Steps == 0 {
		cfg.Image.Steps = def.Image.Steps
	}
	if cfg.Image.GuidanceScale == 0 {
		cfg.Image.GuidanceScale = def.Image.GuidanceScale
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}

	// Environment overrides for the common knobs.
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	// Match ${env.VAR} pattern
	envPattern := regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	content = envPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep original if not found
	})

	// Match ${VAR} pattern
	varPattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	content = varPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := varPattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(varName, "env.") {
			return match
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return content
}
