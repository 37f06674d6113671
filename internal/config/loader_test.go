package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
name: test-chat
version: "2.0"
ollama:
  base_url: http://localhost:11434
  model: llama3:8b
  temperature: 0.5
memory:
  capacity: 5
  driver: sqlite
  path: ./chat.db
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(filepath.Join(dir, "loom.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "test-chat" {
		t.Errorf("expected name test-chat, got %s", cfg.Name)
	}
	if cfg.Ollama.Model != "llama3:8b" {
		t.Errorf("expected model llama3:8b, got %s", cfg.Ollama.Model)
	}
	if cfg.Ollama.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %g", cfg.Ollama.Temperature)
	}
	if cfg.Memory.Capacity != 5 {
		t.Errorf("expected capacity 5, got %d", cfg.Memory.Capacity)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %s", cfg.Logging.Level)
	}
	// Unset fields should pick up defaults.
	if cfg.Memory.Table != "messages" {
		t.Errorf("expected default table, got %s", cfg.Memory.Table)
	}
	if cfg.Memory.QueueSize != 256 {
		t.Errorf("expected default queue size, got %d", cfg.Memory.QueueSize)
	}
	if cfg.Ollama.TopP != 0.9 {
		t.Errorf("expected default top_p, got %g", cfg.Ollama.TopP)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()

	// Should return default config, not error
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "loom" {
		t.Errorf("expected default name, got %s", cfg.Name)
	}
	if cfg.Memory.Capacity != 10 {
		t.Errorf("expected default capacity 10, got %d", cfg.Memory.Capacity)
	}
	if cfg.Memory.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %s", cfg.Memory.Driver)
	}
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
ollama:
  model: phi3:mini
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ollama.Model != "phi3:mini" {
		t.Errorf("expected model from explicit file, got %s", cfg.Ollama.Model)
	}
	// The rest still falls back to defaults.
	if cfg.Memory.Capacity != 10 {
		t.Errorf("expected default capacity, got %d", cfg.Memory.Capacity)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loom.yaml"), []byte("memory: [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_LOOM_MODEL", "mistral:7b")

	content := `
ollama:
  model: ${env.TEST_LOOM_MODEL}
`
	if err := os.WriteFile(filepath.Join(dir, "loom.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ollama.Model != "mistral:7b" {
		t.Errorf("expected interpolated model, got %s", cfg.Ollama.Model)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OLLAMA_BASE_URL", "http://ollama-host:11434")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Ollama.BaseURL != "http://ollama-host:11434" {
		t.Errorf("expected env override, got %s", cfg.Ollama.BaseURL)
	}
}
