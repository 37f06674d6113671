//go:build integration

package integration

import (
	"path/filepath"
	"testing"

	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/memory"
	"github.com/loomchat/loom/internal/telemetry"
)

func memConfig(dbPath string, capacity int) config.MemoryConfig {
	return config.MemoryConfig{
		Capacity:     capacity,
		Driver:       "sqlite",
		Path:         dbPath,
		Table:        "messages",
		WriteTimeout: "5s",
		QueueSize:    64,
		IdleTTL:      "30m",
	}
}

func TestMemoryPersistenceAcrossRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := memConfig(dbPath, 10)
	logger := telemetry.NewLogger(false)

	// --- Run 1: record a conversation, shut down cleanly ---
	store1, err := memory.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mem1 := memory.NewManager(store1, cfg, nil, logger, telemetry.NewMetrics())

	mem1.RecordTurn("alice", memory.RoleUser, "What is the project architecture?", "")
	mem1.RecordTurn("alice", memory.RoleAssistant, "A chat front-end with a windowed memory over a durable store.", "")
	mem1.RecordTurn("alice", memory.RoleUser, "Tell me about the memory system.", "")

	mem1.Close() // drains pending durable writes
	store1.Close()

	// --- Run 2: a cold process sees the same conversation ---
	store2, err := memory.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	mem2 := memory.NewManager(store2, cfg, nil, logger, telemetry.NewMetrics())
	defer mem2.Close()

	history := mem2.Context("alice")
	if len(history) != 3 {
		t.Fatalf("expected 3 persisted turns, got %d", len(history))
	}
	if history[0].Content != "What is the project architecture?" {
		t.Errorf("order lost across restart: %q", history[0].Content)
	}
	if history[2].Role != memory.RoleUser {
		t.Errorf("roles lost across restart: %s", history[2].Role)
	}

	// New turns continue the sequence rather than restarting it.
	rec, err := mem2.RecordTurn("alice", memory.RoleAssistant, "It persists in the background.", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 3 {
		t.Errorf("expected seq 3 after restart, got %d", rec.Seq)
	}
}

func TestWindowSurvivesRestartAtCapacity(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := memConfig(dbPath, 3)
	logger := telemetry.NewLogger(false)

	store1, err := memory.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mem1 := memory.NewManager(store1, cfg, nil, logger, telemetry.NewMetrics())
	for _, content := range []string{"A", "B", "C", "D", "E"} {
		mem1.RecordTurn("bob", memory.RoleUser, content, "")
	}
	mem1.Close()
	store1.Close()

	store2, err := memory.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	mem2 := memory.NewManager(store2, cfg, nil, logger, telemetry.NewMetrics())
	defer mem2.Close()

	history := mem2.Context("bob")
	want := []string{"C", "D", "E"}
	if len(history) != len(want) {
		t.Fatalf("expected window of %d, got %d", len(want), len(history))
	}
	for i, w := range want {
		if history[i].Content != w {
			t.Errorf("position %d: expected %q, got %q", i, w, history[i].Content)
		}
	}
}

func TestClearSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := memConfig(dbPath, 10)
	logger := telemetry.NewLogger(false)

	store1, err := memory.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	mem1 := memory.NewManager(store1, cfg, nil, logger, telemetry.NewMetrics())
	mem1.RecordTurn("carol", memory.RoleUser, "forget this", "")
	mem1.ClearSession("carol")
	mem1.Close()
	store1.Close()

	store2, err := memory.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	mem2 := memory.NewManager(store2, cfg, nil, logger, telemetry.NewMetrics())
	defer mem2.Close()

	if history := mem2.Context("carol"); len(history) != 0 {
		t.Errorf("expected cleared session to stay empty after restart, got %d turns", len(history))
	}
}
