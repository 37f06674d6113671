package cli

import (
	"context"
	"fmt"
	goruntime "runtime"
	"time"

	"github.com/loomchat/loom/internal/imagegen"
	"github.com/loomchat/loom/internal/memory"
	"github.com/loomchat/loom/internal/provider/ollama"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and dependencies",
	Long:  "Validate that the configuration, memory store, and model backend are properly set up.",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("loom doctor — checking your environment")
	fmt.Println()
	allOK := true

	// 1. Go version
	fmt.Printf("  Go version: %s", goruntime.Version())
	fmt.Println(" ✓")

	// 2. OS/Arch
	fmt.Printf("  Platform:   %s/%s", goruntime.GOOS, goruntime.GOARCH)
	fmt.Println(" ✓")

	// 3. Configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  Config:     INVALID ✗\n    → %v\n", err)
		fmt.Println()
		fmt.Printf("Fix %s before running further checks.\n", configPath())
		return nil
	}
	fmt.Printf("  Config:     %s v%s", cfg.Name, cfg.Version)
	fmt.Println(" ✓")

	// 4. Memory store
	store, err := memory.Open(cfg.Memory)
	if err != nil {
		fmt.Printf("  Store:      FAILED (%s) ✗\n", err)
		allOK = false
	} else {
		fmt.Printf("  Store:      %s (%s)", cfg.Memory.Driver, cfg.Memory.Path)
		fmt.Println(" ✓")
		store.Close()
	}

	// 5. Ollama
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	client := ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Printf("  Ollama:     UNREACHABLE ✗\n    → Start ollama (`ollama serve`) or fix ollama.base_url\n")
		allOK = false
	} else {
		fmt.Printf("  Ollama:     %d models available", len(models))
		fmt.Println(" ✓")

		found := false
		for _, m := range models {
			if m.Name == cfg.Ollama.Model {
				found = true
				break
			}
		}
		if found {
			fmt.Printf("  Model:      %s", cfg.Ollama.Model)
			fmt.Println(" ✓")
		} else {
			fmt.Printf("  Model:      %s NOT INSTALLED ✗\n    → Run `ollama pull %s`\n", cfg.Ollama.Model, cfg.Ollama.Model)
			allOK = false
		}
	}

	// 6. Image backend (only when enabled)
	if cfg.Image.Enabled {
		images := imagegen.NewClient(cfg.Image)
		if err := images.Ping(ctx); err != nil {
			fmt.Printf("  Images:     UNREACHABLE ✗\n    → Start the Stable Diffusion WebUI or disable image.enabled\n")
			allOK = false
		} else {
			fmt.Printf("  Images:     %s", cfg.Image.BaseURL)
			fmt.Println(" ✓")
		}
	} else {
		fmt.Println("  Images:     disabled")
	}

	fmt.Println()
	if allOK {
		fmt.Println("All checks passed!")
	} else {
		fmt.Println("Some checks failed. See above for details.")
	}

	return nil
}
