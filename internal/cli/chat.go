package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loomchat/loom/internal/memory"
	"github.com/loomchat/loom/internal/provider"
	"github.com/spf13/cobra"
)

var (
	chatSession string
	chatStyle   string
	chatModel   string
	chatWait    time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model in your terminal",
	Long: `Start an interactive chat session. The conversation window is kept
in memory and persisted in the background, so quitting and coming back
resumes where you left off.

In-session commands:
  /history   show the buffered conversation window
  /status    show memory status (turns, pending writes, degraded)
  /clear     clear this session's memory
  /image X   generate an image of X (needs image.enabled)
  /quit      exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id (default: a new random id)")
	chatCmd.Flags().StringVar(&chatStyle, "style", "", "response style (key into ollama.system_prompts)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "override the configured model")
	chatCmd.Flags().DurationVar(&chatWait, "wait", 30*time.Second, "how long to wait for ollama on startup")
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	waitCtx, cancel := context.WithTimeout(cmd.Context(), chatWait)
	err = rt.ollama.WaitReady(waitCtx, time.Second)
	cancel()
	if err != nil {
		return err
	}

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	status, err := rt.mem.GetOrCreate(sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("loom chat — session %s\n", sessionID)
	if status.Turns > 0 {
		fmt.Printf("(resuming, %d buffered turns)\n", status.Turns)
	}
	if status.Degraded {
		fmt.Println("(warning: saved history could not be loaded; starting fresh)")
	}
	fmt.Println("Type /quit to exit, /help for commands.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := rt.handleChatCommand(cmd.Context(), sessionID, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if done {
				return nil
			}
			continue
		}

		if err := rt.chatTurn(cmd.Context(), sessionID, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

// chatTurn records the user turn, streams the model's reply, and records
// the assistant turn.
func (rt *runtime) chatTurn(ctx context.Context, sessionID, content string) error {
	if _, err := rt.mem.RecordTurn(sessionID, memory.RoleUser, content, ""); err != nil {
		// The turn is in the window either way; only warn about durability.
		fmt.Fprintln(os.Stderr, "warning: turn not saved:", err)
	}

	history := rt.mem.Context(sessionID)
	messages := make([]provider.Message, 0, len(history))
	for _, rec := range history {
		messages = append(messages, provider.Message{Role: string(rec.Role), Content: rec.Content})
	}

	model := chatModel
	if model == "" {
		model = rt.cfg.Ollama.Model
	}

	req := &provider.CompletionRequest{
		Model:       model,
		System:      rt.cfg.SystemPrompt(chatStyle),
		Messages:    messages,
		Temperature: rt.cfg.Ollama.Temperature,
		TopP:        rt.cfg.Ollama.TopP,
		NumPredict:  rt.cfg.Ollama.NumPredict,
		KeepAlive:   rt.cfg.Ollama.KeepAlive,
	}

	fmt.Print("loom> ")
	start := time.Now()
	var reply strings.Builder
	err := rt.prov.Stream(ctx, req, func(ev provider.StreamEvent) {
		if ev.Type == "text" {
			reply.WriteString(ev.Content)
			fmt.Print(ev.Content)
		}
	})
	fmt.Println()
	if err != nil {
		if reply.Len() == 0 {
			return err
		}
		fmt.Fprintln(os.Stderr, "warning: reply truncated:", err)
	}
	rt.metrics.RecordInferenceLatency(time.Since(start))

	if _, err := rt.mem.RecordTurn(sessionID, memory.RoleAssistant, reply.String(), ""); err != nil {
		fmt.Fprintln(os.Stderr, "warning: turn not saved:", err)
	}
	return nil
}

// handleChatCommand runs a /command. Returns true when the REPL should exit.
func (rt *runtime) handleChatCommand(ctx context.Context, sessionID, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Println("/history /status /clear /image <prompt> /quit")
		return false, nil

	case "/history":
		history := rt.mem.Context(sessionID)
		if len(history) == 0 {
			fmt.Println("(empty)")
			return false, nil
		}
		for _, rec := range history {
			fmt.Printf("[%s] %s\n", rec.Role, rec.Content)
			if rec.AttachmentRef != "" {
				fmt.Printf("       -> %s\n", rec.AttachmentRef)
			}
		}
		return false, nil

	case "/status":
		status, ok := rt.mem.Status(sessionID)
		if !ok {
			fmt.Println("(no active session)")
			return false, nil
		}
		fmt.Printf("turns: %d/%d  pending writes: %d  failed writes: %d\n",
			status.Turns, status.Capacity, status.Pending, status.Failed)
		if status.Degraded {
			fmt.Println("degraded: saved history was not loaded")
		}
		return false, nil

	case "/clear":
		if err := rt.mem.ClearSession(sessionID); err != nil {
			fmt.Println("memory cleared (saved rows may remain):", err)
			return false, nil
		}
		fmt.Println("memory cleared")
		return false, nil

	case "/image":
		prompt := strings.TrimSpace(rest)
		if rt.images == nil {
			return false, fmt.Errorf("image generation is disabled; set image.enabled in loom.yaml")
		}
		fmt.Println("generating...")
		res, err := rt.images.Generate(ctx, prompt)
		if err != nil {
			return false, err
		}
		rt.metrics.IncImagesGenerated()
		fmt.Printf("saved %s (%.1fs)\n", res.Path, res.Duration.Seconds())

		if _, err := rt.mem.RecordTurn(sessionID, memory.RoleUser, "/image "+prompt, ""); err != nil {
			fmt.Fprintln(os.Stderr, "warning: turn not saved:", err)
		}
		if _, err := rt.mem.RecordTurn(sessionID, memory.RoleAssistant, "Generated image for: "+prompt, res.Path); err != nil {
			fmt.Fprintln(os.Stderr, "warning: turn not saved:", err)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}
