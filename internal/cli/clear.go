package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Clear a session's saved conversation memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.mem.ClearSession(sessionID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}

	fmt.Printf("Cleared session %s\n", sessionID)
	return nil
}
