package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/frankbria/codeframe-sub011/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the saved session snapshot",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last saved session snapshot",
	RunE:  runSessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved session snapshot",
	RunE:  runSessionClear,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}

func sessionManager() (*session.Manager, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return session.NewManager(filepath.Join(cwd, ".codeframe"), nil), nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}

	snap := mgr.Load()
	if snap == nil {
		fmt.Println("no session snapshot (nothing saved yet, or the file is unreadable)")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("session from %s\n", snap.Timestamp.Local().Format(time.RFC822))
	fmt.Printf("  %s\n", snap.LastSessionSummary)
	fmt.Printf("  progress: %.0f%%\n", snap.ProgressPct)
	if snap.CurrentPlan != "" {
		fmt.Printf("  plan: %s\n", snap.CurrentPlan)
	}
	if len(snap.NextActions) > 0 {
		bold.Println("next actions:")
		for _, action := range snap.NextActions {
			fmt.Printf("  - %s\n", action)
		}
	}
	if len(snap.ActiveBlockers) > 0 {
		bold.Println("active blockers:")
		for _, b := range snap.ActiveBlockers {
			fmt.Printf("  - [%s] %s (task %s)\n", b.ID, b.Question, b.TaskID)
		}
	}
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	mgr, err := sessionManager()
	if err != nil {
		return err
	}
	if err := mgr.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Println("session snapshot cleared")
	return nil
}
