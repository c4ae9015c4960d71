package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/frankbria/codeframe-sub011/internal/state"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

var blockersAll bool

var blockersCmd = &cobra.Command{
	Use:   "blockers",
	Short: "List and resolve agent blockers",
}

var blockersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open blockers",
	RunE:  runBlockersList,
}

var blockersResolveCmd = &cobra.Command{
	Use:   "resolve <blocker-id> <answer>",
	Short: "Answer a blocker so its task can resume",
	Long: `Writes the answer to .codeframe/answers/<blocker-id>.answer. A running
orchestrator picks it up immediately; otherwise it is consumed when the next
run starts.`,
	Args: cobra.ExactArgs(2),
	RunE: runBlockersResolve,
}

func init() {
	blockersListCmd.Flags().BoolVarP(&blockersAll, "all", "a", false, "Include resolved and expired blockers")
	blockersCmd.AddCommand(blockersListCmd)
	blockersCmd.AddCommand(blockersResolveCmd)
}

func runBlockersList(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}

	blockers, err := db.ListBlockers(filepath.Base(cwd))
	if err != nil {
		return fmt.Errorf("list blockers: %w", err)
	}

	shown := 0
	for _, b := range blockers {
		if !blockersAll && b.Status != models.BlockerOpen {
			continue
		}
		shown++
		printBlocker(b)
	}
	if shown == 0 {
		fmt.Println("no open blockers")
	}
	return nil
}

func runBlockersResolve(cmd *cobra.Command, args []string) error {
	blockerID, answer := args[0], args[1]
	if answer == "" {
		return fmt.Errorf("answer must not be empty")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dir := filepath.Join(cwd, ".codeframe", "answers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create answers dir: %w", err)
	}

	path := filepath.Join(dir, blockerID+".answer")
	if err := os.WriteFile(path, []byte(answer+"\n"), 0o644); err != nil {
		return fmt.Errorf("write answer file: %w", err)
	}
	color.Green("answer recorded for %s", blockerID)
	return nil
}

func printBlocker(b *models.Blocker) {
	badge := color.YellowString("OPEN")
	switch b.Status {
	case models.BlockerResolved:
		badge = color.GreenString("RESOLVED")
	case models.BlockerExpired:
		badge = color.RedString("EXPIRED")
	}
	fmt.Printf("%s  %s  [%s, priority %d]\n", b.ID, badge, b.Kind, b.Priority)
	fmt.Printf("  task: %s  agent: %s  raised: %s\n",
		b.TaskID, b.AgentID, b.CreatedAt.Local().Format(time.RFC822))
	fmt.Printf("  question: %s\n", b.Question)
	if b.Answer != nil {
		fmt.Printf("  answer: %s\n", *b.Answer)
	}
}
