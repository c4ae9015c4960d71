package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/frankbria/codeframe-sub011/internal/session"
	"github.com/frankbria/codeframe-sub011/internal/state"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task and agent status for this project",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	projectID := filepath.Base(cwd)

	if _, err := os.Stat(state.ProjectDBPath(cwd)); os.IsNotExist(err) {
		fmt.Println("no codeframe state in this directory (run `codeframe run` first)")
		return nil
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}

	tasks, err := db.ListTasks(projectID)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	agents, err := db.ListAgents(projectID)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	bold := color.New(color.Bold)

	if snap := session.NewManager(filepath.Join(cwd, ".codeframe"), nil).Load(); snap != nil {
		bold.Printf("project %s — %.0f%% complete\n", projectID, snap.ProgressPct)
		fmt.Printf("  %s\n", snap.LastSessionSummary)
		if snap.CurrentPlan != "" {
			fmt.Printf("  plan: %s\n", snap.CurrentPlan)
		}
	} else {
		bold.Printf("project %s\n", projectID)
	}

	counts := map[models.TaskStatus]int{}
	for _, t := range tasks {
		counts[t.Status]++
	}
	bold.Printf("\ntasks (%d):\n", len(tasks))
	for _, t := range tasks {
		fmt.Printf("  %s %-12s %s\n", statusGlyph(t.Status), t.Status, t.Title)
		if t.Status == models.TaskStatusFailed && t.Error != "" {
			fmt.Printf("    error: %s\n", t.Error)
		}
		if t.Status == models.TaskStatusBlocked && t.BlockedReason != "" {
			fmt.Printf("    blocked: %s\n", t.BlockedReason)
		}
	}
	fmt.Printf("  done %d / failed %d / blocked %d / ready %d / backlog %d\n",
		counts[models.TaskStatusDone], counts[models.TaskStatusFailed],
		counts[models.TaskStatusBlocked], counts[models.TaskStatusReady],
		counts[models.TaskStatusBacklog])

	if len(agents) > 0 {
		bold.Printf("\nagents (%d):\n", len(agents))
		for _, a := range agents {
			fmt.Printf("  %-24s %-8s %-8s completed %d, failed %d, %d tokens\n",
				a.ID, a.Type, a.Status,
				a.Metrics.TasksCompleted, a.Metrics.TasksFailed, a.Metrics.TokensUsed)
		}
	}
	return nil
}

func statusGlyph(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusDone:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusBlocked:
		return color.YellowString("⏸")
	case models.TaskStatusInProgress:
		return color.CyanString("→")
	default:
		return "·"
	}
}
