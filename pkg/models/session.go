package models

import "time"

// BlockerSummary is a compact view of an open blocker for session snapshots.
type BlockerSummary struct {
	// ID is the blocker identifier.
	ID string `json:"id"`
	// TaskID is the associated task.
	TaskID string `json:"task_id"`
	// Question is what the agent needs answered, possibly truncated.
	Question string `json:"question"`
	// Priority orders blockers for display.
	Priority int `json:"priority"`
}

// SessionState is the orchestrator-level snapshot persisted across restarts.
// It is an ephemeral aggregate recomputed from graph and blocker state on
// each save, never a source of truth.
type SessionState struct {
	// LastSessionSummary is a short description of what happened last session.
	LastSessionSummary string `json:"last_session_summary"`
	// CompletedTaskIDs lists tasks that finished successfully.
	CompletedTaskIDs []string `json:"completed_task_ids"`
	// NextActions lists up to 5 upcoming ready tasks.
	NextActions []string `json:"next_actions"`
	// CurrentPlan describes the overall plan in progress.
	CurrentPlan string `json:"current_plan"`
	// ActiveBlockers summarizes up to 10 open blockers.
	ActiveBlockers []BlockerSummary `json:"active_blockers"`
	// ProgressPct is the fraction of tasks completed, 0-100.
	ProgressPct float64 `json:"progress_pct"`
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// Limits on snapshot list sizes.
const (
	MaxNextActions    = 5
	MaxActiveBlockers = 10
)
