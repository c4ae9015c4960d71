package models

import "time"

// BlockerKind distinguishes blockers that halt their task from informational ones.
type BlockerKind string

const (
	// BlockerSync halts the associated task until resolved or expired.
	BlockerSync BlockerKind = "SYNC"
	// BlockerAsync never blocks progress; it is informational.
	BlockerAsync BlockerKind = "ASYNC"
)

// Valid returns true if the kind is a known value.
func (k BlockerKind) Valid() bool {
	return k == BlockerSync || k == BlockerAsync
}

// BlockerStatus represents the lifecycle state of a blocker.
type BlockerStatus string

const (
	// BlockerOpen indicates the blocker is awaiting a human answer.
	BlockerOpen BlockerStatus = "OPEN"
	// BlockerResolved indicates the blocker has been answered.
	BlockerResolved BlockerStatus = "RESOLVED"
	// BlockerExpired indicates the blocker timed out without an answer.
	BlockerExpired BlockerStatus = "EXPIRED"
)

// Valid returns true if the status is a known value.
func (s BlockerStatus) Valid() bool {
	switch s {
	case BlockerOpen, BlockerResolved, BlockerExpired:
		return true
	default:
		return false
	}
}

// Blocker is a pause request raised by an agent when it cannot proceed
// without human input.
type Blocker struct {
	// ID is the unique identifier for this blocker.
	ID string `json:"id"`
	// ProjectID is the owning project.
	ProjectID string `json:"project_id"`
	// AgentID is the agent that raised the blocker.
	AgentID string `json:"agent_id"`
	// TaskID is the task the blocker is associated with.
	TaskID string `json:"task_id"`
	// Kind is SYNC (halts the task) or ASYNC (informational).
	Kind BlockerKind `json:"kind"`
	// Question is what the agent needs answered.
	Question string `json:"question"`
	// Answer is the human-provided answer, nil until resolved.
	Answer *string `json:"answer,omitempty"`
	// Status is the current lifecycle state.
	Status BlockerStatus `json:"status"`
	// Priority orders blockers for display. Higher is more urgent.
	Priority int `json:"priority"`
	// CreatedAt is when the blocker was raised.
	CreatedAt time.Time `json:"created_at"`
	// ResolvedAt is when the blocker was resolved or expired.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
