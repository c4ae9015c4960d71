package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusBacklog indicates the task is waiting on dependencies.
	TaskStatusBacklog TaskStatus = "backlog"
	// TaskStatusReady indicates all dependencies are done and the task can run.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusBlocked indicates the task is paused on a blocker.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusReady, TaskStatusInProgress,
		TaskStatusBlocked, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final (done or failed).
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier for this task. Stable and immutable.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Priority orders tasks within the ready set. Higher runs first.
	Priority int `json:"priority"`
	// AgentType is the kind of agent required to execute this task.
	AgentType AgentType `json:"agent_type"`
	// AssignedAgentID is the ID of the agent working on this task.
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`
	// BlockedReason explains why the task is blocked, if it is.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// Error contains the error message if the task failed.
	Error string `json:"error,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
