package models

import "time"

// AgentType identifies the specialization of an agent.
type AgentType string

const (
	// AgentTypeLead coordinates and reviews the work of other agents.
	AgentTypeLead AgentType = "lead"
	// AgentTypeBackend handles server-side implementation tasks.
	AgentTypeBackend AgentType = "backend"
	// AgentTypeFrontend handles UI implementation tasks.
	AgentTypeFrontend AgentType = "frontend"
	// AgentTypeTest writes and repairs tests.
	AgentTypeTest AgentType = "test"
	// AgentTypeReview performs code review tasks.
	AgentTypeReview AgentType = "review"
)

// Valid returns true if the type is a known value.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeLead, AgentTypeBackend, AgentTypeFrontend, AgentTypeTest, AgentTypeReview:
		return true
	default:
		return false
	}
}

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent has no assigned task.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusWorking indicates the agent is executing a task.
	AgentStatusWorking AgentStatus = "working"
	// AgentStatusBlocked indicates the agent is waiting on a blocker.
	AgentStatusBlocked AgentStatus = "blocked"
	// AgentStatusOffline indicates the agent has been retired.
	AgentStatusOffline AgentStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusWorking, AgentStatusBlocked, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// MaturityLevel classifies how much instructional detail an agent needs.
// D1 agents receive step-by-step direction; D4 agents work from goals alone.
type MaturityLevel int

const (
	MaturityD1 MaturityLevel = iota + 1
	MaturityD2
	MaturityD3
	MaturityD4
)

// Valid returns true if the level is in the D1-D4 range.
func (m MaturityLevel) Valid() bool {
	return m >= MaturityD1 && m <= MaturityD4
}

// AgentMetrics holds opaque per-agent counters.
type AgentMetrics struct {
	// TasksCompleted is the number of tasks this agent finished successfully.
	TasksCompleted int `json:"tasks_completed"`
	// TasksFailed is the number of tasks this agent failed.
	TasksFailed int `json:"tasks_failed"`
	// SelfCorrections is the total number of repair attempts made.
	SelfCorrections int `json:"self_corrections"`
	// TokensUsed is the total tokens consumed by this agent.
	TokensUsed int64 `json:"tokens_used"`
}

// Agent represents a worker agent slot managed by the pool.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Type is the agent's specialization.
	Type AgentType `json:"type"`
	// Status is the current state of the agent.
	Status AgentStatus `json:"status"`
	// CurrentTaskID is the task the agent is working on, if any.
	CurrentTaskID string `json:"current_task_id,omitempty"`
	// Maturity indicates how much instructional detail the agent needs.
	Maturity MaturityLevel `json:"maturity_level"`
	// Metrics holds per-agent counters.
	Metrics AgentMetrics `json:"metrics"`
	// CreatedAt is when the agent was created.
	CreatedAt time.Time `json:"created_at"`
}
