package models

import "time"

// ContextTier classifies a context item by importance.
type ContextTier string

const (
	// TierHot items are always included in the working set.
	TierHot ContextTier = "HOT"
	// TierWarm items are included while the token budget allows.
	TierWarm ContextTier = "WARM"
	// TierCold items are candidates for archival.
	TierCold ContextTier = "COLD"
)

// Tier thresholds on the importance score.
const (
	HotThreshold  = 0.8
	WarmThreshold = 0.4
)

// TierForScore returns the tier a given importance score maps to.
// The mapping is the single source of truth for tier assignment:
// HOT >= 0.8, WARM in [0.4, 0.8), COLD < 0.4.
func TierForScore(score float64) ContextTier {
	switch {
	case score >= HotThreshold:
		return TierHot
	case score >= WarmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// ContextItemType identifies what kind of information a context item holds.
type ContextItemType string

const (
	// ContextTypeRequirement is an explicit user requirement.
	ContextTypeRequirement ContextItemType = "requirement"
	// ContextTypeDecision is a design or architectural decision.
	ContextTypeDecision ContextItemType = "decision"
	// ContextTypeCode is a code snippet or file excerpt.
	ContextTypeCode ContextItemType = "code"
	// ContextTypeTestResult is test runner output.
	ContextTypeTestResult ContextItemType = "test_result"
	// ContextTypeConversation is an LLM exchange.
	ContextTypeConversation ContextItemType = "conversation"
	// ContextTypeLog is diagnostic output.
	ContextTypeLog ContextItemType = "log"
	// ContextTypeCheckpoint is a flash-save summary of archived items.
	ContextTypeCheckpoint ContextItemType = "checkpoint"
)

// ContextItem is one entry in an agent's working memory.
// Items are scoped per (agent, project); agents never see each other's items.
type ContextItem struct {
	// ID is the unique identifier for this item.
	ID string `json:"id"`
	// AgentID is the owning agent.
	AgentID string `json:"agent_id"`
	// ProjectID is the owning project.
	ProjectID string `json:"project_id"`
	// TaskID links the item to the task it was produced under, if any.
	TaskID string `json:"task_id,omitempty"`
	// ItemType identifies what kind of information this item holds.
	ItemType ContextItemType `json:"item_type"`
	// Content is the item payload.
	Content string `json:"content"`
	// ImportanceScore is the current score in [0,1].
	ImportanceScore float64 `json:"importance_score"`
	// Tier is derived from ImportanceScore via TierForScore.
	Tier ContextTier `json:"tier"`
	// AccessCount is the number of times this item has been read.
	AccessCount int `json:"access_count"`
	// Archived marks an item that has been moved out of the active set.
	Archived bool `json:"archived,omitempty"`
	// LastAccessed is when the item was last read.
	LastAccessed time.Time `json:"last_accessed"`
	// CreatedAt is when the item was created.
	CreatedAt time.Time `json:"created_at"`
}
