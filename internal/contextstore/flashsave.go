package contextstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// Checkpoint is the durable result of a flash save: the retained HOT/WARM
// items plus a compact summary of the archived COLD items.
type Checkpoint struct {
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// ProjectID and AgentID scope the checkpoint.
	ProjectID string `json:"project_id"`
	AgentID   string `json:"agent_id"`
	// Items are the retained HOT and WARM items at save time.
	Items []*models.ContextItem `json:"items"`
	// ColdSummary is a compact digest of the archived COLD items.
	ColdSummary string `json:"cold_summary"`
	// ArchivedCount is the number of COLD items moved out of the working set.
	ArchivedCount int `json:"archived_count"`
	// TokensBefore and TokensAfter measure the reduction.
	TokensBefore int `json:"tokens_before"`
	TokensAfter  int `json:"tokens_after"`
	// CreatedAt is when the checkpoint was taken.
	CreatedAt time.Time `json:"created_at"`
}

// ReductionPct returns the active-token reduction achieved, 0-100.
func (c *Checkpoint) ReductionPct() float64 {
	if c.TokensBefore == 0 {
		return 0
	}
	return 100 * float64(c.TokensBefore-c.TokensAfter) / float64(c.TokensBefore)
}

// Cold-summary bounds. The digest must stay far smaller than the items it
// replaces or the flash save buys nothing.
const (
	maxSummaryLineLen  = 60
	maxSummaryExamples = 8
)

// FlashSave checkpoints the agent's working memory: scores are recalculated,
// HOT and WARM items are serialized into a checkpoint together with a
// summary of the COLD items, and the COLD items are archived out of the
// active set. The summary itself joins the working set so the agent resumes
// from retained items plus the digest.
func (s *Store) FlashSave(agentID string) (*Checkpoint, error) {
	ac := s.agent(agentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if _, err := s.recalculateLocked(ac); err != nil {
		return nil, err
	}

	tokensBefore := s.activeTokensLocked(ac)

	var retained []*models.ContextItem
	var cold []*models.ContextItem
	for _, item := range ac.items {
		if item.Tier == models.TierCold {
			cold = append(cold, item)
		} else {
			retained = append(retained, item)
		}
	}

	if len(cold) == 0 {
		return nil, fmt.Errorf("no cold items to archive for agent %s", agentID)
	}

	summary := summarizeCold(cold)

	now := time.Now()
	cp := &Checkpoint{
		ID:            uuid.New().String(),
		ProjectID:     s.projectID,
		AgentID:       agentID,
		Items:         retained,
		ColdSummary:   summary,
		ArchivedCount: len(cold),
		TokensBefore:  tokensBefore,
		CreatedAt:     now,
	}

	// Archive first so a failure leaves the working set intact.
	coldIDs := make([]string, len(cold))
	for i, item := range cold {
		coldIDs[i] = item.ID
	}
	if s.persist != nil {
		if err := s.persist.ArchiveContextItems(s.projectID, agentID, coldIDs); err != nil {
			return nil, fmt.Errorf("archive cold items: %w", err)
		}
	}
	for _, item := range cold {
		item.Archived = true
		delete(ac.items, item.ID)
	}

	// The digest joins the working set as a checkpoint item.
	summaryItem := &models.ContextItem{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		ProjectID:    s.projectID,
		ItemType:     models.ContextTypeCheckpoint,
		Content:      summary,
		CreatedAt:    now,
		LastAccessed: now,
	}
	summaryItem.ImportanceScore = s.cfg.Score.Score(summaryItem, now)
	summaryItem.Tier = models.TierForScore(summaryItem.ImportanceScore)
	if s.persist != nil {
		if err := s.persist.SaveContextItem(summaryItem); err != nil {
			return nil, fmt.Errorf("persist checkpoint summary: %w", err)
		}
	}
	ac.items[summaryItem.ID] = summaryItem

	cp.TokensAfter = s.activeTokensLocked(ac)
	if s.persist != nil {
		if err := s.persist.SaveCheckpoint(cp); err != nil {
			return nil, fmt.Errorf("persist checkpoint: %w", err)
		}
	}
	return cp, nil
}

// summarizeCold digests archived items: per-type counts plus a bounded
// number of truncated example lines.
func summarizeCold(cold []*models.ContextItem) string {
	counts := make(map[models.ContextItemType]int)
	for _, item := range cold {
		counts[item.ItemType]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Archived %d cold context items (", len(cold))
	first := true
	for _, t := range []models.ContextItemType{
		models.ContextTypeRequirement, models.ContextTypeDecision,
		models.ContextTypeCode, models.ContextTypeTestResult,
		models.ContextTypeConversation, models.ContextTypeLog,
		models.ContextTypeCheckpoint,
	} {
		if counts[t] == 0 {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d %s", counts[t], t)
		first = false
	}
	b.WriteString("). Most recent:\n")

	examples := append([]*models.ContextItem(nil), cold...)
	sort.Slice(examples, func(i, j int) bool {
		return examples[i].CreatedAt.Before(examples[j].CreatedAt)
	})
	if len(examples) > maxSummaryExamples {
		examples = examples[len(examples)-maxSummaryExamples:]
	}
	for _, item := range examples {
		line := strings.ReplaceAll(item.Content, "\n", " ")
		// Cut on a rune boundary so the summary stays valid UTF-8.
		if r := []rune(line); len(r) > maxSummaryLineLen {
			line = string(r[:maxSummaryLineLen]) + "..."
		}
		fmt.Fprintf(&b, "- [%s] %s\n", item.ItemType, line)
	}
	return b.String()
}
