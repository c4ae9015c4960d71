package orchestrator

import (
	"fmt"
	"time"

	"github.com/frankbria/codeframe-sub011/internal/blocker"
	"github.com/frankbria/codeframe-sub011/internal/graph"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// maxQuestionLen bounds blocker questions in the snapshot so the file stays
// skimmable.
const maxQuestionLen = 120

// BuildSnapshot derives the session snapshot from live graph and blocker
// state. The snapshot is an ephemeral aggregate: it is recomputed on every
// save and never read back as a source of truth.
func BuildSnapshot(g *graph.Graph, blockers *blocker.Coordinator, plan string) *models.SessionState {
	counts := g.Counts()
	total := g.Size()
	done := counts[models.TaskStatusDone]

	var progress float64
	if total > 0 {
		progress = 100 * float64(done) / float64(total)
	}

	var next []string
	for _, task := range g.ReadySet() {
		if len(next) >= models.MaxNextActions {
			break
		}
		next = append(next, task.Title)
	}

	var active []models.BlockerSummary
	for _, b := range blockers.Open() {
		if len(active) >= models.MaxActiveBlockers {
			break
		}
		question := truncateRunes(b.Question, maxQuestionLen)
		active = append(active, models.BlockerSummary{
			ID:       b.ID,
			TaskID:   b.TaskID,
			Question: question,
			Priority: b.Priority,
		})
	}

	return &models.SessionState{
		LastSessionSummary: summarize(counts, total),
		CompletedTaskIDs:   g.CompletedIDs(),
		NextActions:        next,
		CurrentPlan:        plan,
		ActiveBlockers:     active,
		ProgressPct:        progress,
		Timestamp:          time.Now().UTC(),
	}
}

// truncateRunes shortens s to at most max runes, cutting on a rune boundary
// so snapshots never carry invalid UTF-8.
func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func summarize(counts map[models.TaskStatus]int, total int) string {
	done := counts[models.TaskStatusDone]
	failed := counts[models.TaskStatusFailed]
	blocked := counts[models.TaskStatusBlocked]

	s := fmt.Sprintf("%d of %d tasks complete", done, total)
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	if blocked > 0 {
		s += fmt.Sprintf(", %d blocked", blocked)
	}
	return s
}
