package contextstore

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// memPersist records persistence calls in memory.
type memPersist struct {
	items       map[string]*models.ContextItem
	archived    []string
	checkpoints []*Checkpoint
}

func newMemPersist() *memPersist {
	return &memPersist{items: make(map[string]*models.ContextItem)}
}

func (m *memPersist) SaveContextItem(item *models.ContextItem) error {
	m.items[item.ID] = item
	return nil
}

func (m *memPersist) UpdateContextItem(item *models.ContextItem) error {
	m.items[item.ID] = item
	return nil
}

func (m *memPersist) ArchiveContextItems(projectID, agentID string, ids []string) error {
	m.archived = append(m.archived, ids...)
	return nil
}

func (m *memPersist) SaveCheckpoint(cp *Checkpoint) error {
	m.checkpoints = append(m.checkpoints, cp)
	return nil
}

func newTestStore(persist Persistence, budget int) *Store {
	cfg := DefaultConfig()
	cfg.TokenBudget = budget
	return New("proj-1", persist, HeuristicTokenizer{}, cfg)
}

func TestScoreAlwaysInRange(t *testing.T) {
	cfg := DefaultScoreConfig()
	now := time.Now()

	tests := []struct {
		name string
		item models.ContextItem
	}{
		{"fresh requirement heavily accessed", models.ContextItem{
			ItemType: models.ContextTypeRequirement, CreatedAt: now,
			LastAccessed: now, AccessCount: 1000,
		}},
		{"ancient log never accessed", models.ContextItem{
			ItemType: models.ContextTypeLog, CreatedAt: now.Add(-1000 * time.Hour),
		}},
		{"unknown type", models.ContextItem{
			ItemType: "mystery", CreatedAt: now,
		}},
		{"created in the future", models.ContextItem{
			ItemType: models.ContextTypeCode, CreatedAt: now.Add(time.Hour),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := cfg.Score(&tt.item, now)
			if score < 0 || score > 1 {
				t.Errorf("score = %v, want within [0,1]", score)
			}
		})
	}
}

func TestScoreOrdering(t *testing.T) {
	cfg := DefaultScoreConfig()
	now := time.Now()

	freshReq := &models.ContextItem{ItemType: models.ContextTypeRequirement, CreatedAt: now}
	oldLog := &models.ContextItem{ItemType: models.ContextTypeLog, CreatedAt: now.Add(-24 * time.Hour)}

	if cfg.Score(freshReq, now) <= cfg.Score(oldLog, now) {
		t.Error("fresh requirement should outscore a day-old log line")
	}
}

func TestSaveItemAssignsTierFromScore(t *testing.T) {
	s := newTestStore(newMemPersist(), 1000)

	item := &models.ContextItem{
		AgentID:  "agent-1",
		ItemType: models.ContextTypeRequirement,
		Content:  "must support OAuth login",
	}
	if err := s.SaveItem(item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}

	if item.Tier != models.TierForScore(item.ImportanceScore) {
		t.Errorf("tier %s inconsistent with score %v", item.Tier, item.ImportanceScore)
	}
	if item.Tier != models.TierHot {
		t.Errorf("fresh requirement tier = %s, want HOT", item.Tier)
	}
}

func TestLoadItemsOrderedByTierThenImportance(t *testing.T) {
	s := newTestStore(newMemPersist(), 1000)
	now := time.Now()

	items := []*models.ContextItem{
		{AgentID: "a", ItemType: models.ContextTypeLog, Content: "log", CreatedAt: now.Add(-24 * time.Hour)},
		{AgentID: "a", ItemType: models.ContextTypeRequirement, Content: "req", CreatedAt: now},
		{AgentID: "a", ItemType: models.ContextTypeDecision, Content: "decision", CreatedAt: now.Add(-time.Hour)},
	}
	for _, item := range items {
		if err := s.SaveItem(item); err != nil {
			t.Fatal(err)
		}
	}

	loaded := s.LoadItems("a")
	if len(loaded) != 3 {
		t.Fatalf("loaded %d items, want 3", len(loaded))
	}
	for i := 1; i < len(loaded); i++ {
		prev, cur := loaded[i-1], loaded[i]
		if tierRank(prev.Tier) > tierRank(cur.Tier) {
			t.Errorf("tier order violated at %d: %s after %s", i, cur.Tier, prev.Tier)
		}
		if prev.Tier == cur.Tier && prev.ImportanceScore < cur.ImportanceScore {
			t.Errorf("importance order violated at %d", i)
		}
	}
}

func TestLoadItemsTierFilter(t *testing.T) {
	s := newTestStore(newMemPersist(), 1000)
	now := time.Now()

	// Heavy access keeps the requirement hot even after scores are
	// recomputed on read.
	if err := s.SaveItem(&models.ContextItem{AgentID: "a", ItemType: models.ContextTypeRequirement, Content: "req", CreatedAt: now, AccessCount: 16}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveItem(&models.ContextItem{AgentID: "a", ItemType: models.ContextTypeLog, Content: "log", CreatedAt: now.Add(-24 * time.Hour)}); err != nil {
		t.Fatal(err)
	}

	hot := s.LoadItems("a", models.TierHot)
	for _, item := range hot {
		if item.Tier != models.TierHot {
			t.Errorf("filter returned %s item", item.Tier)
		}
	}
	if len(hot) != 1 {
		t.Errorf("hot items = %d, want 1", len(hot))
	}
}

func TestItemsPartitionedByAgent(t *testing.T) {
	s := newTestStore(newMemPersist(), 1000)

	if err := s.SaveItem(&models.ContextItem{AgentID: "a", ItemType: models.ContextTypeCode, Content: "a's code"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveItem(&models.ContextItem{AgentID: "b", ItemType: models.ContextTypeCode, Content: "b's code"}); err != nil {
		t.Fatal(err)
	}

	if got := len(s.LoadItems("a")); got != 1 {
		t.Errorf("agent a sees %d items, want 1", got)
	}
	if got := len(s.LoadItems("b")); got != 1 {
		t.Errorf("agent b sees %d items, want 1", got)
	}
}

func TestTouchIncreasesScore(t *testing.T) {
	s := newTestStore(newMemPersist(), 1000)
	now := time.Now()

	item := &models.ContextItem{AgentID: "a", ItemType: models.ContextTypeCode, Content: "x", CreatedAt: now.Add(-time.Hour)}
	if err := s.SaveItem(item); err != nil {
		t.Fatal(err)
	}
	before := item.ImportanceScore

	for i := 0; i < 5; i++ {
		if err := s.Touch("a", item.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.RecalculateScores("a"); err != nil {
		t.Fatal(err)
	}

	if item.ImportanceScore <= before {
		t.Errorf("score after access %v, want > %v", item.ImportanceScore, before)
	}
}

func TestShouldFlashSaveThreshold(t *testing.T) {
	s := newTestStore(newMemPersist(), 100) // 100-token budget, threshold at 80

	// ~75 tokens: under threshold.
	if err := s.SaveItem(&models.ContextItem{AgentID: "a", ItemType: models.ContextTypeCode, Content: strings.Repeat("x", 300)}); err != nil {
		t.Fatal(err)
	}
	if s.ShouldFlashSave("a") {
		t.Error("should not flash save below 80% of budget")
	}

	// Push past 80 tokens.
	if err := s.SaveItem(&models.ContextItem{AgentID: "a", ItemType: models.ContextTypeCode, Content: strings.Repeat("y", 80)}); err != nil {
		t.Fatal(err)
	}
	if !s.ShouldFlashSave("a") {
		t.Error("should flash save above 80% of budget")
	}
}

func TestFlashSaveReducesTokens30To50Pct(t *testing.T) {
	persist := newMemPersist()
	s := newTestStore(persist, 10_000)
	now := time.Now()

	// Representative fixture: 100 items, 60% destined for COLD.
	for i := 0; i < 40; i++ {
		item := &models.ContextItem{
			AgentID:   "a",
			ItemType:  models.ContextTypeRequirement,
			Content:   fmt.Sprintf("requirement %03d: %s", i, strings.Repeat("r", 130)),
			CreatedAt: now,
		}
		if err := s.SaveItem(item); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 60; i++ {
		item := &models.ContextItem{
			AgentID:   "a",
			ItemType:  models.ContextTypeLog,
			Content:   fmt.Sprintf("log line %03d: %s", i, strings.Repeat("l", 80)),
			CreatedAt: now.Add(-24 * time.Hour),
		}
		if err := s.SaveItem(item); err != nil {
			t.Fatal(err)
		}
	}

	before := s.ActiveTokens("a")
	cp, err := s.FlashSave("a")
	if err != nil {
		t.Fatalf("FlashSave failed: %v", err)
	}

	if cp.ArchivedCount != 60 {
		t.Errorf("archived = %d, want 60", cp.ArchivedCount)
	}
	if cp.TokensBefore != before {
		t.Errorf("TokensBefore = %d, want %d", cp.TokensBefore, before)
	}

	reduction := cp.ReductionPct()
	if reduction < 30 || reduction > 50 {
		t.Errorf("reduction = %.1f%%, want 30-50%%", reduction)
	}

	if len(persist.archived) != 60 {
		t.Errorf("persisted archive count = %d, want 60", len(persist.archived))
	}
	if len(persist.checkpoints) != 1 {
		t.Fatalf("persisted checkpoints = %d, want 1", len(persist.checkpoints))
	}

	// Working set now holds retained items plus the summary digest.
	remaining := s.LoadItems("a")
	if len(remaining) != 41 {
		t.Errorf("remaining items = %d, want 41", len(remaining))
	}
	foundSummary := false
	for _, item := range remaining {
		if item.ItemType == models.ContextTypeCheckpoint {
			foundSummary = true
		}
		if item.Tier == models.TierCold {
			t.Errorf("cold item %s still in working set", item.ID)
		}
	}
	if !foundSummary {
		t.Error("checkpoint summary missing from working set")
	}
}

func TestColdSummaryTruncatesOnRuneBoundary(t *testing.T) {
	cold := []*models.ContextItem{{
		ItemType:  models.ContextTypeLog,
		Content:   strings.Repeat("ü", maxSummaryLineLen+40),
		CreatedAt: time.Now(),
	}}

	summary := summarizeCold(cold)
	if !utf8.ValidString(summary) {
		t.Errorf("summary is not valid UTF-8: %q", summary)
	}
	if !strings.Contains(summary, "...") {
		t.Errorf("long content was not truncated: %q", summary)
	}
}

func TestFlashSaveWithNoColdItems(t *testing.T) {
	s := newTestStore(newMemPersist(), 1000)
	if err := s.SaveItem(&models.ContextItem{AgentID: "a", ItemType: models.ContextTypeRequirement, Content: "req"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.FlashSave("a"); err == nil {
		t.Error("expected error when nothing can be archived")
	}
}

func TestTiktokenFallback(t *testing.T) {
	tok := NewTiktokenTokenizer("not-a-real-model")
	if got := tok.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	if got := tok.Count("hello world, this is a sentence"); got <= 0 {
		t.Errorf("Count = %d, want > 0", got)
	}
}
