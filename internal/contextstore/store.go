package contextstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// Persistence is the slice of the durable store the context manager needs.
// Writes are logically atomic at the boundary; the store makes each call
// durable or rejected as a whole.
type Persistence interface {
	SaveContextItem(item *models.ContextItem) error
	UpdateContextItem(item *models.ContextItem) error
	ArchiveContextItems(projectID, agentID string, ids []string) error
	SaveCheckpoint(cp *Checkpoint) error
}

// Config holds the tunable parameters of a Store.
type Config struct {
	// Score configures the importance formula.
	Score ScoreConfig
	// TokenBudget is the agent's context-window budget in tokens.
	TokenBudget int
	// FlashThreshold is the budget fraction that triggers a flash save.
	FlashThreshold float64
}

// DefaultConfig returns a Config with standard weights, a 100k-token budget
// and the 80% flash-save threshold.
func DefaultConfig() Config {
	return Config{
		Score:          DefaultScoreConfig(),
		TokenBudget:    100_000,
		FlashThreshold: 0.8,
	}
}

// Store is the working-memory cache for agents within one project.
// Items are partitioned by agent, so there is no cross-agent contention;
// score and tier recalculation for a single agent is serialized by a
// per-agent lock.
type Store struct {
	projectID string
	persist   Persistence
	tokenizer Tokenizer
	cfg       Config

	mu     sync.Mutex
	agents map[string]*agentContext
}

// agentContext is one agent's active working set.
type agentContext struct {
	mu    sync.Mutex
	items map[string]*models.ContextItem
}

// New creates a Store for the given project.
func New(projectID string, persist Persistence, tokenizer Tokenizer, cfg Config) *Store {
	if tokenizer == nil {
		tokenizer = HeuristicTokenizer{}
	}
	if cfg.FlashThreshold <= 0 || cfg.FlashThreshold > 1 {
		cfg.FlashThreshold = 0.8
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 100_000
	}
	if cfg.Score.TypeWeights == nil {
		cfg.Score = DefaultScoreConfig()
	}
	return &Store{
		projectID: projectID,
		persist:   persist,
		tokenizer: tokenizer,
		cfg:       cfg,
		agents:    make(map[string]*agentContext),
	}
}

// agent returns the working set for an agent, creating it if needed.
func (s *Store) agent(agentID string) *agentContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.agents[agentID]
	if !ok {
		ac = &agentContext{items: make(map[string]*models.ContextItem)}
		s.agents[agentID] = ac
	}
	return ac
}

// SaveItem scores, tiers, persists and caches a new context item.
// The tier is always recomputed with the score, never set independently.
func (s *Store) SaveItem(item *models.ContextItem) error {
	if item.AgentID == "" {
		return fmt.Errorf("context item has no agent ID")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.ProjectID = s.projectID
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.LastAccessed.IsZero() {
		item.LastAccessed = item.CreatedAt
	}

	item.ImportanceScore = s.cfg.Score.Score(item, now)
	item.Tier = models.TierForScore(item.ImportanceScore)

	ac := s.agent(item.AgentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.SaveContextItem(item); err != nil {
			return fmt.Errorf("persist context item: %w", err)
		}
	}
	ac.items[item.ID] = item
	return nil
}

// LoadItems returns the agent's active items ordered by tier (HOT first)
// then importance descending. With tier filters, only matching tiers are
// returned. Scores are recomputed on read, not eagerly.
func (s *Store) LoadItems(agentID string, tiers ...models.ContextTier) []*models.ContextItem {
	ac := s.agent(agentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()

	now := time.Now()
	wanted := func(tier models.ContextTier) bool {
		if len(tiers) == 0 {
			return true
		}
		for _, t := range tiers {
			if t == tier {
				return true
			}
		}
		return false
	}

	var result []*models.ContextItem
	for _, item := range ac.items {
		item.ImportanceScore = s.cfg.Score.Score(item, now)
		item.Tier = models.TierForScore(item.ImportanceScore)
		if wanted(item.Tier) {
			result = append(result, item)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Tier != result[j].Tier {
			return tierRank(result[i].Tier) < tierRank(result[j].Tier)
		}
		return result[i].ImportanceScore > result[j].ImportanceScore
	})
	return result
}

// Touch records an access to an item, feeding the access-boost component.
func (s *Store) Touch(agentID, itemID string) error {
	ac := s.agent(agentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()

	item, ok := ac.items[itemID]
	if !ok {
		return fmt.Errorf("unknown context item %s", itemID)
	}
	item.AccessCount++
	item.LastAccessed = time.Now()
	if s.persist != nil {
		return s.persist.UpdateContextItem(item)
	}
	return nil
}

// RecalculateScores recomputes the score and tier of every active item for
// the agent. Returns the number of items whose tier changed.
func (s *Store) RecalculateScores(agentID string) (int, error) {
	ac := s.agent(agentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return s.recalculateLocked(ac)
}

// recalculateLocked recomputes scores and tiers. Caller holds the agent lock.
func (s *Store) recalculateLocked(ac *agentContext) (int, error) {
	now := time.Now()
	changed := 0
	for _, item := range ac.items {
		item.ImportanceScore = s.cfg.Score.Score(item, now)
		newTier := models.TierForScore(item.ImportanceScore)
		if newTier != item.Tier {
			item.Tier = newTier
			changed++
		}
		if s.persist != nil {
			if err := s.persist.UpdateContextItem(item); err != nil {
				return changed, fmt.Errorf("persist score update: %w", err)
			}
		}
	}
	return changed, nil
}

// UpdateTiers re-derives every item's tier from its current score.
// Returns the number of items whose tier changed.
func (s *Store) UpdateTiers(agentID string) (int, error) {
	ac := s.agent(agentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()

	changed := 0
	for _, item := range ac.items {
		newTier := models.TierForScore(item.ImportanceScore)
		if newTier == item.Tier {
			continue
		}
		item.Tier = newTier
		changed++
		if s.persist != nil {
			if err := s.persist.UpdateContextItem(item); err != nil {
				return changed, fmt.Errorf("persist tier update: %w", err)
			}
		}
	}
	return changed, nil
}

// ActiveTokens returns the token count of the agent's active working set.
func (s *Store) ActiveTokens(agentID string) int {
	ac := s.agent(agentID)
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return s.activeTokensLocked(ac)
}

func (s *Store) activeTokensLocked(ac *agentContext) int {
	total := 0
	for _, item := range ac.items {
		total += s.tokenizer.Count(item.Content)
	}
	return total
}

// TokenBudget returns the configured context-window budget.
func (s *Store) TokenBudget() int {
	return s.cfg.TokenBudget
}

// ShouldFlashSave returns true once the agent's active token count exceeds
// the flash threshold (80% of budget by default).
func (s *Store) ShouldFlashSave(agentID string) bool {
	return s.ActiveTokens(agentID) > int(float64(s.cfg.TokenBudget)*s.cfg.FlashThreshold)
}

func tierRank(tier models.ContextTier) int {
	switch tier {
	case models.TierHot:
		return 0
	case models.TierWarm:
		return 1
	default:
		return 2
	}
}
