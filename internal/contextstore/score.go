package contextstore

import (
	"math"
	"time"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// Scoring component weights. These are the blend factors, not the per-type
// weights; together they always sum to 1 so scores stay in [0,1].
const (
	typeWeightFactor  = 0.4
	ageDecayFactor    = 0.4
	accessBoostFactor = 0.2
)

// ScoreConfig holds the tunable parameters of the importance formula.
type ScoreConfig struct {
	// TypeWeights maps item types onto [0,1]. Higher means more important.
	TypeWeights map[models.ContextItemType]float64
	// DefaultTypeWeight is used for unknown item types.
	DefaultTypeWeight float64
	// DecayHalfLife is the age at which the decay component halves.
	DecayHalfLife time.Duration
}

// DefaultScoreConfig returns the standard weights: explicit requirements
// weigh most, raw log lines least.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		TypeWeights: map[models.ContextItemType]float64{
			models.ContextTypeRequirement:  1.0,
			models.ContextTypeCheckpoint:   0.9,
			models.ContextTypeDecision:     0.8,
			models.ContextTypeCode:         0.6,
			models.ContextTypeTestResult:   0.5,
			models.ContextTypeConversation: 0.4,
			models.ContextTypeLog:          0.2,
		},
		DefaultTypeWeight: 0.5,
		DecayHalfLife:     2 * time.Hour,
	}
}

// Score computes the importance of an item at the given time:
//
//	score = 0.4*type_weight + 0.4*age_decay + 0.2*access_boost
//
// age_decay halves every DecayHalfLife; access_boost saturates with the
// access count and decays with time since the last access. The result is
// always in [0,1].
func (c ScoreConfig) Score(item *models.ContextItem, now time.Time) float64 {
	tw, ok := c.TypeWeights[item.ItemType]
	if !ok {
		tw = c.DefaultTypeWeight
	}

	halfLife := c.DecayHalfLife
	if halfLife <= 0 {
		halfLife = 2 * time.Hour
	}

	age := now.Sub(item.CreatedAt)
	if age < 0 {
		age = 0
	}
	decay := math.Exp2(-age.Hours() / halfLife.Hours())

	boost := 0.0
	if item.AccessCount > 0 {
		saturation := float64(item.AccessCount) / float64(item.AccessCount+4)
		sinceAccess := now.Sub(item.LastAccessed)
		if sinceAccess < 0 {
			sinceAccess = 0
		}
		boost = saturation * math.Exp2(-sinceAccess.Hours()/halfLife.Hours())
	}

	score := typeWeightFactor*tw + ageDecayFactor*decay + accessBoostFactor*boost
	return math.Max(0, math.Min(1, score))
}
