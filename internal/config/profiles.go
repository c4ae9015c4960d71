package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// AgentProfile describes one batch of agents to spawn.
type AgentProfile struct {
	// Type is the agent specialization.
	Type models.AgentType `yaml:"type"`
	// Count is how many agents of this type to create.
	Count int `yaml:"count"`
	// Maturity is the development level (D1-D4) controlling how much
	// instruction the agents receive.
	Maturity string `yaml:"maturity"`
}

// Profiles is the team composition loaded from agents.yaml.
type Profiles struct {
	Agents []AgentProfile `yaml:"agents"`
}

// MaturityLevel parses the profile's maturity string. Unknown or missing
// values default to D2.
func (p AgentProfile) MaturityLevel() models.MaturityLevel {
	switch p.Maturity {
	case "D1":
		return models.MaturityD1
	case "D2", "":
		return models.MaturityD2
	case "D3":
		return models.MaturityD3
	case "D4":
		return models.MaturityD4
	default:
		return models.MaturityD2
	}
}

// LoadProfiles reads a team composition from a YAML file.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for i, agent := range p.Agents {
		if !agent.Type.Valid() {
			return nil, fmt.Errorf("profiles entry %d: unknown agent type %q", i, agent.Type)
		}
		if agent.Count <= 0 {
			return nil, fmt.Errorf("profiles entry %d: count must be positive", i)
		}
	}
	return &p, nil
}

// DefaultProfiles returns the team used when no agents.yaml exists: one
// lead plus a small implementation crew.
func DefaultProfiles() *Profiles {
	return &Profiles{
		Agents: []AgentProfile{
			{Type: models.AgentTypeLead, Count: 1, Maturity: "D3"},
			{Type: models.AgentTypeBackend, Count: 2, Maturity: "D2"},
			{Type: models.AgentTypeFrontend, Count: 1, Maturity: "D2"},
			{Type: models.AgentTypeTest, Count: 1, Maturity: "D2"},
		},
	}
}
