package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Context.TokenBudget != 100000 {
		t.Errorf("token budget = %d, want 100000", cfg.Context.TokenBudget)
	}
	if cfg.Blockers.TTL != 24*time.Hour {
		t.Errorf("blocker ttl = %v, want 24h", cfg.Blockers.TTL)
	}
	if cfg.Pool.MaxConcurrency["backend"] != 2 {
		t.Errorf("backend concurrency = %d, want 2", cfg.Pool.MaxConcurrency["backend"])
	}
	if cfg.Project.Language != "go" {
		t.Errorf("language = %q, want go", cfg.Project.Language)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
anthropic:
  model: claude-sonnet-4-20250514
  request_timeout: 90s
pool:
  max_concurrency:
    backend: 4
context:
  token_budget: 50000
blockers:
  ttl: 1h
project:
  language: python
  commit_changes: false
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Anthropic.RequestTimeout != 90*time.Second {
		t.Errorf("request timeout = %v, want 90s", cfg.Anthropic.RequestTimeout)
	}
	if cfg.Pool.MaxConcurrency["backend"] != 4 {
		t.Errorf("backend concurrency = %d, want 4", cfg.Pool.MaxConcurrency["backend"])
	}
	if cfg.Context.TokenBudget != 50000 {
		t.Errorf("token budget = %d, want 50000", cfg.Context.TokenBudget)
	}
	if cfg.Blockers.TTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", cfg.Blockers.TTL)
	}
	if cfg.Project.Language != "python" || cfg.Project.CommitChanges {
		t.Errorf("project = %+v", cfg.Project)
	}
}

func TestLoadFromPathExpandsAPIKey(t *testing.T) {
	t.Setenv("TEST_CF_KEY", "sk-ant-xyz")
	path := writeFile(t, t.TempDir(), "config.yaml", `
anthropic:
  api_key: ${TEST_CF_KEY}
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-xyz" {
		t.Errorf("api key = %q, want expanded value", cfg.Anthropic.APIKey)
	}
}

func TestLoadProfiles(t *testing.T) {
	path := writeFile(t, t.TempDir(), "agents.yaml", `
agents:
  - type: lead
    count: 1
    maturity: D4
  - type: backend
    count: 3
    maturity: D1
  - type: test
    count: 1
`)

	p, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}
	if len(p.Agents) != 3 {
		t.Fatalf("agents = %d, want 3", len(p.Agents))
	}
	if p.Agents[0].MaturityLevel() != models.MaturityD4 {
		t.Errorf("lead maturity = %v, want D4", p.Agents[0].MaturityLevel())
	}
	if p.Agents[1].Count != 3 || p.Agents[1].MaturityLevel() != models.MaturityD1 {
		t.Errorf("backend profile = %+v", p.Agents[1])
	}
	// Missing maturity defaults to D2.
	if p.Agents[2].MaturityLevel() != models.MaturityD2 {
		t.Errorf("test maturity = %v, want D2", p.Agents[2].MaturityLevel())
	}
}

func TestLoadProfilesRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	badType := writeFile(t, dir, "bad_type.yaml", "agents:\n  - type: wizard\n    count: 1\n")
	if _, err := LoadProfiles(badType); err == nil {
		t.Error("expected error for unknown agent type")
	}

	badCount := writeFile(t, dir, "bad_count.yaml", "agents:\n  - type: backend\n    count: 0\n")
	if _, err := LoadProfiles(badCount); err == nil {
		t.Error("expected error for zero count")
	}
}
