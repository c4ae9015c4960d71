package state

import (
	"database/sql"
	"fmt"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// SaveAgent inserts or replaces an agent row.
func (db *DB) SaveAgent(projectID string, a *models.Agent) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO agents
		(id, project_id, type, status, current_task_id, maturity,
		 tasks_completed, tasks_failed, self_corrections, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, projectID, string(a.Type), string(a.Status), a.CurrentTaskID,
		int(a.Maturity), a.Metrics.TasksCompleted, a.Metrics.TasksFailed,
		a.Metrics.SelfCorrections, a.Metrics.TokensUsed, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent loads one agent by ID, or nil if absent.
func (db *DB) GetAgent(id string) (*models.Agent, error) {
	row := db.QueryRow(`
		SELECT id, type, status, current_task_id, maturity,
		       tasks_completed, tasks_failed, self_corrections, tokens_used, created_at
		FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAgents loads all agents for a project.
func (db *DB) ListAgents(projectID string) ([]*models.Agent, error) {
	rows, err := db.Query(`
		SELECT id, type, status, current_task_id, maturity,
		       tasks_completed, tasks_failed, self_corrections, tokens_used, created_at
		FROM agents WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(s scanner) (*models.Agent, error) {
	var a models.Agent
	var agentType, status, createdAt string
	var maturity int

	err := s.Scan(&a.ID, &agentType, &status, &a.CurrentTaskID, &maturity,
		&a.Metrics.TasksCompleted, &a.Metrics.TasksFailed,
		&a.Metrics.SelfCorrections, &a.Metrics.TokensUsed, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Type = models.AgentType(agentType)
	a.Status = models.AgentStatus(status)
	a.Maturity = models.MaturityLevel(maturity)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for agent %s: %w", a.ID, err)
	}
	return &a, nil
}
