package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// SaveTask inserts or replaces a task row.
func (db *DB) SaveTask(projectID string, t *models.Task) error {
	deps, err := json.Marshal(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	_, err = db.Exec(`
		INSERT OR REPLACE INTO tasks
		(id, project_id, title, description, status, depends_on, priority,
		 agent_type, assigned_agent_id, blocked_reason, error, retry_count,
		 created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, projectID, t.Title, t.Description, string(t.Status), string(deps),
		t.Priority, string(t.AgentType), t.AssignedAgentID, t.BlockedReason,
		t.Error, t.RetryCount, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		formatNullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask loads one task by ID, or nil if absent.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, title, description, status, depends_on, priority,
		       agent_type, assigned_agent_id, blocked_reason, error,
		       retry_count, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTasks loads all tasks for a project ordered by creation time.
func (db *DB) ListTasks(projectID string) ([]*models.Task, error) {
	rows, err := db.Query(`
		SELECT id, title, description, status, depends_on, priority,
		       agent_type, assigned_agent_id, blocked_reason, error,
		       retry_count, created_at, updated_at, completed_at
		FROM tasks WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	var status, agentType, deps, createdAt, updatedAt string
	var completedAt sql.NullString

	err := s.Scan(&t.ID, &t.Title, &t.Description, &status, &deps, &t.Priority,
		&agentType, &t.AssignedAgentID, &t.BlockedReason, &t.Error,
		&t.RetryCount, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.AgentType = models.AgentType(agentType)
	if deps != "" && deps != "null" {
		if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on for %s: %w", t.ID, err)
		}
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", t.ID, err)
	}
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}
