package state

import (
	"database/sql"
	"fmt"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// SaveBlocker inserts a blocker row.
func (db *DB) SaveBlocker(b *models.Blocker) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO blockers
		(id, project_id, agent_id, task_id, kind, question, answer,
		 status, priority, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.AgentID, b.TaskID, string(b.Kind), b.Question,
		nullableString(b.Answer), string(b.Status), b.Priority,
		formatTime(b.CreatedAt), formatNullableTime(b.ResolvedAt))
	if err != nil {
		return fmt.Errorf("save blocker %s: %w", b.ID, err)
	}
	return nil
}

// UpdateBlocker rewrites the mutable columns of a blocker.
func (db *DB) UpdateBlocker(b *models.Blocker) error {
	_, err := db.Exec(`
		UPDATE blockers SET answer = ?, status = ?, resolved_at = ? WHERE id = ?`,
		nullableString(b.Answer), string(b.Status), formatNullableTime(b.ResolvedAt), b.ID)
	if err != nil {
		return fmt.Errorf("update blocker %s: %w", b.ID, err)
	}
	return nil
}

// ListBlockers loads all blockers for a project, oldest first.
func (db *DB) ListBlockers(projectID string) ([]*models.Blocker, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_id, task_id, kind, question, answer,
		       status, priority, created_at, resolved_at
		FROM blockers WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list blockers: %w", err)
	}
	defer rows.Close()

	var blockers []*models.Blocker
	for rows.Next() {
		var b models.Blocker
		var kind, status, createdAt string
		var answer, resolvedAt sql.NullString
		err := rows.Scan(&b.ID, &b.ProjectID, &b.AgentID, &b.TaskID, &kind,
			&b.Question, &answer, &status, &b.Priority, &createdAt, &resolvedAt)
		if err != nil {
			return nil, err
		}
		b.Kind = models.BlockerKind(kind)
		b.Status = models.BlockerStatus(status)
		if answer.Valid {
			b.Answer = &answer.String
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for blocker %s: %w", b.ID, err)
		}
		b.ResolvedAt = parseNullableTime(resolvedAt)
		blockers = append(blockers, &b)
	}
	return blockers, rows.Err()
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
