package state

import (
	"fmt"
	"strings"

	"github.com/frankbria/codeframe-sub011/internal/contextstore"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// SaveContextItem inserts a context item row.
func (db *DB) SaveContextItem(item *models.ContextItem) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO context_items
		(id, project_id, agent_id, task_id, item_type, content,
		 importance_score, tier, access_count, archived, last_accessed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ProjectID, item.AgentID, item.TaskID, string(item.ItemType),
		item.Content, item.ImportanceScore, string(item.Tier), item.AccessCount,
		boolToInt(item.Archived), formatTime(item.LastAccessed), formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("save context item %s: %w", item.ID, err)
	}
	return nil
}

// UpdateContextItem rewrites the mutable columns of a context item.
func (db *DB) UpdateContextItem(item *models.ContextItem) error {
	_, err := db.Exec(`
		UPDATE context_items
		SET importance_score = ?, tier = ?, access_count = ?, archived = ?, last_accessed = ?
		WHERE id = ?`,
		item.ImportanceScore, string(item.Tier), item.AccessCount,
		boolToInt(item.Archived), formatTime(item.LastAccessed), item.ID)
	if err != nil {
		return fmt.Errorf("update context item %s: %w", item.ID, err)
	}
	return nil
}

// ArchiveContextItems marks the given items as archived in one statement.
func (db *DB) ArchiveContextItems(projectID, agentID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+2)
	args = append(args, projectID, agentID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := db.Exec(fmt.Sprintf(`
		UPDATE context_items SET archived = 1
		WHERE project_id = ? AND agent_id = ? AND id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("archive context items: %w", err)
	}
	return nil
}

// ListContextItems loads an agent's context items, optionally including
// archived ones, ordered by creation time.
func (db *DB) ListContextItems(projectID, agentID string, includeArchived bool) ([]*models.ContextItem, error) {
	query := `
		SELECT id, project_id, agent_id, task_id, item_type, content,
		       importance_score, tier, access_count, archived, last_accessed, created_at
		FROM context_items WHERE project_id = ? AND agent_id = ?`
	if !includeArchived {
		query += " AND archived = 0"
	}
	query += " ORDER BY created_at"

	rows, err := db.Query(query, projectID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list context items: %w", err)
	}
	defer rows.Close()

	var items []*models.ContextItem
	for rows.Next() {
		var item models.ContextItem
		var itemType, tier, lastAccessed, createdAt string
		var archived int
		err := rows.Scan(&item.ID, &item.ProjectID, &item.AgentID, &item.TaskID,
			&itemType, &item.Content, &item.ImportanceScore, &tier,
			&item.AccessCount, &archived, &lastAccessed, &createdAt)
		if err != nil {
			return nil, err
		}
		item.ItemType = models.ContextItemType(itemType)
		item.Tier = models.ContextTier(tier)
		item.Archived = archived != 0
		if item.LastAccessed, err = parseTime(lastAccessed); err != nil {
			return nil, fmt.Errorf("parse last_accessed for %s: %w", item.ID, err)
		}
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", item.ID, err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// SaveCheckpoint persists a flash-save checkpoint. The retained items are
// already persisted individually, so only the digest is stored here.
func (db *DB) SaveCheckpoint(cp *contextstore.Checkpoint) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO checkpoints
		(id, project_id, agent_id, cold_summary, archived_count,
		 tokens_before, tokens_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ProjectID, cp.AgentID, cp.ColdSummary, cp.ArchivedCount,
		cp.TokensBefore, cp.TokensAfter, formatTime(cp.CreatedAt))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// ListCheckpoints loads an agent's checkpoints, newest first.
func (db *DB) ListCheckpoints(projectID, agentID string) ([]*contextstore.Checkpoint, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_id, cold_summary, archived_count,
		       tokens_before, tokens_after, created_at
		FROM checkpoints WHERE project_id = ? AND agent_id = ?
		ORDER BY created_at DESC`, projectID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*contextstore.Checkpoint
	for rows.Next() {
		var cp contextstore.Checkpoint
		var createdAt string
		err := rows.Scan(&cp.ID, &cp.ProjectID, &cp.AgentID, &cp.ColdSummary,
			&cp.ArchivedCount, &cp.TokensBefore, &cp.TokensAfter, &createdAt)
		if err != nil {
			return nil, err
		}
		if cp.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for checkpoint %s: %w", cp.ID, err)
		}
		cps = append(cps, &cp)
	}
	return cps, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
