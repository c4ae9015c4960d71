// Package session persists the human-facing session snapshot so a stopped
// run can be resumed with full context.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// StateFileName is the snapshot file kept in the project state directory.
const StateFileName = "session_state.json"

// Manager reads and writes the session snapshot. Writes are atomic: the
// snapshot lands in a temp file first and is renamed into place, so a crash
// mid-write never corrupts the previous snapshot.
type Manager struct {
	dir string

	debugLog func(format string, args ...interface{})
}

// NewManager creates a Manager rooted at the given state directory,
// typically <project>/.codeframe.
func NewManager(dir string, debugLog func(format string, args ...interface{})) *Manager {
	if debugLog == nil {
		debugLog = func(string, ...interface{}) {}
	}
	return &Manager{dir: dir, debugLog: debugLog}
}

// Path returns the snapshot file path.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, StateFileName)
}

// Save writes the snapshot atomically with restrictive permissions. The
// JSON is indented so humans can read the file directly.
func (m *Manager) Save(state *models.SessionState) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(m.dir, StateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}

	if err := os.Rename(tmpName, m.Path()); err != nil {
		return fmt.Errorf("replace session state: %w", err)
	}
	m.debugLog("[session] saved snapshot to %s", m.Path())
	return nil
}

// Load reads the snapshot. A missing or corrupt file returns nil with no
// error: resuming falls back to a fresh session rather than failing.
func (m *Manager) Load() *models.SessionState {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			m.debugLog("[session] read snapshot: %v", err)
		}
		return nil
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		m.debugLog("[session] corrupt snapshot, starting fresh: %v", err)
		return nil
	}
	return &state
}

// Clear removes the snapshot. Missing files are not an error.
func (m *Manager) Clear() error {
	if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session state: %w", err)
	}
	return nil
}
