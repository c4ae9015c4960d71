package blocker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// AnswerWatcher resolves blockers from answer files. Dropping a file named
// <blocker-id>.answer into the answers directory resolves that blocker with
// the file's contents, so humans can answer from any editor or script
// without going through the CLI.
type AnswerWatcher struct {
	coord      *Coordinator
	answersDir string
	watcher    *fsnotify.Watcher
	done       chan struct{}

	debugLog func(format string, args ...interface{})
}

// NewAnswerWatcher creates the answers directory and starts watching it.
func NewAnswerWatcher(coord *Coordinator, dir string, debugLog func(format string, args ...interface{})) (*AnswerWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create answers dir: %w", err)
	}
	if debugLog == nil {
		debugLog = func(string, ...interface{}) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start answer watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch answers dir: %w", err)
	}

	aw := &AnswerWatcher{
		coord:      coord,
		answersDir: dir,
		watcher:    watcher,
		done:       make(chan struct{}),
		debugLog:   debugLog,
	}
	// Consume answers dropped while nothing was watching.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			aw.handleFile(filepath.Join(dir, entry.Name()))
		}
	}

	go aw.loop()
	return aw, nil
}

func (aw *AnswerWatcher) loop() {
	for {
		select {
		case <-aw.done:
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			aw.handleFile(event.Name)
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.debugLog("[blocker] answer watcher error: %v", err)
		}
	}
}

// handleFile resolves the blocker named by the file, then removes the file
// so a re-run does not resolve twice.
func (aw *AnswerWatcher) handleFile(path string) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".answer") {
		return
	}
	blockerID := strings.TrimSuffix(base, ".answer")

	content, err := os.ReadFile(path)
	if err != nil {
		aw.debugLog("[blocker] read answer file %s: %v", path, err)
		return
	}
	answer := strings.TrimSpace(string(content))
	if answer == "" {
		return
	}

	if _, err := aw.coord.Resolve(blockerID, answer); err != nil {
		aw.debugLog("[blocker] resolve from file %s: %v", base, err)
		return
	}
	if err := os.Remove(path); err != nil {
		aw.debugLog("[blocker] remove answer file %s: %v", path, err)
	}
}

// Close stops the watcher.
func (aw *AnswerWatcher) Close() error {
	close(aw.done)
	if aw.watcher != nil {
		return aw.watcher.Close()
	}
	return nil
}
