// Package graph provides the dependency graph used for task scheduling.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// CycleError indicates that adding a task would create a circular dependency.
// The graph is left unchanged when this error is returned.
type CycleError struct {
	// TaskID is the task whose insertion was rejected.
	TaskID string
	// Path is the dependency chain that closes the cycle.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("task %s would create a circular dependency: %s", e.TaskID, strings.Join(e.Path, " -> "))
}

// Graph is a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
//
// All mutations are linearizable: the orchestrator goroutine is the only
// writer, and concurrent readers are protected by the internal lock.
type Graph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs of tasks it depends on.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*models.Task),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// AddTask inserts a task and its dependency edges into the graph.
// Acyclicity is validated at insertion, not deferred to traversal: if the
// new edge set would close a cycle the task is not added and a *CycleError
// is returned. Dependencies must already exist in the graph.
func (g *Graph) AddTask(task *models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if _, exists := g.nodes[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	for _, depID := range task.DependsOn {
		// A self-edge is a cycle, not a missing dependency; let the cycle
		// check below classify it.
		if depID == task.ID {
			continue
		}
		if _, exists := g.nodes[depID]; !exists {
			return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
		}
	}

	// Tentatively insert, then DFS from the new node. Any cycle through the
	// new edges must pass through the new node, so one traversal suffices.
	g.nodes[task.ID] = task
	g.edges[task.ID] = append([]string(nil), task.DependsOn...)

	if path := g.findCycleLocked(task.ID); path != nil {
		delete(g.nodes, task.ID)
		delete(g.edges, task.ID)
		return &CycleError{TaskID: task.ID, Path: path}
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	g.refreshStatusLocked(task)
	g.debugLog("[graph.AddTask] added task %s (%d deps, status=%s)", task.ID, len(task.DependsOn), task.Status)
	return nil
}

// findCycleLocked runs a colored DFS from the given node and returns the
// cycle path if one exists. Caller must hold the lock.
func (g *Graph) findCycleLocked(start string) []string {
	// 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge closes the cycle.
				return append(append([]string(nil), stack...), depID)
			case 0:
				if path := visit(depID); path != nil {
					return path
				}
			}
		}

		colors[id] = 2
		stack = stack[:len(stack)-1]
		return nil
	}

	return visit(start)
}

// ReadySet returns tasks whose status is READY, ordered by priority
// descending then creation time ascending for deterministic tie-breaking.
func (g *Graph) ReadySet() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, task := range g.nodes {
		if task.Status == models.TaskStatusReady {
			ready = append(ready, task)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	g.debugLog("[graph.ReadySet] %d of %d tasks ready", len(ready), len(g.nodes))
	return ready
}

// MarkDone records a task as completed and re-evaluates the readiness of
// its dependents.
func (g *Graph) MarkDone(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}

	now := time.Now()
	task.Status = models.TaskStatusDone
	task.UpdatedAt = now
	task.CompletedAt = &now
	g.debugLog("[graph.MarkDone] task %s done", taskID)

	for _, depID := range g.dependentsLocked(taskID) {
		g.refreshStatusLocked(g.nodes[depID])
	}
	return nil
}

// MarkFailed records a task as failed. Dependents can never become ready;
// they are marked blocked with the failure reason for visibility.
func (g *Graph) MarkFailed(taskID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}

	now := time.Now()
	task.Status = models.TaskStatusFailed
	task.Error = reason
	task.UpdatedAt = now
	task.CompletedAt = &now
	g.debugLog("[graph.MarkFailed] task %s failed: %s", taskID, reason)

	for _, depID := range g.dependentsLocked(taskID) {
		dep := g.nodes[depID]
		if dep.Status == models.TaskStatusBacklog || dep.Status == models.TaskStatusReady {
			dep.Status = models.TaskStatusBlocked
			dep.BlockedReason = "dependency_failed:" + taskID
			dep.UpdatedAt = now
			g.debugLog("[graph.MarkFailed] task %s blocked (depends on failed task %s)", depID, taskID)
		}
	}
	return nil
}

// MarkInProgress transitions a READY task to IN_PROGRESS and records the
// agent assignment.
func (g *Graph) MarkInProgress(taskID, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if task.Status != models.TaskStatusReady {
		return fmt.Errorf("task %s is %s, not ready", taskID, task.Status)
	}

	task.Status = models.TaskStatusInProgress
	task.AssignedAgentID = agentID
	task.UpdatedAt = time.Now()
	return nil
}

// MarkBlocked transitions a task to BLOCKED with the given reason.
func (g *Graph) MarkBlocked(taskID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if task.Status.Terminal() {
		return fmt.Errorf("task %s is already %s", taskID, task.Status)
	}

	task.Status = models.TaskStatusBlocked
	task.BlockedReason = reason
	task.UpdatedAt = time.Now()
	g.debugLog("[graph.MarkBlocked] task %s blocked: %s", taskID, reason)
	return nil
}

// MarkReadyFromBlocked returns a BLOCKED task to the scheduling pool.
// It becomes READY if its dependencies are all done, BACKLOG otherwise.
func (g *Graph) MarkReadyFromBlocked(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if task.Status != models.TaskStatusBlocked {
		return fmt.Errorf("task %s is %s, not blocked", taskID, task.Status)
	}

	task.BlockedReason = ""
	task.AssignedAgentID = ""
	task.Status = models.TaskStatusBacklog
	g.refreshStatusLocked(task)
	task.UpdatedAt = time.Now()
	g.debugLog("[graph.MarkReadyFromBlocked] task %s -> %s", taskID, task.Status)
	return nil
}

// Requeue reverts an IN_PROGRESS task to READY so it can be resumed later.
// Used on cancellation so no task is left stuck in progress.
func (g *Graph) Requeue(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.nodes[taskID]
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if task.Status != models.TaskStatusInProgress {
		return fmt.Errorf("task %s is %s, not in progress", taskID, task.Status)
	}

	task.Status = models.TaskStatusReady
	task.AssignedAgentID = ""
	task.UpdatedAt = time.Now()
	g.debugLog("[graph.Requeue] task %s returned to ready", taskID)
	return nil
}

// refreshStatusLocked promotes a BACKLOG task to READY when every dependency
// is DONE. Tasks in any other state are left alone: readiness is a property
// of waiting tasks only. Caller must hold the lock.
func (g *Graph) refreshStatusLocked(task *models.Task) {
	if task.Status != models.TaskStatusBacklog && task.Status != "" {
		return
	}

	for _, depID := range g.edges[task.ID] {
		dep, ok := g.nodes[depID]
		if !ok || dep.Status != models.TaskStatusDone {
			task.Status = models.TaskStatusBacklog
			return
		}
	}
	task.Status = models.TaskStatusReady
}

// Task returns the task for a given ID, or nil if not found.
func (g *Graph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of tasks the given task depends on.
func (g *Graph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(taskID)
}

// dependentsLocked returns dependents without acquiring the lock.
// Caller must hold g.mu.
func (g *Graph) dependentsLocked(taskID string) []string {
	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// CompletedIDs returns the IDs of all tasks marked done.
func (g *Graph) CompletedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, task := range g.nodes {
		if task.Status == models.TaskStatusDone {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Counts returns the number of tasks per status.
func (g *Graph) Counts() map[models.TaskStatus]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[models.TaskStatus]int)
	for _, task := range g.nodes {
		counts[task.Status]++
	}
	return counts
}

// Tasks returns all tasks in the graph in no particular order.
func (g *Graph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.nodes))
	for _, task := range g.nodes {
		tasks = append(tasks, task)
	}
	return tasks
}

// Done reports whether every task in the graph has reached a terminal state
// or is blocked behind a failed dependency.
func (g *Graph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.nodes {
		switch task.Status {
		case models.TaskStatusDone, models.TaskStatusFailed:
			continue
		case models.TaskStatusBlocked:
			if strings.HasPrefix(task.BlockedReason, "dependency_failed:") {
				continue
			}
			return false
		default:
			return false
		}
	}
	return true
}
