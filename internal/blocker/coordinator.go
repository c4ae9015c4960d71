package blocker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/frankbria/codeframe-sub011/internal/events"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// DefaultTTL is how long a blocker may stay open before expire sweeps it.
const DefaultTTL = 24 * time.Hour

// InvalidStateError reports a blocker operation that is not legal in the
// blocker's current state, such as resolving twice or blocking a task the
// graph does not know about.
type InvalidStateError struct {
	BlockerID string
	Op        string
	Reason    string
}

func (e *InvalidStateError) Error() string {
	if e.BlockerID == "" {
		return fmt.Sprintf("blocker %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("blocker %s: %s: %s", e.BlockerID, e.Op, e.Reason)
}

// TaskGate is the slice of the task graph the coordinator needs: holding
// and releasing tasks for SYNC blockers.
type TaskGate interface {
	MarkBlocked(taskID, reason string) error
	MarkReadyFromBlocked(taskID string) error
}

// Persistence stores blockers durably.
type Persistence interface {
	SaveBlocker(b *models.Blocker) error
	UpdateBlocker(b *models.Blocker) error
}

// Resolution is pushed to the resume channel when a blocker is answered,
// so waiting workers can pick their task back up.
type Resolution struct {
	BlockerID string
	TaskID    string
	Kind      models.BlockerKind
	Answer    string
}

// Coordinator owns the blocker lifecycle: create, resolve, expire. SYNC
// blockers hold their task in the graph atomically with creation; resolving
// or expiring them releases the hold.
type Coordinator struct {
	projectID string
	gate      TaskGate
	persist   Persistence
	events    events.Broadcaster
	ttl       time.Duration

	mu       sync.Mutex
	blockers map[string]*models.Blocker
	resumes  chan Resolution

	debugLog func(format string, args ...interface{})
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTL overrides the stale-blocker timeout.
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPersistence sets the durable store for blockers.
func WithPersistence(p Persistence) Option {
	return func(c *Coordinator) { c.persist = p }
}

// WithBroadcaster sets the event sink.
func WithBroadcaster(b events.Broadcaster) Option {
	return func(c *Coordinator) { c.events = b }
}

// WithDebugLog sets a tracing hook.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(c *Coordinator) { c.debugLog = fn }
}

// NewCoordinator creates a Coordinator bound to the given task gate.
func NewCoordinator(projectID string, gate TaskGate, opts ...Option) *Coordinator {
	c := &Coordinator{
		projectID: projectID,
		gate:      gate,
		events:    events.NopBroadcaster{},
		ttl:       DefaultTTL,
		blockers:  make(map[string]*models.Blocker),
		resumes:   make(chan Resolution, 64),
		debugLog:  func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolutions returns the channel resume signals are delivered on.
func (c *Coordinator) Resolutions() <-chan Resolution {
	return c.resumes
}

// Create registers a blocker. For SYNC blockers the associated task is
// marked BLOCKED in the same critical section, so no scheduler pass can
// observe the blocker without the hold. ASYNC blockers never touch the task.
func (c *Coordinator) Create(agentID, taskID string, kind models.BlockerKind, question string, priority int) (*models.Blocker, error) {
	if !kind.Valid() {
		return nil, &InvalidStateError{Op: "create", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if question == "" {
		return nil, &InvalidStateError{Op: "create", Reason: "empty question"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := &models.Blocker{
		ID:        uuid.New().String(),
		ProjectID: c.projectID,
		AgentID:   agentID,
		TaskID:    taskID,
		Kind:      kind,
		Question:  question,
		Status:    models.BlockerOpen,
		Priority:  priority,
		CreatedAt: time.Now(),
	}

	if kind == models.BlockerSync {
		if err := c.gate.MarkBlocked(taskID, "blocker:"+b.ID); err != nil {
			return nil, &InvalidStateError{BlockerID: b.ID, Op: "create", Reason: err.Error()}
		}
	}

	if c.persist != nil {
		if err := c.persist.SaveBlocker(b); err != nil {
			// Undo the hold so the graph does not reference a blocker
			// that was never recorded.
			if kind == models.BlockerSync {
				_ = c.gate.MarkReadyFromBlocked(taskID)
			}
			return nil, fmt.Errorf("persist blocker: %w", err)
		}
	}

	c.blockers[b.ID] = b
	c.debugLog("[blocker] created %s kind=%s task=%s", b.ID, kind, taskID)
	c.events.Publish(events.EventBlockerCreated, map[string]any{
		"blocker_id": b.ID,
		"task_id":    taskID,
		"kind":       string(kind),
		"question":   question,
	})
	return b, nil
}

// Resolve records the human answer, releases the SYNC hold if any, and
// emits a resume signal. Resolving a missing or already-settled blocker
// returns an InvalidStateError.
func (c *Coordinator) Resolve(blockerID, answer string) (*models.Blocker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.blockers[blockerID]
	if !ok {
		return nil, &InvalidStateError{BlockerID: blockerID, Op: "resolve", Reason: "not found"}
	}
	if b.Status != models.BlockerOpen {
		return nil, &InvalidStateError{BlockerID: blockerID, Op: "resolve", Reason: fmt.Sprintf("already %s", b.Status)}
	}

	// Release the hold before mutating: a blocker whose task is gone
	// cannot be resolved, and must stay OPEN.
	if b.Kind == models.BlockerSync {
		if err := c.gate.MarkReadyFromBlocked(b.TaskID); err != nil {
			return nil, &InvalidStateError{BlockerID: blockerID, Op: "resolve", Reason: err.Error()}
		}
	}

	now := time.Now()
	b.Status = models.BlockerResolved
	b.Answer = &answer
	b.ResolvedAt = &now

	if c.persist != nil {
		if err := c.persist.UpdateBlocker(b); err != nil {
			// Undo so a retry sees the blocker still open and held.
			b.Status = models.BlockerOpen
			b.Answer = nil
			b.ResolvedAt = nil
			if b.Kind == models.BlockerSync {
				_ = c.gate.MarkBlocked(b.TaskID, "blocker:"+b.ID)
			}
			return nil, fmt.Errorf("persist blocker resolution: %w", err)
		}
	}

	c.debugLog("[blocker] resolved %s task=%s", b.ID, b.TaskID)
	c.events.Publish(events.EventBlockerResolved, map[string]any{
		"blocker_id": b.ID,
		"task_id":    b.TaskID,
	})

	select {
	case c.resumes <- Resolution{BlockerID: b.ID, TaskID: b.TaskID, Kind: b.Kind, Answer: answer}:
	default:
		c.debugLog("[blocker] resume channel full, dropping signal for %s", b.ID)
	}
	return b, nil
}

// ExpireStale sweeps blockers open longer than the TTL, marking them
// EXPIRED and releasing SYNC holds so their tasks can be rescheduled.
// Returns the expired blockers.
func (c *Coordinator) ExpireStale(now time.Time) []*models.Blocker {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*models.Blocker
	for _, b := range c.blockers {
		if b.Status != models.BlockerOpen {
			continue
		}
		if now.Sub(b.CreatedAt) < c.ttl {
			continue
		}
		when := now
		b.Status = models.BlockerExpired
		b.ResolvedAt = &when

		if b.Kind == models.BlockerSync {
			if err := c.gate.MarkReadyFromBlocked(b.TaskID); err != nil {
				c.debugLog("[blocker] release expired hold for %s failed: %v", b.TaskID, err)
			}
		}
		if c.persist != nil {
			if err := c.persist.UpdateBlocker(b); err != nil {
				c.debugLog("[blocker] persist expiry for %s failed: %v", b.ID, err)
			}
		}
		c.events.Publish(events.EventBlockerExpired, map[string]any{
			"blocker_id": b.ID,
			"task_id":    b.TaskID,
		})
		expired = append(expired, b)
	}
	if len(expired) > 0 {
		c.debugLog("[blocker] expired %d stale blockers", len(expired))
	}
	return expired
}

// Get returns a blocker by ID, or nil if unknown.
func (c *Coordinator) Get(blockerID string) *models.Blocker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockers[blockerID]
}

// Open returns all open blockers, highest priority first, ties broken by
// age (oldest first).
func (c *Coordinator) Open() []*models.Blocker {
	c.mu.Lock()
	defer c.mu.Unlock()

	var open []*models.Blocker
	for _, b := range c.blockers {
		if b.Status == models.BlockerOpen {
			open = append(open, b)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].Priority != open[j].Priority {
			return open[i].Priority > open[j].Priority
		}
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return open
}

// OpenForTask reports whether the task has an open SYNC blocker.
func (c *Coordinator) OpenForTask(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.blockers {
		if b.TaskID == taskID && b.Kind == models.BlockerSync && b.Status == models.BlockerOpen {
			return true
		}
	}
	return false
}

// Restore loads previously persisted blockers into the coordinator, used
// when resuming a session. Holds are not re-applied; the graph is restored
// separately with its task statuses intact.
func (c *Coordinator) Restore(blockers []*models.Blocker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range blockers {
		c.blockers[b.ID] = b
	}
}
