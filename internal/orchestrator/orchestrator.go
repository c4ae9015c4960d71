// Package orchestrator schedules tasks from the dependency graph onto a
// pool of agents and owns the session lifecycle around them.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frankbria/codeframe-sub011/internal/blocker"
	"github.com/frankbria/codeframe-sub011/internal/config"
	"github.com/frankbria/codeframe-sub011/internal/events"
	"github.com/frankbria/codeframe-sub011/internal/graph"
	"github.com/frankbria/codeframe-sub011/internal/session"
	"github.com/frankbria/codeframe-sub011/internal/worker"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// TaskExecutor runs a single task to a terminal outcome.
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.Task) (*worker.Outcome, error)
}

// ExecutorFactory builds the executor for one agent.
type ExecutorFactory func(agent *models.Agent) TaskExecutor

// StateStore is the durable persistence the orchestrator writes through.
type StateStore interface {
	SaveTask(projectID string, t *models.Task) error
	SaveAgent(projectID string, a *models.Agent) error
}

// Orchestrator is the single scheduler for one project run. The run loop
// is the only goroutine that makes scheduling decisions; workers only
// execute and report back over the results channel.
type Orchestrator struct {
	projectID string
	graph     *graph.Graph
	blockers  *blocker.Coordinator
	pool      *Pool
	factory   ExecutorFactory
	executors map[string]TaskExecutor

	store    StateStore
	sessions *session.Manager
	events   events.Broadcaster
	plan     string

	sweepInterval time.Duration
	results       chan taskResult
	inflight      int

	debugLog func(format string, args ...interface{})
}

type taskResult struct {
	task    *models.Task
	lease   *Lease
	outcome *worker.Outcome
	err     error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStateStore sets the durable store tasks and agents are written to.
func WithStateStore(s StateStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithSessionManager sets the session snapshot writer.
func WithSessionManager(m *session.Manager) Option {
	return func(o *Orchestrator) { o.sessions = m }
}

// WithBroadcaster sets the event sink.
func WithBroadcaster(b events.Broadcaster) Option {
	return func(o *Orchestrator) { o.events = b }
}

// WithPlan sets the human-readable plan recorded in session snapshots.
func WithPlan(plan string) Option {
	return func(o *Orchestrator) { o.plan = plan }
}

// WithSweepInterval overrides how often blockers are swept for expiry and
// the session snapshot is refreshed.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithDebugLog sets a tracing hook.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(o *Orchestrator) {
		o.debugLog = fn
		o.graph.SetDebugLog(fn)
	}
}

// New creates an Orchestrator over the given graph, blocker coordinator,
// and pool. The factory builds one executor per spawned agent.
func New(projectID string, g *graph.Graph, blockers *blocker.Coordinator, pool *Pool, factory ExecutorFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		projectID:     projectID,
		graph:         g,
		blockers:      blockers,
		pool:          pool,
		factory:       factory,
		executors:     make(map[string]TaskExecutor),
		events:        events.NopBroadcaster{},
		sweepInterval: 30 * time.Second,
		results:       make(chan taskResult, 64),
		debugLog:      func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SpawnTeam creates and registers agents from the team profiles, wiring an
// executor for each.
func (o *Orchestrator) SpawnTeam(profiles *config.Profiles) error {
	for _, profile := range profiles.Agents {
		for i := 0; i < profile.Count; i++ {
			agent := &models.Agent{
				ID:        fmt.Sprintf("%s-%s", profile.Type, uuid.New().String()[:8]),
				Type:      profile.Type,
				Status:    models.AgentStatusIdle,
				Maturity:  profile.MaturityLevel(),
				CreatedAt: time.Now(),
			}
			if err := o.pool.Register(agent); err != nil {
				return err
			}
			o.executors[agent.ID] = o.factory(agent)
			if o.store != nil {
				if err := o.store.SaveAgent(o.projectID, agent); err != nil {
					return fmt.Errorf("persist agent %s: %w", agent.ID, err)
				}
			}
			o.debugLog("[orchestrator] spawned agent %s (maturity D%d)", agent.ID, agent.Maturity)
		}
	}
	return nil
}

// AddTask validates and inserts a task, persisting it on success.
func (o *Orchestrator) AddTask(task *models.Task) error {
	if err := o.graph.AddTask(task); err != nil {
		return err
	}
	return o.persistTask(task)
}

// Graph exposes the task graph for status displays.
func (o *Orchestrator) Graph() *graph.Graph {
	return o.graph
}

// Blockers exposes the blocker coordinator for CLI commands.
func (o *Orchestrator) Blockers() *blocker.Coordinator {
	return o.blockers
}

func (o *Orchestrator) persistTask(task *models.Task) error {
	if o.store == nil {
		return nil
	}
	return o.store.SaveTask(o.projectID, task)
}

// persistTransition writes the task with its intended terminal status
// before the graph applies it. The in-memory transition and its dependent
// cascade only happen once the store has confirmed the write.
func (o *Orchestrator) persistTransition(task *models.Task, status models.TaskStatus) error {
	if o.store == nil {
		return nil
	}
	pending := *task
	pending.Status = status
	now := time.Now()
	pending.UpdatedAt = now
	pending.CompletedAt = &now
	return o.store.SaveTask(o.projectID, &pending)
}

func (o *Orchestrator) persistAgent(agent *models.Agent) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveAgent(o.projectID, agent); err != nil {
		o.debugLog("[orchestrator] persist agent %s: %v", agent.ID, err)
	}
}

// saveSession writes the current snapshot. Failures are logged, never
// fatal to the run.
func (o *Orchestrator) saveSession() {
	if o.sessions == nil {
		return
	}
	snap := BuildSnapshot(o.graph, o.blockers, o.plan)
	if err := o.sessions.Save(snap); err != nil {
		o.debugLog("[orchestrator] save session: %v", err)
		return
	}
	o.events.Publish(events.EventSessionSaved, map[string]any{
		"progress_pct": snap.ProgressPct,
	})
}
