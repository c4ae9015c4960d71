package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/frankbria/codeframe-sub011/internal/blocker"
	"github.com/frankbria/codeframe-sub011/internal/config"
	"github.com/frankbria/codeframe-sub011/internal/graph"
	"github.com/frankbria/codeframe-sub011/internal/worker"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// fakeExecutor resolves each task through a script keyed by task ID.
type fakeExecutor struct {
	mu      sync.Mutex
	outcome func(task *models.Task) *worker.Outcome
	started map[string]int
}

func (f *fakeExecutor) Execute(ctx context.Context, task *models.Task) (*worker.Outcome, error) {
	f.mu.Lock()
	if f.started == nil {
		f.started = make(map[string]int)
	}
	f.started[task.ID]++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.outcome(task), nil
}

func (f *fakeExecutor) startCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[taskID]
}

func completing(task *models.Task) *worker.Outcome {
	return &worker.Outcome{Phase: worker.PhaseCompleted}
}

func newTestOrchestrator(t *testing.T, exec TaskExecutor, limits map[models.AgentType]int, opts ...Option) *Orchestrator {
	t.Helper()
	g := graph.New()
	pool := NewPool(limits)
	coord := blocker.NewCoordinator("proj", g)

	o := New("proj", g, coord, pool, func(agent *models.Agent) TaskExecutor {
		return exec
	}, append(opts, WithSweepInterval(50*time.Millisecond))...)

	if err := o.SpawnTeam(&config.Profiles{Agents: []config.AgentProfile{
		{Type: models.AgentTypeBackend, Count: 2, Maturity: "D2"},
	}}); err != nil {
		t.Fatal(err)
	}
	return o
}

func addTask(t *testing.T, o *Orchestrator, id string, deps ...string) *models.Task {
	t.Helper()
	task := &models.Task{
		ID: id, Title: id, AgentType: models.AgentTypeBackend, DependsOn: deps,
	}
	if err := o.AddTask(task); err != nil {
		t.Fatal(err)
	}
	return task
}

func runToCompletion(t *testing.T, o *Orchestrator, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("run timed out before the graph settled")
	}
}

func TestRunCompletesDependencyChain(t *testing.T) {
	exec := &fakeExecutor{outcome: completing}
	o := newTestOrchestrator(t, exec, map[models.AgentType]int{models.AgentTypeBackend: 2})

	addTask(t, o, "a")
	addTask(t, o, "b", "a")
	addTask(t, o, "c", "b")

	runToCompletion(t, o, 10*time.Second)

	for _, id := range []string{"a", "b", "c"} {
		if got := o.Graph().Task(id).Status; got != models.TaskStatusDone {
			t.Errorf("task %s status = %s, want done", id, got)
		}
	}
	if exec.startCount("b") != 1 {
		t.Errorf("task b executed %d times, want 1", exec.startCount("b"))
	}
}

func TestRunRespectsConcurrencyLimitOfOne(t *testing.T) {
	var mu sync.Mutex
	running, maxRunning := 0, 0

	exec := &fakeExecutor{outcome: func(task *models.Task) *worker.Outcome {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return &worker.Outcome{Phase: worker.PhaseCompleted}
	}}
	o := newTestOrchestrator(t, exec, map[models.AgentType]int{models.AgentTypeBackend: 1})

	addTask(t, o, "x")
	addTask(t, o, "y")

	runToCompletion(t, o, 10*time.Second)

	if maxRunning > 1 {
		t.Errorf("max concurrent executions = %d, want 1", maxRunning)
	}
}

func TestFailedTaskBlocksDependents(t *testing.T) {
	exec := &fakeExecutor{outcome: func(task *models.Task) *worker.Outcome {
		if task.ID == "root" {
			return &worker.Outcome{Phase: worker.PhaseFailed, FailureReason: "tests never passed"}
		}
		return &worker.Outcome{Phase: worker.PhaseCompleted}
	}}
	o := newTestOrchestrator(t, exec, map[models.AgentType]int{models.AgentTypeBackend: 2})

	addTask(t, o, "root")
	addTask(t, o, "child", "root")
	addTask(t, o, "free")

	runToCompletion(t, o, 10*time.Second)

	if got := o.Graph().Task("root").Status; got != models.TaskStatusFailed {
		t.Errorf("root status = %s, want failed", got)
	}
	if got := o.Graph().Task("child").Status; got != models.TaskStatusBlocked {
		t.Errorf("child status = %s, want blocked", got)
	}
	if got := o.Graph().Task("free").Status; got != models.TaskStatusDone {
		t.Errorf("free status = %s, want done", got)
	}
}

func TestBlockedTaskResumesAfterResolve(t *testing.T) {
	var mu sync.Mutex
	blockedOnce := false

	exec := &fakeExecutor{outcome: func(task *models.Task) *worker.Outcome {
		mu.Lock()
		defer mu.Unlock()
		if !blockedOnce {
			blockedOnce = true
			return &worker.Outcome{Phase: worker.PhaseBlocked, BlockerQuestion: "which schema?"}
		}
		return &worker.Outcome{Phase: worker.PhaseCompleted}
	}}
	o := newTestOrchestrator(t, exec, map[models.AgentType]int{models.AgentTypeBackend: 1})
	addTask(t, o, "t1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Wait for the task to block, then answer the blocker.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("task never blocked")
		}
		if len(o.Blockers().Open()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := o.Graph().Task("t1").Status; got != models.TaskStatusBlocked {
		t.Fatalf("task status = %s while blocker open, want blocked", got)
	}

	b := o.Blockers().Open()[0]
	if _, err := o.Blockers().Resolve(b.ID, "use schema v2"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := o.Graph().Task("t1").Status; got != models.TaskStatusDone {
		t.Errorf("task status = %s after resolve, want done", got)
	}
	if exec.startCount("t1") != 2 {
		t.Errorf("task executed %d times, want 2 (block then resume)", exec.startCount("t1"))
	}
}

// recordingStore refuses the first terminal-status writes, then recovers.
type recordingStore struct {
	mu            sync.Mutex
	failTerminals int
	saved         []models.TaskStatus
}

func (s *recordingStore) SaveTask(projectID string, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Status.Terminal() && s.failTerminals > 0 {
		s.failTerminals--
		return fmt.Errorf("save task %s: disk full", task.ID)
	}
	s.saved = append(s.saved, task.Status)
	return nil
}

func (s *recordingStore) SaveAgent(projectID string, agent *models.Agent) error { return nil }

func (s *recordingStore) terminalSaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.saved {
		if st.Terminal() {
			n++
		}
	}
	return n
}

func TestTerminalTransitionRequiresConfirmedWrite(t *testing.T) {
	store := &recordingStore{failTerminals: 1}
	exec := &fakeExecutor{outcome: completing}
	o := newTestOrchestrator(t, exec, map[models.AgentType]int{models.AgentTypeBackend: 1},
		WithStateStore(store))

	addTask(t, o, "a")
	runToCompletion(t, o, 10*time.Second)

	if got := o.Graph().Task("a").Status; got != models.TaskStatusDone {
		t.Fatalf("task a status = %s, want done", got)
	}
	// The refused write must have returned the task to the ready set: it
	// runs again, and only the confirmed attempt reaches the store.
	if n := exec.startCount("a"); n != 2 {
		t.Errorf("task a executed %d times, want 2 (retried after refused write)", n)
	}
	if n := store.terminalSaves(); n != 1 {
		t.Errorf("store recorded %d terminal writes, want 1", n)
	}
}

func TestCancellationNeverLeavesTaskInProgress(t *testing.T) {
	started := make(chan struct{}, 1)
	exec := &fakeExecutor{outcome: completing}
	slow := &slowExecutor{inner: exec, started: started, delay: 5 * time.Second}

	o := newTestOrchestrator(t, slow, map[models.AgentType]int{models.AgentTypeBackend: 1})
	addTask(t, o, "slow-task")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil on graceful shutdown", err)
	}
	if got := o.Graph().Task("slow-task").Status; got != models.TaskStatusReady {
		t.Errorf("task status = %s after cancellation, want ready", got)
	}
}

// slowExecutor blocks until cancelled or the delay elapses.
type slowExecutor struct {
	inner   TaskExecutor
	started chan struct{}
	delay   time.Duration
}

func (s *slowExecutor) Execute(ctx context.Context, task *models.Task) (*worker.Outcome, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return s.inner.Execute(ctx, task)
	}
}

func TestBuildSnapshotLimitsAndProgress(t *testing.T) {
	g := graph.New()
	coord := blocker.NewCoordinator("proj", g)

	for i := 0; i < 10; i++ {
		task := &models.Task{
			ID: string(rune('a' + i)), Title: "task", AgentType: models.AgentTypeBackend,
			Priority: i,
		}
		if err := g.AddTask(task); err != nil {
			t.Fatal(err)
		}
	}
	// Complete four of ten.
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := g.MarkInProgress(id, "agent"); err != nil {
			t.Fatal(err)
		}
		if err := g.MarkDone(id); err != nil {
			t.Fatal(err)
		}
	}
	// Raise a dozen informational blockers.
	for i := 0; i < 12; i++ {
		if _, err := coord.Create("agent", "e", models.BlockerAsync, "q", i); err != nil {
			t.Fatal(err)
		}
	}

	snap := BuildSnapshot(g, coord, "milestone 1")
	if snap.ProgressPct != 40 {
		t.Errorf("progress = %v, want 40", snap.ProgressPct)
	}
	if len(snap.NextActions) != models.MaxNextActions {
		t.Errorf("next actions = %d, want %d", len(snap.NextActions), models.MaxNextActions)
	}
	if len(snap.ActiveBlockers) != models.MaxActiveBlockers {
		t.Errorf("active blockers = %d, want %d", len(snap.ActiveBlockers), models.MaxActiveBlockers)
	}
	if len(snap.CompletedTaskIDs) != 4 {
		t.Errorf("completed = %d, want 4", len(snap.CompletedTaskIDs))
	}
	if snap.CurrentPlan != "milestone 1" {
		t.Errorf("plan = %q", snap.CurrentPlan)
	}
}

func TestSnapshotTruncatesQuestionOnRuneBoundary(t *testing.T) {
	g := graph.New()
	coord := blocker.NewCoordinator("proj", g)

	question := strings.Repeat("ü", maxQuestionLen+40)
	if _, err := coord.Create("agent", "task", models.BlockerAsync, question, 1); err != nil {
		t.Fatal(err)
	}

	snap := BuildSnapshot(g, coord, "")
	if len(snap.ActiveBlockers) != 1 {
		t.Fatalf("active blockers = %d, want 1", len(snap.ActiveBlockers))
	}
	got := snap.ActiveBlockers[0].Question
	if !utf8.ValidString(got) {
		t.Errorf("truncated question is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated question missing ellipsis: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != maxQuestionLen {
		t.Errorf("truncated question is %d runes, want %d", n, maxQuestionLen)
	}
}
