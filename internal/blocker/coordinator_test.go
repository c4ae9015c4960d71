package blocker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// fakeGate records hold and release calls.
type fakeGate struct {
	mu       sync.Mutex
	blocked  map[string]string
	released []string
	failOn   string
}

func newFakeGate() *fakeGate {
	return &fakeGate{blocked: make(map[string]string)}
}

func (g *fakeGate) MarkBlocked(taskID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if taskID == g.failOn {
		return fmt.Errorf("unknown task %s", taskID)
	}
	g.blocked[taskID] = reason
	return nil
}

func (g *fakeGate) MarkReadyFromBlocked(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if taskID == g.failOn {
		return fmt.Errorf("unknown task %s", taskID)
	}
	delete(g.blocked, taskID)
	g.released = append(g.released, taskID)
	return nil
}

func (g *fakeGate) isBlocked(taskID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.blocked[taskID]
	return ok
}

func TestCreateSyncBlocksTask(t *testing.T) {
	gate := newFakeGate()
	c := NewCoordinator("proj", gate)

	b, err := c.Create("agent-1", "task-1", models.BlockerSync, "which auth provider?", 3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if b.Status != models.BlockerOpen {
		t.Errorf("status = %s, want OPEN", b.Status)
	}
	if !gate.isBlocked("task-1") {
		t.Error("SYNC blocker did not hold its task")
	}
}

func TestCreateAsyncDoesNotBlockTask(t *testing.T) {
	gate := newFakeGate()
	c := NewCoordinator("proj", gate)

	if _, err := c.Create("agent-1", "task-1", models.BlockerAsync, "FYI: schema drift", 1); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if gate.isBlocked("task-1") {
		t.Error("ASYNC blocker must not hold its task")
	}
}

func TestCreateOnUnknownTask(t *testing.T) {
	gate := newFakeGate()
	gate.failOn = "ghost"
	c := NewCoordinator("proj", gate)

	_, err := c.Create("agent-1", "ghost", models.BlockerSync, "?", 1)
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	c := NewCoordinator("proj", newFakeGate())

	if _, err := c.Create("a", "t", models.BlockerKind("MAYBE"), "?", 1); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := c.Create("a", "t", models.BlockerSync, "", 1); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestResolveReleasesHoldAndSignals(t *testing.T) {
	gate := newFakeGate()
	c := NewCoordinator("proj", gate)

	b, err := c.Create("agent-1", "task-1", models.BlockerSync, "which port?", 2)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := c.Resolve(b.ID, "8080")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Status != models.BlockerResolved {
		t.Errorf("status = %s, want RESOLVED", resolved.Status)
	}
	if resolved.Answer == nil || *resolved.Answer != "8080" {
		t.Errorf("answer not recorded: %v", resolved.Answer)
	}
	if resolved.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}
	if gate.isBlocked("task-1") {
		t.Error("hold not released on resolve")
	}

	select {
	case res := <-c.Resolutions():
		if res.TaskID != "task-1" || res.Answer != "8080" {
			t.Errorf("unexpected resume signal: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("no resume signal delivered")
	}
}

func TestResolveTwice(t *testing.T) {
	c := NewCoordinator("proj", newFakeGate())
	b, err := c.Create("agent-1", "task-1", models.BlockerSync, "?", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Resolve(b.ID, "yes"); err != nil {
		t.Fatal(err)
	}

	_, err = c.Resolve(b.ID, "no")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("second resolve err = %v, want InvalidStateError", err)
	}
}

func TestResolveWhenTaskIsGone(t *testing.T) {
	gate := newFakeGate()
	gate.failOn = "vanished"
	c := NewCoordinator("proj", gate)

	// A restored SYNC blocker may reference a task the graph no longer has.
	c.Restore([]*models.Blocker{{
		ID:        "b-1",
		ProjectID: "proj",
		AgentID:   "agent-1",
		TaskID:    "vanished",
		Kind:      models.BlockerSync,
		Question:  "?",
		Status:    models.BlockerOpen,
		CreatedAt: time.Now(),
	}})

	_, err := c.Resolve("b-1", "answer")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
	got := c.Get("b-1")
	if got.Status != models.BlockerOpen {
		t.Errorf("status = %s, want OPEN (failed resolve must have no effect)", got.Status)
	}
	if got.Answer != nil {
		t.Error("failed resolve must not record an answer")
	}
}

func TestResolveUnknownBlocker(t *testing.T) {
	c := NewCoordinator("proj", newFakeGate())
	_, err := c.Resolve("nope", "answer")
	var ise *InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("err = %v, want InvalidStateError", err)
	}
}

func TestExpireStale(t *testing.T) {
	gate := newFakeGate()
	c := NewCoordinator("proj", gate, WithTTL(time.Hour))

	stale, err := c.Create("agent-1", "task-1", models.BlockerSync, "old question", 1)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := c.Create("agent-1", "task-2", models.BlockerSync, "new question", 1)
	if err != nil {
		t.Fatal(err)
	}

	expired := c.ExpireStale(time.Now().Add(90 * time.Minute))
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expired = %v, want only the stale blocker", expired)
	}
	if c.Get(stale.ID).Status != models.BlockerExpired {
		t.Error("stale blocker not marked EXPIRED")
	}
	if c.Get(fresh.ID).Status != models.BlockerOpen {
		t.Error("fresh blocker should stay OPEN")
	}
	if gate.isBlocked("task-1") {
		t.Error("expired SYNC blocker did not release its task")
	}
	if !gate.isBlocked("task-2") {
		t.Error("fresh SYNC blocker lost its hold")
	}
}

func TestOpenOrdering(t *testing.T) {
	c := NewCoordinator("proj", newFakeGate())

	low, _ := c.Create("a", "t1", models.BlockerAsync, "low", 1)
	high, _ := c.Create("a", "t2", models.BlockerAsync, "high", 5)
	mid, _ := c.Create("a", "t3", models.BlockerAsync, "mid", 3)

	open := c.Open()
	if len(open) != 3 {
		t.Fatalf("open = %d, want 3", len(open))
	}
	wantOrder := []string{high.ID, mid.ID, low.ID}
	for i, b := range open {
		if b.ID != wantOrder[i] {
			t.Errorf("open[%d] = %s, want %s", i, b.Question, wantOrder[i])
		}
	}
}

func TestOpenForTask(t *testing.T) {
	c := NewCoordinator("proj", newFakeGate())

	b, err := c.Create("a", "t1", models.BlockerSync, "?", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !c.OpenForTask("t1") {
		t.Error("expected open SYNC blocker for t1")
	}
	if c.OpenForTask("t2") {
		t.Error("no blocker exists for t2")
	}

	if _, err := c.Resolve(b.ID, "done"); err != nil {
		t.Fatal(err)
	}
	if c.OpenForTask("t1") {
		t.Error("resolved blocker still reported open")
	}
}
