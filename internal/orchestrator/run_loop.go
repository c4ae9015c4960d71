package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frankbria/codeframe-sub011/internal/blocker"
	"github.com/frankbria/codeframe-sub011/internal/events"
	"github.com/frankbria/codeframe-sub011/internal/worker"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// dispatchInterval is how often the loop re-checks the ready set when
// nothing else wakes it.
const dispatchInterval = 500 * time.Millisecond

// Run executes the graph until every task is terminal or the context is
// cancelled. Cancellation is graceful: in-flight workers are drained, their
// tasks returned to the ready set, and a final session snapshot written, so
// no task is ever left in progress.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	sweepCtx, stopSweep := context.WithCancel(gctx)

	g.Go(func() error {
		defer stopSweep()
		return o.runLoop(gctx)
	})
	g.Go(func() error {
		return o.sweepLoop(sweepCtx)
	})

	err := g.Wait()
	o.saveSession()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runLoop is the scheduler: it alone moves tasks between states.
func (o *Orchestrator) runLoop(ctx context.Context) error {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		o.dispatch(ctx)

		if o.inflight == 0 && o.graph.Done() {
			o.debugLog("[orchestrator] all tasks terminal")
			o.events.Publish(events.EventSessionDone, map[string]any{
				"counts": o.graph.Counts(),
			})
			return nil
		}

		select {
		case res := <-o.results:
			o.handleResult(res)
		case sig := <-o.blockers.Resolutions():
			o.handleResolution(sig)
		case <-ticker.C:
		case <-ctx.Done():
			o.drain()
			return ctx.Err()
		}
	}
}

// sweepLoop expires stale blockers and refreshes the session snapshot.
func (o *Orchestrator) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, b := range o.blockers.ExpireStale(time.Now()) {
				o.pool.MarkIdle(b.AgentID)
			}
			o.saveSession()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatch starts workers for as many ready tasks as the pool admits.
func (o *Orchestrator) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	for _, task := range o.graph.ReadySet() {
		lease, ok := o.pool.TryAdmit(task.AgentType, task.ID)
		if !ok {
			continue
		}
		if err := o.graph.MarkInProgress(task.ID, lease.Agent.ID); err != nil {
			lease.Release(models.AgentStatusIdle)
			continue
		}
		o.inflight++
		o.events.Publish(events.EventTaskStarted, map[string]any{
			"task_id":  task.ID,
			"agent_id": lease.Agent.ID,
		})
		o.debugLog("[orchestrator] dispatched %s to %s", task.ID, lease.Agent.ID)

		executor := o.executors[lease.Agent.ID]
		go func(task *models.Task, lease *Lease) {
			outcome, err := executor.Execute(ctx, task)
			o.results <- taskResult{task: task, lease: lease, outcome: outcome, err: err}
		}(task, lease)
	}
}

// handleResult settles one finished worker: updates the graph, releases the
// lease, and persists the task and agent.
func (o *Orchestrator) handleResult(res taskResult) {
	o.inflight--
	task, agent := res.task, res.lease.Agent

	switch {
	case res.err != nil:
		// Cancellation or executor fault: the task goes back to the ready
		// set rather than staying in progress.
		if err := o.graph.Requeue(task.ID); err != nil {
			o.debugLog("[orchestrator] requeue %s: %v", task.ID, err)
		}
		res.lease.Release(models.AgentStatusIdle)
		o.events.Publish(events.EventTaskRequeued, map[string]any{
			"task_id": task.ID,
			"reason":  res.err.Error(),
		})

	case res.outcome.Phase == worker.PhaseCompleted:
		if err := o.persistTransition(task, models.TaskStatusDone); err != nil {
			o.rollbackTransition(res, err)
			break
		}
		if err := o.graph.MarkDone(task.ID); err != nil {
			o.debugLog("[orchestrator] mark done %s: %v", task.ID, err)
		}
		res.lease.Release(models.AgentStatusIdle)
		o.events.Publish(events.EventTaskCompleted, map[string]any{
			"task_id":    task.ID,
			"agent_id":   agent.ID,
			"commit_sha": res.outcome.CommitSHA,
			"repairs":    res.outcome.RepairAttempts,
		})

	case res.outcome.Phase == worker.PhaseBlocked:
		// The coordinator marks the task blocked in the graph atomically
		// with blocker creation.
		b, err := o.blockers.Create(agent.ID, task.ID, models.BlockerSync, res.outcome.BlockerQuestion, task.Priority)
		if err != nil {
			o.debugLog("[orchestrator] create blocker for %s: %v", task.ID, err)
			if rqErr := o.graph.Requeue(task.ID); rqErr != nil {
				o.debugLog("[orchestrator] requeue %s: %v", task.ID, rqErr)
			}
			res.lease.Release(models.AgentStatusIdle)
			break
		}
		res.lease.Release(models.AgentStatusBlocked)
		o.events.Publish(events.EventTaskBlocked, map[string]any{
			"task_id":    task.ID,
			"blocker_id": b.ID,
			"question":   b.Question,
		})

	case res.outcome.Phase == worker.PhaseFailed:
		task.Error = res.outcome.FailureReason
		task.RetryCount = res.outcome.RepairAttempts
		if err := o.persistTransition(task, models.TaskStatusFailed); err != nil {
			o.rollbackTransition(res, err)
			break
		}
		if err := o.graph.MarkFailed(task.ID, res.outcome.FailureReason); err != nil {
			o.debugLog("[orchestrator] mark failed %s: %v", task.ID, err)
		}
		res.lease.Release(models.AgentStatusIdle)
		o.events.Publish(events.EventTaskFailed, map[string]any{
			"task_id": task.ID,
			"reason":  res.outcome.FailureReason,
			"repairs": res.outcome.RepairAttempts,
		})
	}

	// Terminal transitions were already confirmed by persistTransition.
	if !task.Status.Terminal() {
		if err := o.persistTask(task); err != nil {
			o.debugLog("[orchestrator] persist task %s: %v", task.ID, err)
		}
	}
	o.persistAgent(agent)
}

// rollbackTransition handles a terminal write the store refused: the task
// returns to the ready set so it can be retried once the store recovers,
// and the graph never carries a DONE/FAILED the store did not confirm.
func (o *Orchestrator) rollbackTransition(res taskResult, cause error) {
	task := res.task
	o.debugLog("[orchestrator] persist transition %s: %v", task.ID, cause)
	if err := o.graph.Requeue(task.ID); err != nil {
		o.debugLog("[orchestrator] requeue %s: %v", task.ID, err)
	}
	res.lease.Release(models.AgentStatusIdle)
	o.events.Publish(events.EventTaskRequeued, map[string]any{
		"task_id": task.ID,
		"reason":  cause.Error(),
	})
}

// handleResolution wakes the agent parked on a resolved blocker. The
// coordinator has already returned the task to the ready set; the next
// dispatch pass picks it up.
func (o *Orchestrator) handleResolution(sig blocker.Resolution) {
	if b := o.blockers.Get(sig.BlockerID); b != nil {
		o.pool.MarkIdle(b.AgentID)
	}
	o.debugLog("[orchestrator] blocker %s resolved, task %s resumable", sig.BlockerID, sig.TaskID)
}

// drain waits for in-flight workers after cancellation and requeues their
// tasks.
func (o *Orchestrator) drain() {
	for o.inflight > 0 {
		res := <-o.results
		if res.err == nil && res.outcome != nil && res.outcome.Phase == worker.PhaseCompleted {
			// The worker finished before noticing cancellation; keep the
			// completed work.
			o.handleResult(res)
			continue
		}
		o.inflight--
		if err := o.graph.Requeue(res.task.ID); err != nil {
			o.debugLog("[orchestrator] requeue %s on shutdown: %v", res.task.ID, err)
		}
		res.lease.Release(models.AgentStatusIdle)
		if err := o.persistTask(res.task); err != nil {
			o.debugLog("[orchestrator] persist task %s: %v", res.task.ID, err)
		}
	}
}
