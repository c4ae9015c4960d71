// Package worker runs one task through the agent execution loop: prompt,
// test, self-correct, and settle on a terminal phase.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frankbria/codeframe-sub011/internal/contextstore"
	"github.com/frankbria/codeframe-sub011/internal/events"
	"github.com/frankbria/codeframe-sub011/internal/git"
	"github.com/frankbria/codeframe-sub011/internal/llm"
	"github.com/frankbria/codeframe-sub011/internal/testrun"
	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// Phase is the loop's position in the execution state machine.
type Phase string

const (
	PhaseStarting       Phase = "STARTING"
	PhaseRunning        Phase = "RUNNING"
	PhaseSelfCorrecting Phase = "SELF_CORRECTING"
	PhaseCompleted      Phase = "COMPLETED"
	PhaseBlocked        Phase = "BLOCKED"
	PhaseFailed         Phase = "FAILED"
)

// MaxRepairAttempts bounds self-correction passes per task.
const MaxRepairAttempts = 3

// Outcome is the terminal result of one task execution.
type Outcome struct {
	// Phase is COMPLETED, BLOCKED, or FAILED.
	Phase Phase
	// RepairAttempts is how many self-correction passes were used.
	RepairAttempts int
	// BlockerQuestion is set when Phase is BLOCKED.
	BlockerQuestion string
	// FailureReason is set when Phase is FAILED.
	FailureReason string
	// Output is the final agent output.
	Output string
	// CommitSHA is set when the change was committed.
	CommitSHA string
	// TokensUsed is the total provider token usage across attempts.
	TokensUsed int64
}

// Config tunes one loop instance.
type Config struct {
	// Language selects the test command for the project.
	Language string
	// ProjectPath is the working directory tests and commits run in.
	ProjectPath string
	// MaxTokens bounds each completion.
	MaxTokens int64
	// MaxRepairAttempts overrides the default self-correction budget.
	MaxRepairAttempts int
	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration
}

// Loop executes tasks for a single agent. It is not safe for concurrent
// use; the pool hands each agent at most one task at a time.
type Loop struct {
	agent      *models.Agent
	provider   llm.Provider
	store      *contextstore.Store
	tests      testrun.Runner
	committer  git.Committer
	classifier Classifier
	events     events.Broadcaster
	cfg        Config

	phase    Phase
	debugLog func(format string, args ...interface{})
}

// NewLoop wires a loop for the given agent. Provider and store are
// required; tests and committer may be nil, in which case the loop trusts
// the agent output and skips the commit.
func NewLoop(agent *models.Agent, provider llm.Provider, store *contextstore.Store, opts ...LoopOption) *Loop {
	l := &Loop{
		agent:      agent,
		provider:   provider,
		store:      store,
		classifier: KeywordClassifier{},
		events:     events.NopBroadcaster{},
		cfg: Config{
			Language:          "go",
			MaxTokens:         8192,
			MaxRepairAttempts: MaxRepairAttempts,
		},
		phase:    PhaseStarting,
		debugLog: func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cfg.MaxRepairAttempts <= 0 {
		l.cfg.MaxRepairAttempts = MaxRepairAttempts
	}
	return l
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTestRunner sets the test runner used to verify each attempt.
func WithTestRunner(r testrun.Runner) LoopOption {
	return func(l *Loop) { l.tests = r }
}

// WithCommitter sets the git committer used after a passing run.
func WithCommitter(c git.Committer) LoopOption {
	return func(l *Loop) { l.committer = c }
}

// WithClassifier overrides the failure classifier.
func WithClassifier(c Classifier) LoopOption {
	return func(l *Loop) { l.classifier = c }
}

// WithBroadcaster sets the event sink.
func WithBroadcaster(b events.Broadcaster) LoopOption {
	return func(l *Loop) { l.events = b }
}

// WithConfig replaces the loop configuration.
func WithConfig(cfg Config) LoopOption {
	return func(l *Loop) { l.cfg = cfg }
}

// WithDebugLog sets a tracing hook.
func WithDebugLog(fn func(format string, args ...interface{})) LoopOption {
	return func(l *Loop) { l.debugLog = fn }
}

// Phase returns the loop's current phase. Useful for status displays.
func (l *Loop) Phase() Phase {
	return l.phase
}

// Execute runs the task to a terminal phase. On context cancellation it
// returns the context error with a nil outcome; the caller owns putting the
// task back in the ready set so cancellation never strands it in progress.
func (l *Loop) Execute(ctx context.Context, task *models.Task) (*Outcome, error) {
	l.phase = PhaseStarting
	l.debugLog("[worker %s] starting task %s", l.agent.ID, task.ID)

	working := l.store.LoadItems(l.agent.ID, models.TierHot, models.TierWarm)
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: buildTaskMessage(task, working)},
	}
	systemPrompt := buildSystemPrompt(l.agent)

	outcome := &Outcome{}
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.phase = PhaseRunning

		completion, err := l.provider.Complete(ctx, llm.Request{
			SystemPrompt: systemPrompt,
			Messages:     messages,
			MaxTokens:    l.cfg.MaxTokens,
			Timeout:      l.cfg.RequestTimeout,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			return l.settleFailure(task, outcome, attempt, err.Error(), "")
		}

		outcome.TokensUsed += completion.InputTokens + completion.OutputTokens
		l.agent.Metrics.TokensUsed += completion.InputTokens + completion.OutputTokens
		outcome.Output = completion.Content

		if err := l.recordAttempt(task, completion.Content); err != nil {
			l.debugLog("[worker %s] record attempt: %v", l.agent.ID, err)
		}
		l.maybeFlashSave()

		// An explicit blocker line short-circuits testing: the agent has
		// declared it cannot proceed.
		if q, ok := extractBlockerQuestion(completion.Content); ok {
			return l.settleBlocked(task, outcome, attempt, q)
		}

		failure, ok := l.verify(ctx, outcome)
		if ok {
			return l.settleCompleted(task, outcome, attempt)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		verdict := l.classifier.Classify(failure, completion.Content)
		if verdict.Class == FailureNeedsHuman {
			question := verdict.Question
			if question == "" {
				question = failure
			}
			return l.settleBlocked(task, outcome, attempt, question)
		}

		attempt++
		if attempt > l.cfg.MaxRepairAttempts {
			return l.settleFailure(task, outcome, attempt-1, failure, completion.Content)
		}

		l.phase = PhaseSelfCorrecting
		l.agent.Metrics.SelfCorrections++
		l.debugLog("[worker %s] self-correcting task %s, attempt %d/%d", l.agent.ID, task.ID, attempt, l.cfg.MaxRepairAttempts)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: completion.Content},
			llm.Message{Role: llm.RoleUser, Content: buildRepairMessage(attempt, failure)},
		)
	}
}

// verify runs the project tests. Returns the failure evidence and whether
// the attempt passed. With no runner configured the attempt passes as-is.
func (l *Loop) verify(ctx context.Context, outcome *Outcome) (string, bool) {
	if l.tests == nil {
		return "", true
	}
	result, err := l.tests.Run(ctx, l.cfg.Language, l.cfg.ProjectPath)
	if err != nil {
		return fmt.Sprintf("test run failed to execute: %v", err), false
	}
	if result.Passed() {
		return "", true
	}
	return result.RawOutput, false
}

// recordAttempt saves the agent output into working memory.
func (l *Loop) recordAttempt(task *models.Task, content string) error {
	return l.store.SaveItem(&models.ContextItem{
		AgentID:  l.agent.ID,
		TaskID:   task.ID,
		ItemType: models.ContextTypeConversation,
		Content:  content,
	})
}

// maybeFlashSave checkpoints working memory when it crosses the token
// threshold. Failures are logged, never fatal to the task.
func (l *Loop) maybeFlashSave() {
	if !l.store.ShouldFlashSave(l.agent.ID) {
		return
	}
	cp, err := l.store.FlashSave(l.agent.ID)
	if err != nil {
		l.debugLog("[worker %s] flash save failed: %v", l.agent.ID, err)
		return
	}
	l.debugLog("[worker %s] flash save: %d -> %d tokens (%.0f%%)", l.agent.ID, cp.TokensBefore, cp.TokensAfter, cp.ReductionPct())
	l.events.Publish(events.EventFlashSaveCompleted, map[string]any{
		"agent_id":      l.agent.ID,
		"checkpoint_id": cp.ID,
		"tokens_before": cp.TokensBefore,
		"tokens_after":  cp.TokensAfter,
	})
}

func (l *Loop) settleCompleted(task *models.Task, outcome *Outcome, attempts int) (*Outcome, error) {
	if l.committer != nil {
		sha, err := l.committer.Commit(fmt.Sprintf("%s\n\ntask: %s", task.Title, task.ID), nil)
		if err != nil {
			l.debugLog("[worker %s] commit failed: %v", l.agent.ID, err)
		} else {
			outcome.CommitSHA = sha
		}
	}
	l.phase = PhaseCompleted
	l.agent.Metrics.TasksCompleted++
	outcome.Phase = PhaseCompleted
	outcome.RepairAttempts = attempts
	l.debugLog("[worker %s] completed task %s after %d repairs", l.agent.ID, task.ID, attempts)
	return outcome, nil
}

func (l *Loop) settleBlocked(task *models.Task, outcome *Outcome, attempts int, question string) (*Outcome, error) {
	l.phase = PhaseBlocked
	outcome.Phase = PhaseBlocked
	outcome.RepairAttempts = attempts
	outcome.BlockerQuestion = question
	l.debugLog("[worker %s] task %s blocked: %s", l.agent.ID, task.ID, question)
	return outcome, nil
}

func (l *Loop) settleFailure(task *models.Task, outcome *Outcome, attempts int, reason, output string) (*Outcome, error) {
	l.phase = PhaseFailed
	l.agent.Metrics.TasksFailed++
	outcome.Phase = PhaseFailed
	outcome.RepairAttempts = attempts
	outcome.FailureReason = reason
	if output != "" {
		outcome.Output = output
	}
	l.debugLog("[worker %s] task %s failed after %d repairs: %s", l.agent.ID, task.ID, attempts, firstLine(reason))
	return outcome, nil
}
