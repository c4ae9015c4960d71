// Package llm defines the completion provider consumed by worker agents
// and its Anthropic-backed implementation.
package llm

import (
	"context"
	"errors"
	"time"
)

// Provider failure taxonomy. Transient failures (rate limit, connection,
// timeout) are retried by RetryingProvider; ErrAuthInvalid is never retried
// and is fatal to the task.
var (
	// ErrRateLimited indicates the provider rejected the request due to rate limits.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrAuthInvalid indicates the credentials were rejected.
	ErrAuthInvalid = errors.New("llm: invalid credentials")
	// ErrConnectionFailed indicates the provider could not be reached.
	ErrConnectionFailed = errors.New("llm: connection failed")
	// ErrTimedOut indicates the request exceeded its deadline.
	ErrTimedOut = errors.New("llm: request timed out")
)

// Retryable returns true for transient provider failures.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimedOut)
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request describes one completion call.
type Request struct {
	// SystemPrompt is prepended as the system message.
	SystemPrompt string
	// Messages is the conversation so far.
	Messages []Message
	// MaxTokens bounds the completion length.
	MaxTokens int64
	// Timeout bounds the call duration. Zero means no additional deadline.
	Timeout time.Duration
}

// Completion is the result of one completion call.
type Completion struct {
	// Content is the generated text.
	Content string
	// InputTokens is the provider-reported prompt token count.
	InputTokens int64
	// OutputTokens is the provider-reported completion token count.
	OutputTokens int64
}

// Provider produces completions. Implementations must honor ctx cancellation.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}
