package worker

import (
	"fmt"
	"strings"

	"github.com/frankbria/codeframe-sub011/pkg/models"
)

// roleDescriptions is the per-specialization opening of the system prompt.
var roleDescriptions = map[models.AgentType]string{
	models.AgentTypeLead:     "You are the lead engineer. You break work down, review plans, and make architectural calls.",
	models.AgentTypeBackend:  "You are a backend engineer. You implement server-side features, APIs, and data layers.",
	models.AgentTypeFrontend: "You are a frontend engineer. You implement user interfaces and client-side behavior.",
	models.AgentTypeTest:     "You are a test engineer. You write and repair automated tests.",
	models.AgentTypeReview:   "You are a code reviewer. You inspect changes for defects and unclear requirements.",
}

// maturityGuidance tunes how much hand-holding the prompt includes. Low
// maturity agents get explicit procedure; high maturity agents get the goal
// and the guardrails.
var maturityGuidance = map[models.MaturityLevel]string{
	models.MaturityD1: "Work strictly step by step. Before each change, state the step you are on. Do not deviate from the task description. If anything at all is unclear, stop and ask.",
	models.MaturityD2: "Follow the task description closely. Explain your reasoning for non-obvious choices. Ask when requirements conflict.",
	models.MaturityD3: "Use your judgment on implementation details. Flag significant deviations from the task description.",
	models.MaturityD4: "You own this task end to end. Deliver the outcome; surface only decisions that genuinely need a human.",
}

// buildSystemPrompt composes the system prompt from the agent's role,
// maturity level, and the standing rules every agent follows.
func buildSystemPrompt(agent *models.Agent) string {
	var b strings.Builder
	role, ok := roleDescriptions[agent.Type]
	if !ok {
		role = "You are a software engineer."
	}
	b.WriteString(role)
	b.WriteString("\n\n")

	if g, ok := maturityGuidance[agent.Maturity]; ok {
		b.WriteString(g)
		b.WriteString("\n\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Produce the complete change, not a sketch.\n")
	b.WriteString("- All tests must pass before the task is done.\n")
	b.WriteString("- If you cannot proceed without a human decision, emit a single line starting with \"" + blockerMarker + "\" followed by the question, and stop.\n")
	return b.String()
}

// buildTaskMessage renders the task plus the agent's working context into
// the opening user message.
func buildTaskMessage(task *models.Task, context []*models.ContextItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n%s\n", task.Title, task.Description)

	if len(context) > 0 {
		b.WriteString("\nWorking context (most important first):\n")
		for _, item := range context {
			fmt.Fprintf(&b, "- [%s] %s\n", item.ItemType, item.Content)
		}
	}
	return b.String()
}

// buildRepairMessage renders a failed attempt's evidence into the follow-up
// message for a self-correction pass.
func buildRepairMessage(attempt int, failure string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous attempt failed (repair attempt %d):\n\n%s\n", attempt, failure)
	b.WriteString("\nFix the failure and produce the corrected change.")
	return b.String()
}
