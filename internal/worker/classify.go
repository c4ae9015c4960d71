package worker

import "strings"

// FailureClass separates failures the agent can repair from those that need
// a human decision.
type FailureClass int

const (
	// FailureTechnical means the failure is mechanical (failing tests,
	// compile errors, transient tooling) and worth a self-correction pass.
	FailureTechnical FailureClass = iota
	// FailureNeedsHuman means no amount of retrying helps: the agent is
	// missing a decision, a credential, or a requirement only a human has.
	FailureNeedsHuman
)

// Classification is the verdict on one failure.
type Classification struct {
	Class FailureClass
	// Question is the clarification to raise as a blocker when the class
	// is FailureNeedsHuman.
	Question string
}

// Classifier decides how a failure should be handled. Implementations
// inspect the error text and whatever output the attempt produced.
type Classifier interface {
	Classify(errText, output string) Classification
}

// blockerMarker is the line prefix an agent emits when it decides it cannot
// proceed without human input.
const blockerMarker = "BLOCKER:"

// humanSignals are phrases that indicate a failure needs a human decision
// rather than another repair attempt.
var humanSignals = []string{
	"which option",
	"which approach",
	"please clarify",
	"clarification needed",
	"ambiguous requirement",
	"requires approval",
	"needs approval",
	"missing credential",
	"missing api key",
	"permission denied by policy",
	"business decision",
	"human input",
	"cannot decide",
}

// KeywordClassifier classifies failures by scanning for an explicit blocker
// marker first, then for known needs-human phrases. Everything else is
// technical.
type KeywordClassifier struct{}

// Classify implements Classifier.
func (KeywordClassifier) Classify(errText, output string) Classification {
	if q, ok := extractBlockerQuestion(output); ok {
		return Classification{Class: FailureNeedsHuman, Question: q}
	}
	combined := strings.ToLower(errText + "\n" + output)
	for _, signal := range humanSignals {
		if strings.Contains(combined, signal) {
			question := errText
			if question == "" {
				question = firstLine(output)
			}
			return Classification{Class: FailureNeedsHuman, Question: question}
		}
	}
	return Classification{Class: FailureTechnical}
}

// extractBlockerQuestion pulls the question out of a "BLOCKER: ..." line.
func extractBlockerQuestion(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, blockerMarker) {
			continue
		}
		q := strings.TrimSpace(strings.TrimPrefix(line, blockerMarker))
		if q != "" {
			return q, true
		}
	}
	return "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
