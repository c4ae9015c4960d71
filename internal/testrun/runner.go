// Package testrun runs language-specific test suites for worker agents.
package testrun

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Result summarizes one test run.
type Result struct {
	// PassCount is the number of passing tests.
	PassCount int
	// FailCount is the number of failing tests.
	FailCount int
	// CoveragePct is statement coverage, 0-100, if reported.
	CoveragePct float64
	// RawOutput is the combined stdout/stderr of the runner.
	RawOutput string
}

// Passed returns true when no test failed.
func (r *Result) Passed() bool {
	return r.FailCount == 0
}

// Runner executes the test suite for a project.
type Runner interface {
	Run(ctx context.Context, language, projectPath string) (*Result, error)
}

// commandFor maps a language to its test invocation.
var commandFor = map[string][]string{
	"go":         {"go", "test", "-count=1", "-cover", "./..."},
	"python":     {"python", "-m", "pytest", "--tb=short", "-q"},
	"javascript": {"npx", "jest", "--silent"},
	"typescript": {"npx", "jest", "--silent"},
}

// CommandRunner runs tests by invoking the language's test tool as a
// subprocess and parsing its output.
type CommandRunner struct{}

// NewCommandRunner creates a CommandRunner.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes the test suite and parses pass/fail counts and coverage.
// A non-zero exit with parseable failures is not an error; it is a result.
func (r *CommandRunner) Run(ctx context.Context, language, projectPath string) (*Result, error) {
	args, ok := commandFor[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", language)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = projectPath
	out, err := cmd.CombinedOutput()
	output := string(out)

	result := parseOutput(strings.ToLower(language), output)
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			// The tool itself could not run.
			return nil, fmt.Errorf("run %s tests: %w", language, err)
		}
		// Exit status 1 with zero parsed failures means the suite broke
		// before any test ran (compile error, missing deps). Surface it as
		// one synthetic failure so the loop treats it as a failing run.
		if result.FailCount == 0 {
			result.FailCount = 1
		}
	}

	return result, nil
}

var (
	goPassRe     = regexp.MustCompile(`(?m)^(ok|--- PASS)`)
	goFailRe     = regexp.MustCompile(`(?m)^(FAIL|--- FAIL)`)
	goCoverRe    = regexp.MustCompile(`coverage: ([0-9.]+)% of statements`)
	pytestRe     = regexp.MustCompile(`(\d+) passed`)
	pytestFailRe = regexp.MustCompile(`(\d+) failed`)
	jestPassRe   = regexp.MustCompile(`Tests:.*?(\d+) passed`)
	jestFailRe   = regexp.MustCompile(`Tests:.*?(\d+) failed`)
)

// parseOutput extracts counts from tool output. Unknown formats yield zero
// counts with the raw output preserved for classification.
func parseOutput(language, output string) *Result {
	result := &Result{RawOutput: output}

	switch language {
	case "go":
		result.PassCount = len(goPassRe.FindAllString(output, -1))
		result.FailCount = len(goFailRe.FindAllString(output, -1))
		if m := goCoverRe.FindStringSubmatch(output); m != nil {
			result.CoveragePct, _ = strconv.ParseFloat(m[1], 64)
		}
	case "python":
		if m := pytestRe.FindStringSubmatch(output); m != nil {
			result.PassCount, _ = strconv.Atoi(m[1])
		}
		if m := pytestFailRe.FindStringSubmatch(output); m != nil {
			result.FailCount, _ = strconv.Atoi(m[1])
		}
	case "javascript", "typescript":
		if m := jestPassRe.FindStringSubmatch(output); m != nil {
			result.PassCount, _ = strconv.Atoi(m[1])
		}
		if m := jestFailRe.FindStringSubmatch(output); m != nil {
			result.FailCount, _ = strconv.Atoi(m[1])
		}
	}

	return result
}
