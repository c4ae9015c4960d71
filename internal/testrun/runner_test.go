package testrun

import "testing"

func TestParseGoOutput(t *testing.T) {
	out := `--- PASS: TestFoo (0.00s)
--- PASS: TestBar (0.01s)
--- FAIL: TestBaz (0.00s)
FAIL
ok  	example.com/pkg	0.012s	coverage: 81.3% of statements
`
	result := parseOutput("go", out)
	if result.PassCount != 3 { // two --- PASS plus final ok line
		t.Errorf("pass = %d, want 3", result.PassCount)
	}
	if result.FailCount != 2 { // --- FAIL plus FAIL summary
		t.Errorf("fail = %d, want 2", result.FailCount)
	}
	if result.CoveragePct != 81.3 {
		t.Errorf("coverage = %v, want 81.3", result.CoveragePct)
	}
	if result.Passed() {
		t.Error("result with failures must not pass")
	}
}

func TestParsePytestOutput(t *testing.T) {
	out := "3 failed, 12 passed in 1.24s"
	result := parseOutput("python", out)
	if result.PassCount != 12 || result.FailCount != 3 {
		t.Errorf("got pass=%d fail=%d, want pass=12 fail=3", result.PassCount, result.FailCount)
	}
}

func TestParseJestOutput(t *testing.T) {
	out := "Tests:       2 failed, 9 passed, 11 total"
	result := parseOutput("javascript", out)
	if result.FailCount != 2 {
		t.Errorf("fail = %d, want 2", result.FailCount)
	}
}

func TestParseUnknownOutput(t *testing.T) {
	result := parseOutput("go", "garbage")
	if result.PassCount != 0 || result.FailCount != 0 {
		t.Errorf("expected zero counts, got pass=%d fail=%d", result.PassCount, result.FailCount)
	}
	if result.RawOutput != "garbage" {
		t.Error("raw output must be preserved")
	}
}
