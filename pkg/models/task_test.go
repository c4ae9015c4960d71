package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"backlog", TaskStatusBacklog, true},
		{"ready", TaskStatusReady, true},
		{"in_progress", TaskStatusInProgress, true},
		{"blocked", TaskStatusBlocked, true},
		{"done", TaskStatusDone, true},
		{"failed", TaskStatusFailed, true},
		{"empty", TaskStatus(""), false},
		{"unknown", TaskStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusDone, true},
		{TaskStatusFailed, true},
		{TaskStatusBacklog, false},
		{TaskStatusReady, false},
		{TaskStatusInProgress, false},
		{TaskStatusBlocked, false},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAgentTypeValid(t *testing.T) {
	valid := []AgentType{AgentTypeLead, AgentTypeBackend, AgentTypeFrontend, AgentTypeTest, AgentTypeReview}
	for _, at := range valid {
		if !at.Valid() {
			t.Errorf("expected %s to be valid", at)
		}
	}
	if AgentType("devops").Valid() {
		t.Error("expected unknown agent type to be invalid")
	}
}

func TestMaturityLevelValid(t *testing.T) {
	for m := MaturityD1; m <= MaturityD4; m++ {
		if !m.Valid() {
			t.Errorf("expected maturity %d to be valid", m)
		}
	}
	if MaturityLevel(0).Valid() {
		t.Error("expected maturity 0 to be invalid")
	}
	if MaturityLevel(5).Valid() {
		t.Error("expected maturity 5 to be invalid")
	}
}
