package models

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestTaskJSONSerialization verifies that live signals are omitted when unknown
func TestTaskJSONSerialization(t *testing.T) {
	position := 4.2

	withSignals := &Task{
		ID:              "task-1",
		Title:           "Link blog to pricing",
		Status:          TaskStatusOpen,
		Priority:        PriorityHigh,
		Type:            TaskTypeLink,
		AveragePosition: &position,
	}

	jsonBytes, err := json.Marshal(withSignals)
	if err != nil {
		t.Fatalf("Failed to marshal task: %v", err)
	}

	var unmarshaled map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &unmarshaled); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}

	if _, exists := unmarshaled["average_position"]; !exists {
		t.Error("average_position field is missing from JSON")
	}
	if _, exists := unmarshaled["conversion_rate"]; exists {
		t.Error("conversion_rate field should be omitted when nil")
	}
	if unmarshaled["priority"] != "HIGH" {
		t.Errorf("Expected priority HIGH, got %v", unmarshaled["priority"])
	}
}

func TestEnumUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Task
		wantErr string
	}{
		{
			name:  "known values",
			input: `{"priority":"CRITICAL","type":"ONPAGE","status":"REVIEW"}`,
			want:  Task{Priority: PriorityCritical, Type: TaskTypeOnPage, Status: TaskStatusReview},
		},
		{
			name:  "case insensitive",
			input: `{"priority":"low","type":"link"}`,
			want:  Task{Priority: PriorityLow, Type: TaskTypeLink},
		},
		{
			name:  "empty means unset",
			input: `{"priority":"","type":""}`,
			want:  Task{},
		},
		{
			name:    "unknown priority",
			input:   `{"priority":"URGENT"}`,
			wantErr: "invalid priority",
		},
		{
			name:    "unknown type",
			input:   `{"type":"SOCIAL"}`,
			wantErr: "invalid task type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Task
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got.Priority != tt.want.Priority || got.Type != tt.want.Type || got.Status != tt.want.Status {
				t.Errorf("Got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseProjectStatus(t *testing.T) {
	if s, err := ParseProjectStatus(" active "); err != nil || s != ProjectStatusActive {
		t.Errorf("Expected ACTIVE, got %q (%v)", s, err)
	}
	if _, err := ParseProjectStatus("deleted"); err == nil {
		t.Error("Expected error for unknown project status")
	}
	if !TaskStatusBlocked.Valid() || TaskStatus("WAITING").Valid() {
		t.Error("Valid() disagrees with the known task statuses")
	}
}
