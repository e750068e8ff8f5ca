package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority is the urgency of a task
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// TaskType is the kind of work a task represents
type TaskType string

const (
	TaskTypeOnPage  TaskType = "ONPAGE"
	TaskTypeContent TaskType = "CONTENT"
	TaskTypeTech    TaskType = "TECH"
	TaskTypeLink    TaskType = "LINK"
	TaskTypeLocal   TaskType = "LOCAL"
)

// TaskStatus is the board column of a task
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "OPEN"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusReview     TaskStatus = "REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusBlocked    TaskStatus = "BLOCKED"
)

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "ACTIVE"
	ProjectStatusPaused   ProjectStatus = "PAUSED"
	ProjectStatusArchived ProjectStatus = "ARCHIVED"
)

var (
	Priorities      = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	TaskTypes       = []TaskType{TaskTypeOnPage, TaskTypeContent, TaskTypeTech, TaskTypeLink, TaskTypeLocal}
	TaskStatuses    = []TaskStatus{TaskStatusOpen, TaskStatusInProgress, TaskStatusReview, TaskStatusDone, TaskStatusBlocked}
	ProjectStatuses = []ProjectStatus{ProjectStatusActive, ProjectStatusPaused, ProjectStatusArchived}
)

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool { return oneOf(p, Priorities) }

// Valid reports whether t is one of the known task types
func (t TaskType) Valid() bool { return oneOf(t, TaskTypes) }

// Valid reports whether s is one of the known task statuses
func (s TaskStatus) Valid() bool { return oneOf(s, TaskStatuses) }

// Valid reports whether s is one of the known project statuses
func (s ProjectStatus) Valid() bool { return oneOf(s, ProjectStatuses) }

// ParsePriority parses a priority case-insensitively
func ParsePriority(s string) (Priority, error) {
	return parseEnum(s, Priorities, "priority")
}

// ParseTaskType parses a task type case-insensitively
func ParseTaskType(s string) (TaskType, error) {
	return parseEnum(s, TaskTypes, "task type")
}

// ParseTaskStatus parses a task status case-insensitively
func ParseTaskStatus(s string) (TaskStatus, error) {
	return parseEnum(s, TaskStatuses, "task status")
}

// ParseProjectStatus parses a project status case-insensitively
func ParseProjectStatus(s string) (ProjectStatus, error) {
	return parseEnum(s, ProjectStatuses, "project status")
}

// UnmarshalJSON accepts a known priority or an empty string (unset)
func (p *Priority) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, p, ParsePriority)
}

// UnmarshalJSON accepts a known task type or an empty string (unset)
func (t *TaskType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, ParseTaskType)
}

// UnmarshalJSON accepts a known task status or an empty string (unset)
func (s *TaskStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, ParseTaskStatus)
}

// UnmarshalJSON accepts a known project status or an empty string (unset)
func (s *ProjectStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, s, ParseProjectStatus)
}

func oneOf[T ~string](v T, all []T) bool {
	for _, candidate := range all {
		if v == candidate {
			return true
		}
	}
	return false
}

func parseEnum[T ~string](s string, all []T, kind string) (T, error) {
	v := T(strings.ToUpper(strings.TrimSpace(s)))
	if !oneOf(v, all) {
		return "", fmt.Errorf("invalid %s: %q", kind, s)
	}
	return v, nil
}

func unmarshalEnum[T ~string](b []byte, dst *T, parse func(string) (T, error)) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		*dst = ""
		return nil
	}
	v, err := parse(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
