package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStage is the coarse state of an interview task.
type TaskStage string

const (
	StageNeedsAction TaskStage = "NEEDS_ACTION"
	StageScheduled   TaskStage = "SCHEDULED"
	StageCompleted   TaskStage = "COMPLETED"
	StageBlocked     TaskStage = "BLOCKED"
)

// Rank orders stages for queues, most urgent first.
func (s TaskStage) Rank() int {
	switch s {
	case StageNeedsAction:
		return 0
	case StageBlocked:
		return 1
	case StageScheduled:
		return 2
	case StageCompleted:
		return 3
	}
	return 4
}

// ViewerRole selects whose next step a task describes.
type ViewerRole string

const (
	ViewerSubject  ViewerRole = "SUBJECT"
	ViewerReviewer ViewerRole = "REVIEWER"
)

// ParseViewerRole defaults to the reviewer perspective.
func ParseViewerRole(raw string) (ViewerRole, error) {
	switch raw {
	case "", "reviewer", string(ViewerReviewer):
		return ViewerReviewer, nil
	case "subject", string(ViewerSubject):
		return ViewerSubject, nil
	}
	return "", fmt.Errorf("unknown viewer %q", raw)
}

// SecondaryLink is an auxiliary navigation target rendered next to the primary action.
type SecondaryLink struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// TaskBlocker explains why a task cannot progress right now.
type TaskBlocker struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TaskTimestamps collects the dates a dashboard shows for a subject.
type TaskTimestamps struct {
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// InterviewTask is the derived next step for one subject. It is never persisted.
type InterviewTask struct {
	ID             string          `json:"id"`
	Domain         InterviewDomain `json:"domain"`
	SubjectID      string          `json:"subject_id"`
	ChapterID      string          `json:"chapter_id"`
	Viewer         ViewerRole      `json:"viewer"`
	Stage          TaskStage       `json:"stage"`
	Title          string          `json:"title"`
	Subtitle       string          `json:"subtitle"`
	Detail         string          `json:"detail"`
	PrimaryAction  PrimaryAction   `json:"primary_action"`
	SecondaryLinks []SecondaryLink `json:"secondary_links"`
	Blockers       []TaskBlocker   `json:"blockers"`
	Timestamps     TaskTimestamps  `json:"timestamps"`
}

type taskAlias InterviewTask

type taskWire struct {
	taskAlias
	PrimaryAction json.RawMessage `json:"primary_action,omitempty"`
}

// MarshalJSON writes the primary action as a kind tagged object.
func (t InterviewTask) MarshalJSON() ([]byte, error) {
	wire := taskWire{taskAlias: taskAlias(t)}
	if t.PrimaryAction != nil {
		raw, err := MarshalAction(t.PrimaryAction)
		if err != nil {
			return nil, err
		}
		wire.PrimaryAction = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores the concrete primary action from its kind tag.
func (t *InterviewTask) UnmarshalJSON(data []byte) error {
	var wire taskWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*t = InterviewTask(wire.taskAlias)
	t.PrimaryAction = nil
	if len(wire.PrimaryAction) == 0 || string(wire.PrimaryAction) == "null" {
		return nil
	}
	action, err := UnmarshalAction(wire.PrimaryAction)
	if err != nil {
		return err
	}
	t.PrimaryAction = action
	return nil
}
