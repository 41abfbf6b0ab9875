package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind tags the single next step a dashboard renders for a task.
type ActionKind string

const (
	ActionConfirmHiringSlot       ActionKind = "confirm_hiring_slot"
	ActionPostHiringSlot          ActionKind = "post_hiring_slot"
	ActionCompleteHiringInterview ActionKind = "complete_hiring_interview"
	ActionAddHiringRecommendation ActionKind = "add_hiring_recommendation"
	ActionOpenHiringDecision      ActionKind = "open_hiring_decision"
	ActionViewHiringApplication   ActionKind = "view_hiring_application"

	ActionConfirmReadinessSlot                 ActionKind = "confirm_readiness_slot"
	ActionSubmitReadinessAvailability          ActionKind = "submit_readiness_availability"
	ActionPostReadinessSlotsBulk               ActionKind = "post_readiness_slots_bulk"
	ActionAcceptReadinessRequest               ActionKind = "accept_readiness_request"
	ActionCompleteReadinessInterviewAndOutcome ActionKind = "complete_readiness_interview_and_outcome"
	ActionSetReadinessOutcome                  ActionKind = "set_readiness_outcome"
	ActionViewReadinessGate                    ActionKind = "view_readiness_gate"
)

// PrimaryAction is the closed set of task actions. Match on the concrete
// pointer types to handle each kind.
type PrimaryAction interface {
	ActionKind() ActionKind
	primaryAction()
}

// ConfirmHiringSlot asks the applicant to accept a posted slot.
type ConfirmHiringSlot struct {
	ApplicationID string    `json:"application_id"`
	SlotID        string    `json:"slot_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

// PostHiringSlot asks a reviewer to offer an interview time.
type PostHiringSlot struct {
	ApplicationID          string `json:"application_id"`
	DefaultDurationMinutes int    `json:"default_duration_minutes"`
}

// CompleteHiringInterview closes the confirmed slot, optionally with a recommendation.
type CompleteHiringInterview struct {
	ApplicationID         string `json:"application_id"`
	SlotID                string `json:"slot_id"`
	CaptureRecommendation bool   `json:"capture_recommendation"`
}

// AddHiringRecommendation asks for the missing recommendation after the interview.
type AddHiringRecommendation struct {
	ApplicationID string `json:"application_id"`
	SlotID        string `json:"slot_id"`
}

// OpenHiringDecision routes the reviewer to the accept/reject decision.
type OpenHiringDecision struct {
	ApplicationID string `json:"application_id"`
}

// ViewHiringApplication opens the application details.
type ViewHiringApplication struct {
	ApplicationID string `json:"application_id"`
}

// ConfirmReadinessSlot asks the instructor to accept a posted slot.
type ConfirmReadinessSlot struct {
	GateID      string    `json:"gate_id"`
	SlotID      string    `json:"slot_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// SubmitReadinessAvailability asks the instructor to propose windows.
type SubmitReadinessAvailability struct {
	GateID            string `json:"gate_id"`
	MaxPreferredSlots int    `json:"max_preferred_slots"`
}

// PostReadinessSlotsBulk asks a reviewer to offer one or more interview times.
type PostReadinessSlotsBulk struct {
	GateID                 string `json:"gate_id"`
	DefaultDurationMinutes int    `json:"default_duration_minutes"`
	MaxSlots               int    `json:"max_slots"`
}

// AcceptReadinessRequest schedules directly from a pending availability request.
type AcceptReadinessRequest struct {
	GateID                 string    `json:"gate_id"`
	RequestID              string    `json:"request_id"`
	SuggestedStart         time.Time `json:"suggested_start"`
	DefaultDurationMinutes int       `json:"default_duration_minutes"`
}

// CompleteReadinessInterviewAndOutcome completes the confirmed slot and records the outcome at once.
type CompleteReadinessInterviewAndOutcome struct {
	GateID   string        `json:"gate_id"`
	SlotID   string        `json:"slot_id"`
	Outcomes []GateOutcome `json:"outcomes"`
}

// SetReadinessOutcome records the outcome after a completed interview.
type SetReadinessOutcome struct {
	GateID   string        `json:"gate_id"`
	Outcomes []GateOutcome `json:"outcomes"`
}

// ViewReadinessGate opens the gate details.
type ViewReadinessGate struct {
	GateID string `json:"gate_id"`
}

func (*ConfirmHiringSlot) ActionKind() ActionKind       { return ActionConfirmHiringSlot }
func (*PostHiringSlot) ActionKind() ActionKind          { return ActionPostHiringSlot }
func (*CompleteHiringInterview) ActionKind() ActionKind { return ActionCompleteHiringInterview }
func (*AddHiringRecommendation) ActionKind() ActionKind { return ActionAddHiringRecommendation }
func (*OpenHiringDecision) ActionKind() ActionKind      { return ActionOpenHiringDecision }
func (*ViewHiringApplication) ActionKind() ActionKind   { return ActionViewHiringApplication }
func (*ConfirmReadinessSlot) ActionKind() ActionKind    { return ActionConfirmReadinessSlot }
func (*SubmitReadinessAvailability) ActionKind() ActionKind {
	return ActionSubmitReadinessAvailability
}
func (*PostReadinessSlotsBulk) ActionKind() ActionKind { return ActionPostReadinessSlotsBulk }
func (*AcceptReadinessRequest) ActionKind() ActionKind { return ActionAcceptReadinessRequest }
func (*CompleteReadinessInterviewAndOutcome) ActionKind() ActionKind {
	return ActionCompleteReadinessInterviewAndOutcome
}
func (*SetReadinessOutcome) ActionKind() ActionKind { return ActionSetReadinessOutcome }
func (*ViewReadinessGate) ActionKind() ActionKind   { return ActionViewReadinessGate }

func (*ConfirmHiringSlot) primaryAction()                    {}
func (*PostHiringSlot) primaryAction()                       {}
func (*CompleteHiringInterview) primaryAction()              {}
func (*AddHiringRecommendation) primaryAction()              {}
func (*OpenHiringDecision) primaryAction()                   {}
func (*ViewHiringApplication) primaryAction()                {}
func (*ConfirmReadinessSlot) primaryAction()                 {}
func (*SubmitReadinessAvailability) primaryAction()          {}
func (*PostReadinessSlotsBulk) primaryAction()               {}
func (*AcceptReadinessRequest) primaryAction()               {}
func (*CompleteReadinessInterviewAndOutcome) primaryAction() {}
func (*SetReadinessOutcome) primaryAction()                  {}
func (*ViewReadinessGate) primaryAction()                    {}

var actionFactories = map[ActionKind]func() PrimaryAction{
	ActionConfirmHiringSlot:                    func() PrimaryAction { return &ConfirmHiringSlot{} },
	ActionPostHiringSlot:                       func() PrimaryAction { return &PostHiringSlot{} },
	ActionCompleteHiringInterview:              func() PrimaryAction { return &CompleteHiringInterview{} },
	ActionAddHiringRecommendation:              func() PrimaryAction { return &AddHiringRecommendation{} },
	ActionOpenHiringDecision:                   func() PrimaryAction { return &OpenHiringDecision{} },
	ActionViewHiringApplication:                func() PrimaryAction { return &ViewHiringApplication{} },
	ActionConfirmReadinessSlot:                 func() PrimaryAction { return &ConfirmReadinessSlot{} },
	ActionSubmitReadinessAvailability:          func() PrimaryAction { return &SubmitReadinessAvailability{} },
	ActionPostReadinessSlotsBulk:               func() PrimaryAction { return &PostReadinessSlotsBulk{} },
	ActionAcceptReadinessRequest:               func() PrimaryAction { return &AcceptReadinessRequest{} },
	ActionCompleteReadinessInterviewAndOutcome: func() PrimaryAction { return &CompleteReadinessInterviewAndOutcome{} },
	ActionSetReadinessOutcome:                  func() PrimaryAction { return &SetReadinessOutcome{} },
	ActionViewReadinessGate:                    func() PrimaryAction { return &ViewReadinessGate{} },
}

// MarshalAction encodes the action payload with a leading kind field.
func MarshalAction(action PrimaryAction) ([]byte, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", action.ActionKind(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", action.ActionKind(), err)
	}
	kind, _ := json.Marshal(action.ActionKind())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// UnmarshalAction decodes a kind tagged action payload.
func UnmarshalAction(data []byte) (PrimaryAction, error) {
	var head struct {
		Kind ActionKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	factory, ok := actionFactories[head.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown action kind %q", head.Kind)
	}
	action := factory()
	if err := json.Unmarshal(data, action); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", head.Kind, err)
	}
	return action, nil
}
