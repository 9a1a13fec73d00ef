package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	CallStarted     EventType = "call.started"
	CallTurn        EventType = "call.turn"
	CallEnded       EventType = "call.ended"
	CallEscalated   EventType = "call.escalated"
	PhaseTransition EventType = "phase.transition"
	ActionEmitted   EventType = "action.emitted"
	JobStateChanged EventType = "job.state"
	AttemptRecorded EventType = "attempt.recorded"
	NotifyTest      EventType = "notify.test"
	SystemError     EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	CallID    string            `json:"call_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CallStartedData is the payload for call.started events.
type CallStartedData struct {
	TargetName string `json:"target_name"`
	PolicyName string `json:"policy_name"`
	JobID      string `json:"job_id,omitempty"`
}

// CallTurnData is the payload for call.turn events, emitted once per
// processed turn.
type CallTurnData struct {
	TurnCount       int     `json:"turn_count"`
	EventType       string  `json:"event_type"`
	PrimaryIntent   string  `json:"primary_intent,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
	AssistantIntent string  `json:"assistant_intent"`
	Phase           string  `json:"phase"`
}

// PhaseTransitionData is the payload for phase.transition events.
type PhaseTransitionData struct {
	FromPhase string `json:"from_phase"`
	ToPhase   string `json:"to_phase"`
	TurnCount int    `json:"turn_count"`
}

// ActionEmittedData is the payload for action.emitted events, one per
// host-facing action the agent requested.
type ActionEmittedData struct {
	ActionType string            `json:"action_type"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// CallEndedData is the payload for call.ended events.
type CallEndedData struct {
	Outcome   string `json:"outcome"`
	TurnCount int    `json:"turn_count"`
	Verified  bool   `json:"verified"`
}

// CallEscalatedData is the payload for call.escalated events.
type CallEscalatedData struct {
	Reason string `json:"reason"`
}

// JobStateData is the payload for job.state events.
type JobStateData struct {
	JobID     string `json:"job_id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Attempt   int    `json:"attempt,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// AttemptRecordedData is the payload for attempt.recorded events.
type AttemptRecordedData struct {
	JobID    string `json:"job_id"`
	Attempt  int    `json:"attempt"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// NotifyTestData is the payload for notify.test events.
type NotifyTestData struct {
	EndpointID string `json:"endpoint_id"`
	Message    string `json:"message"`
}
