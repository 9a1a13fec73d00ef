// Package agent drives one side of a compliance-gated collections call. Given
// the transcript of what the other party just said, it decides what to say
// next, which flags to update, and which side-effecting actions to request
// from the host. The package holds no process-wide mutable state: one
// CallState value per call, threaded through every turn.
package agent

import (
	"time"

	"github.com/northstarrec/outdial/pkg/intent"
)

// Phase is the call's position in the conversation state machine.
type Phase string

const (
	PhasePreVerification  Phase = "pre_verification"
	PhaseVerification     Phase = "verification"
	PhasePostVerification Phase = "post_verification"
	PhaseClosing          Phase = "closing"
	PhaseEscalation       Phase = "escalation"
	PhaseEnded            Phase = "ended"
)

// YesNoUnknown is a tri-state answer flag.
type YesNoUnknown string

const (
	AnswerUnknown YesNoUnknown = "unknown"
	AnswerYes     YesNoUnknown = "yes"
	AnswerNo      YesNoUnknown = "no"
)

// Outcome codes. Every call ends with exactly one of these in EndReason and a
// matching set_outcome action.
const (
	OutcomeCeaseContact        = "cease_contact"
	OutcomeUserEnded           = "user_ended"
	OutcomeWrongParty          = "wrong_party"
	OutcomeVerificationFailed  = "verification_failed"
	OutcomeVerificationRefused = "verification_refused"
	OutcomeSilenceTimeout      = "silence_timeout"
	OutcomeMaxTurns            = "max_turns"
	OutcomePTPSet              = "ptp_set"
	OutcomeCallbackSet         = "callback_set"
	OutcomeBusy                = "busy"
	OutcomeVoicemail           = "voicemail"
	OutcomeClosed              = "closed"
)

// Escalation reason codes.
const (
	ReasonDispute            = "dispute"
	ReasonHardship           = "hardship"
	ReasonUserRequestedHuman = "user_requested_human"
	ReasonLowConfidence      = "low_confidence"
	ReasonHardRefusal        = "hard_refusal"
	ReasonDatePolicy         = "date_policy"
	ReasonRepeatedQuestion   = "repeated_question"
	ReasonMaxTurns           = "max_turns"
)

// PromiseToPay records a payment commitment. Payment credentials are never
// stored anywhere in call state.
type PromiseToPay struct {
	// Date is the promised date in YYYY-MM-DD, if set.
	Date string `json:"date,omitempty"`
	// Amount is a decimal amount as a string, e.g. "240.00".
	Amount string `json:"amount,omitempty"`
	// Confirmed is true only after the user explicitly acknowledged a recap
	// of both date and amount.
	Confirmed bool `json:"confirmed"`
}

// Callback records callback scheduling state.
type Callback struct {
	Requested bool `json:"requested"`
	// DatetimeLocal is an ISO-8601 local datetime confirmed with the user.
	DatetimeLocal string `json:"datetime_local,omitempty"`
}

// CallState is the authoritative state for a single outbound call. It is
// exclusively owned by the turn currently processing it and persisted opaquely
// by the host between turns. All fields are values, so a plain copy is a deep
// copy.
type CallState struct {
	Phase Phase `json:"phase"`

	// Counters. Updated only through the guardrail functions so that every
	// ceiling breach has exactly one consequence.
	TurnCount             int `json:"turn_count"`
	VerificationAttempts  int `json:"verification_attempts"`
	ReconductionAttempts  int `json:"reconduction_attempts"`
	NegotiationProposals  int `json:"negotiation_proposals_count"`
	SilenceCount          int `json:"silence_count"`
	ClarificationAttempts int `json:"clarification_attempts"`
	RepeatedQuestionCount int `json:"repeated_question_count"`
	DateCorrections       int `json:"date_corrections"`

	// Verification.
	RightPartyVerified   bool    `json:"right_party_verified"`
	RightPartyConfidence float64 `json:"right_party_confidence"`
	VerificationPasses   int     `json:"verification_passes"`
	// PendingVerificationMethod is the check currently awaiting an answer.
	PendingVerificationMethod string `json:"pending_verification_method,omitempty"`

	// Consent and disclosure.
	TargetReached       YesNoUnknown `json:"target_reached"`
	ConsentToContinue   YesNoUnknown `json:"consent_to_continue"`
	DisclosureDelivered bool         `json:"disclosure_delivered"`

	// Negotiation.
	LastProposedPaymentDate string       `json:"last_proposed_payment_date,omitempty"`
	PromiseToPay            PromiseToPay `json:"promise_to_pay"`
	Callback                Callback     `json:"callback"`
	// LastProposedCallbackLocal holds a resolved-but-unconfirmed callback
	// datetime. It becomes Callback.DatetimeLocal only after the user confirms
	// the echoed day.
	LastProposedCallbackLocal string `json:"last_proposed_callback_local,omitempty"`

	// Situational flags.
	WrongPartyIndicated   bool   `json:"wrong_party_indicated"`
	DisputeFlag           bool   `json:"dispute_flag"`
	HardshipFlag          bool   `json:"hardship_flag"`
	CeaseContactRequested bool   `json:"cease_contact_requested"`
	EscalationFlag        bool   `json:"escalation_flag"`
	EscalationReason      string `json:"escalation_reason,omitempty"`

	// Conversational context.
	LastUserUtterance     string `json:"last_user_utterance,omitempty"`
	LastAssistantQuestion string `json:"last_assistant_question,omitempty"`
	LastAssistantIntent   string `json:"last_assistant_intent,omitempty"`

	// EndReason is set only when Phase is ended.
	EndReason string `json:"end_reason,omitempty"`
}

// NewCallState returns the initial state for a freshly dialed call.
func NewCallState() CallState {
	return CallState{
		Phase:             PhasePreVerification,
		TargetReached:     AnswerUnknown,
		ConsentToContinue: AnswerUnknown,
	}
}

// Ended reports whether the call has reached its terminal phase.
func (s *CallState) Ended() bool {
	return s.Phase == PhaseEnded
}

// EventType identifies the kind of turn event the host submitted.
type EventType string

const (
	EventUserUtterance EventType = "user_utterance"
	EventSilence       EventType = "silence"
	EventVoicemail     EventType = "voicemail"
	EventSystem        EventType = "system"
)

// TurnEvent is one host-submitted turn. Read-only to the agent.
type TurnEvent struct {
	Type       EventType `json:"event_type"`
	Transcript string    `json:"transcript,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	// LocalDate is the current date in the recipient's timezone, used as the
	// reference for all date resolution. Falls back to Timestamp when zero.
	LocalDate time.Time `json:"local_date"`
	Locale    string    `json:"locale,omitempty"`
}

// Validate rejects malformed turn events at the boundary, before any
// conversational handling runs.
func (e *TurnEvent) Validate() error {
	switch e.Type {
	case EventUserUtterance, EventSilence, EventVoicemail, EventSystem:
	default:
		return &ValidationError{Field: "event_type", Reason: "unknown event type " + string(e.Type)}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "timestamp is required"}
	}
	return nil
}

// ValidationError reports a malformed turn event. It is distinct from
// conversational failures, which always yield a well-formed Response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid turn event: " + e.Field + ": " + e.Reason
}

// ActionType enumerates the host-facing action vocabulary. The agent only
// requests these; the host executes them.
type ActionType string

const (
	ActionScheduleCallback   ActionType = "schedule_callback"
	ActionSendPaymentLink    ActionType = "send_payment_link"
	ActionCreatePromiseToPay ActionType = "create_promise_to_pay"
	ActionEscalateToHuman    ActionType = "escalate_to_human"
	ActionMarkDoNotContact   ActionType = "mark_do_not_contact"
	ActionMarkWrongNumber    ActionType = "mark_wrong_number"
	ActionSetOutcome         ActionType = "set_outcome"
	ActionEndCall            ActionType = "end_call"
)

// Action is one side-effect request emitted to the host.
type Action struct {
	Type    ActionType        `json:"type"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Response is the agent's output for one turn.
type Response struct {
	AssistantText   string                `json:"assistant_text"`
	AssistantIntent string                `json:"assistant_intent"`
	Actions         []Action              `json:"actions"`
	State           CallState             `json:"call_state"`
	NLU             intent.Classification `json:"nlu"`
}

// PartyProfile describes the person the call is trying to reach.
type PartyProfile struct {
	TargetName string `json:"target_name"`
	Language   string `json:"language,omitempty"`
}

// AccountContext carries the account facts the agent may verify against and,
// after verification, disclose. Never echo any of these before
// RightPartyVerified is true.
type AccountContext struct {
	AmountDue            string `json:"amount_due"`
	CreditorName         string `json:"creditor_name,omitempty"`
	Reference            string `json:"reference,omitempty"`
	ExpectedZip          string `json:"expected_zip,omitempty"`
	ExpectedName         string `json:"expected_name,omitempty"`
	ExpectedDOBMonthDay  string `json:"expected_dob_month_day,omitempty"`
	ExpectedLast4Ref     string `json:"expected_last4_ref,omitempty"`
	ExpectedStreetNumber string `json:"expected_street_number,omitempty"`
}
