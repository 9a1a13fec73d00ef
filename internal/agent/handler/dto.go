package handler

import (
	"time"

	"github.com/northstarrec/outdial/pkg/agent"
	"github.com/northstarrec/outdial/pkg/intent"
	"github.com/northstarrec/outdial/pkg/outbound"
)

// StartCallRequest is the request body for starting a call.
type StartCallRequest struct {
	PartyProfile   agent.PartyProfile   `json:"party_profile"`
	AccountContext agent.AccountContext `json:"account_context"`
	PolicyName     string               `json:"policy_name,omitempty"`
	JobID          string               `json:"job_id,omitempty"`
	CampaignID     string               `json:"campaign_id,omitempty"`
	AccountRef     string               `json:"account_ref,omitempty"`
}

// TurnRequest is the request body for submitting a turn.
type TurnRequest struct {
	TurnEvent agent.TurnEvent `json:"turn_event"`
}

// CallResponse is the response for start and turn requests.
type CallResponse struct {
	CallID          string                `json:"call_id"`
	AssistantText   string                `json:"assistant_text"`
	AssistantIntent string                `json:"assistant_intent"`
	Actions         []agent.Action        `json:"actions"`
	NLU             intent.Classification `json:"nlu,omitempty"`
	CallState       agent.CallState       `json:"call_state"`
}

// CallSummaryResponse is the response for GET on a call.
type CallSummaryResponse struct {
	CallID     string          `json:"call_id"`
	PolicyName string          `json:"policy_name"`
	JobID      string          `json:"job_id,omitempty"`
	AccountRef string          `json:"account_ref,omitempty"`
	Ended      bool            `json:"ended"`
	CallState  agent.CallState `json:"call_state"`
	StartedAt  string          `json:"started_at"`
}

// EnqueueJobRequest is the request body for enqueueing a dial job.
type EnqueueJobRequest struct {
	TriggerSource   string               `json:"trigger_source,omitempty"`
	CampaignID      string               `json:"campaign_id"`
	AccountRef      string               `json:"account_ref"`
	Payload         outbound.PayloadJSON `json:"payload"`
	PolicyName      string               `json:"policy_name,omitempty"`
	DNC             bool                 `json:"dnc,omitempty"`
	CeaseContact    bool                 `json:"cease_contact,omitempty"`
	LegalHold       bool                 `json:"legal_hold,omitempty"`
	Timezone        string               `json:"timezone,omitempty"`
	DailyAttemptCap int                  `json:"daily_attempt_cap,omitempty"`
	MinGapMinutes   int                  `json:"min_gap_minutes,omitempty"`
	ScheduledFor    *time.Time           `json:"scheduled_for,omitempty"`
	Priority        int                  `json:"priority,omitempty"`
	MaxAttempts     int                  `json:"max_attempts,omitempty"`
}

// EnqueueJobResponse reports the deduplicated enqueue result.
type EnqueueJobResponse struct {
	Created bool                 `json:"created"`
	Job     outbound.OutboundJob `json:"job"`
}

// LeaseJobRequest is the request body for leasing the next due job.
type LeaseJobRequest struct {
	WorkerID string `json:"worker_id"`
}

// LeaseJobResponse returns the leased job, or nothing when the queue is idle.
type LeaseJobResponse struct {
	Job *outbound.OutboundJob `json:"job"`
}

// JobSuccessRequest is the request body for reporting a finished attempt.
type JobSuccessRequest struct {
	Outcome string `json:"outcome,omitempty"`
}

// JobFailureRequest is the request body for reporting a failed attempt.
type JobFailureRequest struct {
	Reason string `json:"reason"`
}

// ListJobsResponse wraps a job listing.
type ListJobsResponse struct {
	Count int                    `json:"count"`
	Jobs  []outbound.OutboundJob `json:"jobs"`
}

// AttemptsResponse wraps the attempt history for an account.
type AttemptsResponse struct {
	AccountRef string                    `json:"account_ref"`
	Attempts   []outbound.ContactAttempt `json:"attempts"`
}

// MetricsSummaryResponse aggregates call outcomes and job states.
type MetricsSummaryResponse struct {
	CallOutcomes map[string]int64            `json:"call_outcomes"`
	JobStates    map[outbound.JobState]int64 `json:"job_states"`
	ActiveCalls  int                         `json:"active_calls"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
