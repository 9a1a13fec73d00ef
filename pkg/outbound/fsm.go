// Package outbound manages the dial job lifecycle: queueing, leasing,
// attempts, retry backoff, and dead-lettering. The worker drives jobs through
// a closed state machine; anything not in the transition table is an error,
// never a silent state overwrite.
package outbound

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// JobState is a dial job's position in its lifecycle.
type JobState string

const (
	StateQueued       JobState = "queued"
	StateLeased       JobState = "leased"
	StateRunning      JobState = "running"
	StateWaitingRetry JobState = "waiting_retry"
	StateSucceeded    JobState = "succeeded"
	StateFailed       JobState = "failed"
	StateDeadLetter   JobState = "dead_letter"
	StateCanceled     JobState = "canceled"
)

// JobEvent is a lifecycle event applied to a job.
type JobEvent string

const (
	EventLease          JobEvent = "lease"
	EventStart          JobEvent = "start"
	EventCallSucceeded  JobEvent = "call_succeeded"
	EventCallFailed     JobEvent = "call_failed"
	EventScheduleRetry  JobEvent = "schedule_retry"
	EventRetryReady     JobEvent = "retry_ready"
	EventExhaustRetries JobEvent = "exhaust_retries"
	EventCancel         JobEvent = "cancel"
)

type transitionKey struct {
	state JobState
	event JobEvent
}

// stateTransitions is the closed job state machine.
var stateTransitions = map[transitionKey]JobState{
	{StateQueued, EventLease}:            StateLeased,
	{StateLeased, EventStart}:            StateRunning,
	{StateRunning, EventCallSucceeded}:   StateSucceeded,
	{StateRunning, EventCallFailed}:      StateFailed,
	{StateLeased, EventScheduleRetry}:    StateWaitingRetry,
	{StateFailed, EventScheduleRetry}:    StateWaitingRetry,
	{StateWaitingRetry, EventRetryReady}: StateQueued,
	{StateFailed, EventExhaustRetries}:   StateDeadLetter,
	{StateQueued, EventCancel}:           StateCanceled,
	{StateLeased, EventCancel}:           StateCanceled,
	{StateRunning, EventCancel}:          StateCanceled,
	{StateWaitingRetry, EventCancel}:     StateCanceled,
}

// Transition applies an event to a state, or fails for moves the table does
// not allow.
func Transition(current JobState, event JobEvent) (JobState, error) {
	next, ok := stateTransitions[transitionKey{current, event}]
	if !ok {
		return current, fmt.Errorf("invalid job transition: state=%s event=%s", current, event)
	}
	return next, nil
}

// IsTerminal reports whether a job state accepts no further events except
// none at all.
func IsTerminal(state JobState) bool {
	switch state {
	case StateSucceeded, StateDeadLetter, StateCanceled:
		return true
	}
	return false
}

// RetryPolicy bounds the attempt count and backoff for one job.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
}

// DefaultRetryPolicy matches the worker's standard dial retry behavior.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Minute,
		MaxDelay:    time.Hour,
	}
}

// Delay computes the backoff before the given attempt number (1-based).
// Exponential without jitter, capped at MaxDelay.
func (p RetryPolicy) Delay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// IdempotencyKey derives the stable dedupe key for a prospective job. The
// key carries no raw PII and is identical across trigger sources.
func IdempotencyKey(campaignID, accountRef string, scheduledFor time.Time) string {
	sum := sha256.Sum256([]byte(campaignID + "|" + accountRef + "|" + scheduledFor.UTC().Format(time.RFC3339)))
	return "job_" + hex.EncodeToString(sum[:])[:24]
}
