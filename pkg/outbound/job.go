package outbound

import (
	"database/sql"
	"fmt"
	"time"
)

// LeaseDuration is how long a worker holds a job before the lease is
// considered abandoned and the job is requeued.
const LeaseDuration = 90 * time.Second

// NewJob builds a queued job for the given account and schedule. The
// idempotency key is derived, not supplied, so every trigger source
// deduplicates the same way.
func NewJob(campaignID, accountRef string, scheduledFor time.Time, payload PayloadJSON) *OutboundJob {
	return &OutboundJob{
		IdempotencyKey:  IdempotencyKey(campaignID, accountRef, scheduledFor),
		CampaignID:      campaignID,
		AccountRef:      accountRef,
		PolicyName:      "default",
		State:           StateQueued,
		ScheduledFor:    scheduledFor,
		Payload:         payload,
		Timezone:        "UTC",
		DailyAttemptCap: 3,
		MinGapMinutes:   120,
		MaxAttempts:     DefaultRetryPolicy().MaxAttempts,
	}
}

// Lease claims the job for a worker.
func (j *OutboundJob) Lease(owner string, now time.Time) error {
	next, err := Transition(j.State, EventLease)
	if err != nil {
		return err
	}
	j.State = next
	j.LeaseOwner = owner
	j.LeaseExpiresAt = sql.NullTime{Time: now.Add(LeaseDuration), Valid: true}
	return nil
}

// StartAttempt moves a leased job to running and counts the attempt.
func (j *OutboundJob) StartAttempt() error {
	next, err := Transition(j.State, EventStart)
	if err != nil {
		return err
	}
	j.State = next
	j.AttemptCount++
	return nil
}

// MarkSucceeded finishes the job with a terminal outcome.
func (j *OutboundJob) MarkSucceeded(outcome string) error {
	next, err := Transition(j.State, EventCallSucceeded)
	if err != nil {
		return err
	}
	j.State = next
	j.Outcome = outcome
	j.clearLease()
	return nil
}

// MarkFailed records a failed attempt and either schedules a retry with
// exponential backoff or dead-letters the job when attempts are exhausted.
func (j *OutboundJob) MarkFailed(reason string, pol RetryPolicy, now time.Time) error {
	next, err := Transition(j.State, EventCallFailed)
	if err != nil {
		return err
	}
	j.State = next
	j.FailureReason = reason

	if j.AttemptCount >= j.maxAttempts(pol) {
		next, err = Transition(j.State, EventExhaustRetries)
		if err != nil {
			return err
		}
		j.State = next
		j.clearLease()
		return nil
	}

	next, err = Transition(j.State, EventScheduleRetry)
	if err != nil {
		return err
	}
	j.State = next
	j.NextAttemptAt = sql.NullTime{Time: now.Add(pol.Delay(j.AttemptCount)), Valid: true}
	j.clearLease()
	return nil
}

// Defer reschedules a leased job without consuming an attempt, for
// compliance blocks that carry a retry hint.
func (j *OutboundJob) Defer(reason string, retryAfter time.Duration, now time.Time) error {
	next, err := Transition(j.State, EventScheduleRetry)
	if err != nil {
		return err
	}
	j.State = next
	j.FailureReason = reason
	j.NextAttemptAt = sql.NullTime{Time: now.Add(retryAfter), Valid: true}
	j.clearLease()
	return nil
}

// ReleaseRetry moves a waiting job whose backoff has elapsed back to the
// queue.
func (j *OutboundJob) ReleaseRetry(now time.Time) error {
	if !j.NextAttemptAt.Valid || now.Before(j.NextAttemptAt.Time) {
		return fmt.Errorf("retry not due until %v", j.NextAttemptAt.Time)
	}
	next, err := Transition(j.State, EventRetryReady)
	if err != nil {
		return err
	}
	j.State = next
	j.NextAttemptAt = sql.NullTime{}
	return nil
}

// Cancel terminates the job from any non-terminal state.
func (j *OutboundJob) Cancel(reason string) error {
	next, err := Transition(j.State, EventCancel)
	if err != nil {
		return err
	}
	j.State = next
	j.FailureReason = reason
	j.clearLease()
	return nil
}

func (j *OutboundJob) clearLease() {
	j.LeaseOwner = ""
	j.LeaseExpiresAt = sql.NullTime{}
}

func (j *OutboundJob) maxAttempts(pol RetryPolicy) int {
	if j.MaxAttempts > 0 {
		return j.MaxAttempts
	}
	return pol.MaxAttempts
}
