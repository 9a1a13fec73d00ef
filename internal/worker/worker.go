// Package worker runs the dial loop: lease a due job, pass it through the
// compliance gate, place the call, and walk the job to its next state.
// Telephony is behind the Dialer interface; the worker owns everything else.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/northstarrec/outdial/pkg/compliance"
	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/outbound"
	"github.com/northstarrec/outdial/pkg/policy"

	"github.com/pitabwire/util"
)

// Store is the persistence surface the worker needs. *outbound.Repository
// satisfies it; tests use an in-memory fake.
type Store interface {
	LeaseNextJob(ctx context.Context, owner string, now time.Time) (*outbound.OutboundJob, error)
	SaveJob(ctx context.Context, job *outbound.OutboundJob) error
	RequeueExpiredLeases(ctx context.Context, now time.Time) (int64, error)
	ReleaseDueRetries(ctx context.Context, now time.Time) (int64, error)
	RecordAttempt(ctx context.Context, att *outbound.ContactAttempt) error
	CountForLocalDay(ctx context.Context, accountRef, localDay string) (int, error)
	LastAttemptAt(ctx context.Context, accountRef string) (time.Time, error)
}

// Dialer places the outbound call for a leased job. It returns the call id
// once the call is established; the conversation itself is driven elsewhere.
type Dialer interface {
	Dial(ctx context.Context, job *outbound.OutboundJob) (callID string, err error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, job *outbound.OutboundJob) (string, error)

func (f DialerFunc) Dial(ctx context.Context, job *outbound.OutboundJob) (string, error) {
	return f(ctx, job)
}

// Worker is one dial loop instance.
type Worker struct {
	id        string
	store     Store
	loader    *policy.Loader
	dialer    Dialer
	publisher *events.Publisher
	interval  time.Duration
	retry     outbound.RetryPolicy
}

// New creates a worker. A zero interval defaults to five seconds.
func New(id string, store Store, loader *policy.Loader, dialer Dialer, pub *events.Publisher, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		id:        id,
		store:     store,
		loader:    loader,
		dialer:    dialer,
		publisher: pub,
		interval:  interval,
		retry:     outbound.DefaultRetryPolicy(),
	}
}

// Run drives the loop until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx, time.Now()); err != nil {
				util.Log(ctx).WithError(err).Error("dial worker tick")
			}
		}
	}
}

// Tick performs one pass: housekeeping plus at most one job attempt. It is
// exported so the loop body is testable without timers.
func (w *Worker) Tick(ctx context.Context, now time.Time) error {
	if _, err := w.store.RequeueExpiredLeases(ctx, now); err != nil {
		return err
	}
	if _, err := w.store.ReleaseDueRetries(ctx, now); err != nil {
		return err
	}

	job, err := w.store.LeaseNextJob(ctx, w.id, now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return w.processJob(ctx, job, now)
}

func (w *Worker) processJob(ctx context.Context, job *outbound.OutboundJob, now time.Time) error {
	pol := w.loader.GetOrDefault(job.PolicyName)
	gate := compliance.NewGate(pol, w.store)
	decision, err := gate.Evaluate(ctx, job.AccountRef,
		compliance.Suppression{DNC: job.DNC, CeaseContact: job.CeaseContact, LegalHold: job.LegalHold},
		compliance.DialRules{
			Timezone:        job.Timezone,
			DailyAttemptCap: job.DailyAttemptCap,
			MinGapMinutes:   job.MinGapMinutes,
		}, now)
	if err != nil {
		return err
	}

	from := job.State

	if !decision.Allowed {
		w.recordAttempt(ctx, job, "", false, decision.ReasonCode, now)
		if !decision.Retryable {
			if err := job.Cancel(decision.ReasonCode); err != nil {
				return err
			}
			slog.InfoContext(ctx, "job suppressed",
				slog.String("job_id", job.ID), slog.String("reason", decision.ReasonCode))
		} else {
			if err := job.Defer(decision.ReasonCode, decision.RetryAfter, now); err != nil {
				return err
			}
			slog.DebugContext(ctx, "dial deferred",
				slog.String("job_id", job.ID),
				slog.String("reason", decision.ReasonCode),
				slog.Duration("retry_after", decision.RetryAfter))
		}
		if err := w.store.SaveJob(ctx, job); err != nil {
			return err
		}
		w.emitJobState(ctx, job, from, decision.ReasonCode)
		return nil
	}

	if err := job.StartAttempt(); err != nil {
		return err
	}
	if err := w.store.SaveJob(ctx, job); err != nil {
		return err
	}

	callID, dialErr := w.dialer.Dial(ctx, job)
	if dialErr != nil {
		w.recordAttempt(ctx, job, callID, true, "dial_failed", now)
		if err := job.MarkFailed("dial_failed: "+dialErr.Error(), w.retry, now); err != nil {
			return err
		}
		slog.WarnContext(ctx, "dial attempt failed",
			slog.String("job_id", job.ID),
			slog.String("state", string(job.State)),
			slog.String("error", dialErr.Error()))
	} else {
		w.recordAttempt(ctx, job, callID, true, compliance.ReasonAllowed, now)
		if err := job.MarkSucceeded("call_placed"); err != nil {
			return err
		}
		slog.InfoContext(ctx, "call placed",
			slog.String("job_id", job.ID), slog.String("call_id", callID))
	}

	if err := w.store.SaveJob(ctx, job); err != nil {
		return err
	}
	w.emitJobState(ctx, job, from, job.FailureReason)
	return nil
}

func (w *Worker) recordAttempt(ctx context.Context, job *outbound.OutboundJob, callID string, dialed bool, reason string, now time.Time) {
	att := &outbound.ContactAttempt{
		AccountRef: job.AccountRef,
		JobID:      job.ID,
		CallID:     callID,
		AttemptAt:  now,
		LocalDay:   localDay(now, job.Timezone),
		Dialed:     dialed,
		ReasonCode: reason,
	}
	if err := w.store.RecordAttempt(ctx, att); err != nil {
		util.Log(ctx).WithError(err).Error("record contact attempt")
	}
	if w.publisher != nil {
		_ = w.publisher.Emit(ctx, events.AttemptRecorded, callID, &events.AttemptRecordedData{
			JobID:    job.ID,
			Attempt:  job.AttemptCount,
			Decision: attemptDecision(dialed),
			Reason:   reason,
		})
	}
}

func (w *Worker) emitJobState(ctx context.Context, job *outbound.OutboundJob, from outbound.JobState, reason string) {
	if w.publisher == nil {
		return
	}
	_ = w.publisher.Emit(ctx, events.JobStateChanged, "", &events.JobStateData{
		JobID:     job.ID,
		FromState: string(from),
		ToState:   string(job.State),
		Attempt:   job.AttemptCount,
		Reason:    reason,
	})
}

func localDay(now time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		return now.UTC().Format("2006-01-02")
	}
	return now.In(loc).Format("2006-01-02")
}

func attemptDecision(dialed bool) string {
	if dialed {
		return "dialed"
	}
	return "blocked"
}
