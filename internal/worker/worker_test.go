package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/northstarrec/outdial/pkg/compliance"
	"github.com/northstarrec/outdial/pkg/outbound"
	"github.com/northstarrec/outdial/pkg/policy"
)

// Inside the default 08:00-20:00 UTC call window.
var tickTime = time.Date(2026, 2, 9, 14, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store for loop tests.
type fakeStore struct {
	jobs     []*outbound.OutboundJob
	attempts []*outbound.ContactAttempt
}

func (s *fakeStore) LeaseNextJob(_ context.Context, owner string, now time.Time) (*outbound.OutboundJob, error) {
	for _, j := range s.jobs {
		if j.State == outbound.StateQueued && !j.ScheduledFor.After(now) {
			if err := j.Lease(owner, now); err != nil {
				return nil, err
			}
			return j, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) SaveJob(context.Context, *outbound.OutboundJob) error { return nil }

func (s *fakeStore) RequeueExpiredLeases(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, j := range s.jobs {
		if j.State == outbound.StateLeased && j.LeaseExpiresAt.Valid && !j.LeaseExpiresAt.Time.After(now) {
			j.State = outbound.StateQueued
			j.LeaseOwner = ""
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ReleaseDueRetries(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, j := range s.jobs {
		if j.State == outbound.StateWaitingRetry && j.NextAttemptAt.Valid && !j.NextAttemptAt.Time.After(now) {
			if err := j.ReleaseRetry(now); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) RecordAttempt(_ context.Context, att *outbound.ContactAttempt) error {
	s.attempts = append(s.attempts, att)
	return nil
}

func (s *fakeStore) CountForLocalDay(_ context.Context, accountRef, localDay string) (int, error) {
	count := 0
	for _, a := range s.attempts {
		if a.AccountRef == accountRef && a.LocalDay == localDay && a.Dialed {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) LastAttemptAt(_ context.Context, accountRef string) (time.Time, error) {
	var last time.Time
	for _, a := range s.attempts {
		if a.AccountRef == accountRef && a.Dialed && a.AttemptAt.After(last) {
			last = a.AttemptAt
		}
	}
	return last, nil
}

func newQueuedJob(id string) *outbound.OutboundJob {
	job := outbound.NewJob("camp-1", "acct-9921", tickTime.Add(-time.Minute), outbound.PayloadJSON{
		TargetName:   "Alex Morgan",
		AmountDue:    "240.00",
		CreditorName: "Northstar Recovery",
		Reference:    "REF-9921",
		ExpectedZip:  "78701",
		ExpectedName: "Alex Morgan",
	})
	job.ID = id
	return job
}

func newTestWorker(store *fakeStore, dialer Dialer) *Worker {
	return New("worker-1", store, policy.NewLoader(""), dialer, nil, 0)
}

func okDialer(callID string) Dialer {
	return DialerFunc(func(context.Context, *outbound.OutboundJob) (string, error) {
		return callID, nil
	})
}

func failDialer(msg string) Dialer {
	return DialerFunc(func(context.Context, *outbound.OutboundJob) (string, error) {
		return "", errors.New(msg)
	})
}

func TestTickPlacesCallWhenAllowed(t *testing.T) {
	store := &fakeStore{jobs: []*outbound.OutboundJob{newQueuedJob("job-1")}}
	w := newTestWorker(store, okDialer("call-1"))

	if err := w.Tick(t.Context(), tickTime); err != nil {
		t.Fatal(err)
	}

	job := store.jobs[0]
	if job.State != outbound.StateSucceeded {
		t.Errorf("state = %s, want succeeded", job.State)
	}
	if job.Outcome != "call_placed" {
		t.Errorf("outcome = %q", job.Outcome)
	}
	if job.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", job.AttemptCount)
	}
	if len(store.attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(store.attempts))
	}
	att := store.attempts[0]
	if !att.Dialed || att.ReasonCode != compliance.ReasonAllowed || att.CallID != "call-1" {
		t.Errorf("attempt = %+v", att)
	}
	if att.LocalDay != "2026-02-09" {
		t.Errorf("local day = %q", att.LocalDay)
	}
}

func TestTickSchedulesRetryOnDialFailure(t *testing.T) {
	store := &fakeStore{jobs: []*outbound.OutboundJob{newQueuedJob("job-1")}}
	w := newTestWorker(store, failDialer("carrier timeout"))

	if err := w.Tick(t.Context(), tickTime); err != nil {
		t.Fatal(err)
	}

	job := store.jobs[0]
	if job.State != outbound.StateWaitingRetry {
		t.Fatalf("state = %s, want waiting_retry", job.State)
	}
	if !job.NextAttemptAt.Valid {
		t.Fatal("next attempt time not set")
	}
	if got, want := job.NextAttemptAt.Time, tickTime.Add(2*time.Minute); !got.Equal(want) {
		t.Errorf("next attempt = %v, want %v", got, want)
	}
	if len(store.attempts) != 1 || !store.attempts[0].Dialed || store.attempts[0].ReasonCode != "dial_failed" {
		t.Errorf("attempts = %+v", store.attempts)
	}
}

func TestTickDeadLettersAfterExhaustedRetries(t *testing.T) {
	job := newQueuedJob("job-1")
	// Zero disables the min-gap rule so retries can land back to back.
	job.MinGapMinutes = 0
	store := &fakeStore{jobs: []*outbound.OutboundJob{job}}
	w := newTestWorker(store, failDialer("carrier timeout"))

	now := tickTime
	for attempt := 1; attempt <= 3; attempt++ {
		if err := w.Tick(t.Context(), now); err != nil {
			t.Fatalf("tick %d: %v", attempt, err)
		}
		if job.NextAttemptAt.Valid {
			now = job.NextAttemptAt.Time
		}
	}

	if job.State != outbound.StateDeadLetter {
		t.Errorf("state = %s, want dead_letter", job.State)
	}
	if job.AttemptCount != 3 {
		t.Errorf("attempt count = %d, want 3", job.AttemptCount)
	}
}

func TestTickCancelsSuppressedJob(t *testing.T) {
	job := newQueuedJob("job-1")
	job.DNC = true
	store := &fakeStore{jobs: []*outbound.OutboundJob{job}}
	w := newTestWorker(store, okDialer("call-1"))

	if err := w.Tick(t.Context(), tickTime); err != nil {
		t.Fatal(err)
	}

	if job.State != outbound.StateCanceled {
		t.Errorf("state = %s, want canceled", job.State)
	}
	if job.AttemptCount != 0 {
		t.Errorf("attempt count = %d, suppression must not consume attempts", job.AttemptCount)
	}
	if len(store.attempts) != 1 || store.attempts[0].Dialed {
		t.Fatalf("attempts = %+v, want one undialed", store.attempts)
	}
	if store.attempts[0].ReasonCode != compliance.ReasonBlockedDNC {
		t.Errorf("reason = %q", store.attempts[0].ReasonCode)
	}

	// Undialed attempts never count toward the daily cap.
	count, err := store.CountForLocalDay(t.Context(), job.AccountRef, "2026-02-09")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("counted attempts = %d, want 0", count)
	}
}

func TestTickDefersOutsideCallWindow(t *testing.T) {
	job := newQueuedJob("job-1")
	job.ScheduledFor = time.Date(2026, 2, 9, 2, 0, 0, 0, time.UTC)
	store := &fakeStore{jobs: []*outbound.OutboundJob{job}}
	w := newTestWorker(store, okDialer("call-1"))

	night := time.Date(2026, 2, 9, 3, 0, 0, 0, time.UTC)
	if err := w.Tick(t.Context(), night); err != nil {
		t.Fatal(err)
	}

	if job.State != outbound.StateWaitingRetry {
		t.Fatalf("state = %s, want waiting_retry", job.State)
	}
	if job.AttemptCount != 0 {
		t.Errorf("attempt count = %d, deferral must not consume attempts", job.AttemptCount)
	}
	if got, want := job.NextAttemptAt.Time, night.Add(15*time.Minute); !got.Equal(want) {
		t.Errorf("next attempt = %v, want %v", got, want)
	}
	if job.FailureReason != compliance.ReasonBlockedOutsideWindow {
		t.Errorf("reason = %q", job.FailureReason)
	}
}

func TestTickEnforcesDailyAttemptCap(t *testing.T) {
	job := newQueuedJob("job-1")
	job.DailyAttemptCap = 1
	job.MinGapMinutes = 0
	store := &fakeStore{jobs: []*outbound.OutboundJob{job}}
	store.attempts = append(store.attempts, &outbound.ContactAttempt{
		AccountRef: job.AccountRef,
		AttemptAt:  tickTime.Add(-3 * time.Hour),
		LocalDay:   "2026-02-09",
		Dialed:     true,
	})
	w := newTestWorker(store, okDialer("call-1"))

	if err := w.Tick(t.Context(), tickTime); err != nil {
		t.Fatal(err)
	}

	if job.State != outbound.StateWaitingRetry {
		t.Fatalf("state = %s, want waiting_retry", job.State)
	}
	if job.FailureReason != compliance.ReasonBlockedDailyAttemptCap {
		t.Errorf("reason = %q", job.FailureReason)
	}
}

func TestTickNoDueJobs(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(store, okDialer("call-1"))

	if err := w.Tick(t.Context(), tickTime); err != nil {
		t.Fatal(err)
	}
	if len(store.attempts) != 0 {
		t.Errorf("attempts = %d, want 0", len(store.attempts))
	}
}

func TestTickRequeuesExpiredLease(t *testing.T) {
	job := newQueuedJob("job-1")
	if err := job.Lease("worker-0", tickTime.Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	store := &fakeStore{jobs: []*outbound.OutboundJob{job}}
	w := newTestWorker(store, okDialer("call-1"))

	if err := w.Tick(t.Context(), tickTime); err != nil {
		t.Fatal(err)
	}

	// The abandoned lease was reclaimed and the job processed this tick.
	if job.State != outbound.StateSucceeded {
		t.Errorf("state = %s, want succeeded", job.State)
	}
	if job.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", job.AttemptCount)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	w := New("worker-1", store, policy.NewLoader(""), okDialer("call-1"), nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}
