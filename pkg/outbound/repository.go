package outbound

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"
)

// Repository provides CRUD operations for jobs, contact attempts, and call
// records.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a new outbound repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// CreateJob persists a job, deduplicating on the idempotency key. When a job
// with the same key already exists, that job is returned and created is
// false.
func (r *Repository) CreateJob(ctx context.Context, job *OutboundJob) (*OutboundJob, bool, error) {
	var existing OutboundJob
	err := r.db(ctx, true).
		Where("idempotency_key = ?", job.IdempotencyKey).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if err := r.db(ctx, false).Create(job).Error; err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// GetJob returns a job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*OutboundJob, error) {
	var job OutboundJob
	err := r.db(ctx, true).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveJob persists lifecycle changes to a job.
func (r *Repository) SaveJob(ctx context.Context, job *OutboundJob) error {
	return r.db(ctx, false).Save(job).Error
}

// ListJobsByState returns jobs in the given state, oldest schedule first.
func (r *Repository) ListJobsByState(ctx context.Context, state JobState, limit int) ([]OutboundJob, error) {
	var jobs []OutboundJob
	q := r.db(ctx, true).
		Where("state = ?", state).
		Order("priority DESC, scheduled_for ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// LeaseNextJob claims the oldest due queued job for a worker. The state
// predicate in the update guards against two workers leasing the same row.
func (r *Repository) LeaseNextJob(ctx context.Context, owner string, now time.Time) (*OutboundJob, error) {
	var job OutboundJob
	err := r.db(ctx, true).
		Where("state = ? AND scheduled_for <= ?", StateQueued, now).
		Order("priority DESC, scheduled_for ASC").
		First(&job).Error
	if err != nil {
		return nil, err
	}

	if err := job.Lease(owner, now); err != nil {
		return nil, err
	}
	res := r.db(ctx, false).
		Model(&OutboundJob{}).
		Where("id = ? AND state = ?", job.ID, StateQueued).
		Updates(map[string]interface{}{
			"state":            job.State,
			"lease_owner":      job.LeaseOwner,
			"lease_expires_at": job.LeaseExpiresAt,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

// RequeueExpiredLeases returns abandoned leased jobs to the queue.
func (r *Repository) RequeueExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	res := r.db(ctx, false).
		Model(&OutboundJob{}).
		Where("state = ? AND lease_expires_at < ?", StateLeased, now).
		Updates(map[string]interface{}{
			"state":            StateQueued,
			"lease_owner":      "",
			"lease_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

// ReleaseDueRetries moves waiting jobs whose backoff has elapsed back to the
// queue.
func (r *Repository) ReleaseDueRetries(ctx context.Context, now time.Time) (int64, error) {
	res := r.db(ctx, false).
		Model(&OutboundJob{}).
		Where("state = ? AND next_attempt_at <= ?", StateWaitingRetry, now).
		Updates(map[string]interface{}{
			"state":           StateQueued,
			"next_attempt_at": nil,
		})
	return res.RowsAffected, res.Error
}

// CountJobsByState returns job counts grouped by lifecycle state.
func (r *Repository) CountJobsByState(ctx context.Context) (map[JobState]int64, error) {
	var rows []struct {
		State JobState
		N     int64
	}
	err := r.db(ctx, true).
		Model(&OutboundJob{}).
		Select("state, count(*) as n").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[JobState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.N
	}
	return counts, nil
}

// CountCallOutcomes returns call record counts grouped by outcome.
func (r *Repository) CountCallOutcomes(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		N       int64
	}
	err := r.db(ctx, true).
		Model(&CallRecord{}).
		Select("outcome, count(*) as n").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.N
	}
	return counts, nil
}

// RecordAttempt persists one contact attempt decision.
func (r *Repository) RecordAttempt(ctx context.Context, att *ContactAttempt) error {
	return r.db(ctx, false).Create(att).Error
}

// CountForLocalDay counts dialed attempts for an account on the given local
// calendar day. Blocked decisions are recorded but never counted.
func (r *Repository) CountForLocalDay(ctx context.Context, accountRef, localDay string) (int, error) {
	var count int64
	err := r.db(ctx, true).
		Model(&ContactAttempt{}).
		Where("account_ref = ? AND local_day = ? AND dialed = ?", accountRef, localDay, true).
		Count(&count).Error
	return int(count), err
}

// LastAttemptAt returns the time of the most recent dialed attempt, or a
// zero time when none exists.
func (r *Repository) LastAttemptAt(ctx context.Context, accountRef string) (time.Time, error) {
	var att ContactAttempt
	err := r.db(ctx, true).
		Where("account_ref = ? AND dialed = ?", accountRef, true).
		Order("attempt_at DESC").
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return att.AttemptAt, nil
}

// ListAttempts returns attempts for an account, newest first.
func (r *Repository) ListAttempts(ctx context.Context, accountRef string, limit int) ([]ContactAttempt, error) {
	var attempts []ContactAttempt
	q := r.db(ctx, true).
		Where("account_ref = ?", accountRef).
		Order("attempt_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&attempts).Error
	return attempts, err
}

// CreateCallRecord persists a completed call summary.
func (r *Repository) CreateCallRecord(ctx context.Context, rec *CallRecord) error {
	return r.db(ctx, false).Create(rec).Error
}

// GetCallRecord returns the record for one call.
func (r *Repository) GetCallRecord(ctx context.Context, callID string) (*CallRecord, error) {
	var rec CallRecord
	err := r.db(ctx, true).Where("call_id = ?", callID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCallRecords returns call summaries for an account, newest first.
func (r *Repository) ListCallRecords(ctx context.Context, accountRef string, limit, offset int) ([]CallRecord, error) {
	var recs []CallRecord
	q := r.db(ctx, true).
		Where("account_ref = ?", accountRef).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&recs).Error
	return recs, err
}
