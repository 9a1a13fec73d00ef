package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/outbound"
)

// EnqueueJob handles POST /api/v1/jobs
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req EnqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CampaignID == "" || req.AccountRef == "" {
		writeError(w, http.StatusBadRequest, "campaign_id and account_ref are required")
		return
	}
	if req.Payload.TargetName == "" {
		writeError(w, http.StatusBadRequest, "payload.target_name is required")
		return
	}

	scheduledFor := time.Now().UTC()
	if req.ScheduledFor != nil {
		scheduledFor = req.ScheduledFor.UTC()
	}

	job := outbound.NewJob(req.CampaignID, req.AccountRef, scheduledFor, req.Payload)
	job.TriggerSource = req.TriggerSource
	if job.TriggerSource == "" {
		job.TriggerSource = "manual"
	}
	if req.PolicyName != "" {
		job.PolicyName = req.PolicyName
	}
	job.DNC = req.DNC
	job.CeaseContact = req.CeaseContact
	job.LegalHold = req.LegalHold
	if req.Timezone != "" {
		job.Timezone = req.Timezone
	}
	if req.DailyAttemptCap > 0 {
		job.DailyAttemptCap = req.DailyAttemptCap
	}
	if req.MinGapMinutes > 0 {
		job.MinGapMinutes = req.MinGapMinutes
	}
	if req.Priority != 0 {
		job.Priority = req.Priority
	}
	if req.MaxAttempts > 0 {
		job.MaxAttempts = req.MaxAttempts
	}

	stored, created, err := h.repo.CreateJob(r.Context(), job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	if created {
		h.emit(r.Context(), events.JobStateChanged, "", &events.JobStateData{
			JobID:   stored.ID,
			ToState: string(stored.State),
			Reason:  "enqueued",
		})
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, EnqueueJobResponse{Created: created, Job: *stored})
}

// ListJobs handles GET /api/v1/jobs?state=queued
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	state := outbound.JobState(r.URL.Query().Get("state"))
	if state == "" {
		state = outbound.StateQueued
	}
	jobs, err := h.repo.ListJobsByState(r.Context(), state, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Count: len(jobs), Jobs: jobs})
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	job, err := h.repo.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /api/v1/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	job, err := h.repo.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	from := job.State
	if err := job.Cancel("canceled_via_api"); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := h.repo.SaveJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	h.emit(r.Context(), events.JobStateChanged, "", &events.JobStateData{
		JobID:     job.ID,
		FromState: string(from),
		ToState:   string(job.State),
		Reason:    "canceled_via_api",
	})
	writeJSON(w, http.StatusOK, job)
}

// LeaseJob handles POST /api/v1/jobs/lease. External dial workers use it
// instead of talking to the repository directly.
func (h *Handler) LeaseJob(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	var req LeaseJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	job, err := h.repo.LeaseNextJob(r.Context(), req.WorkerID, time.Now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusOK, LeaseJobResponse{})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to lease job")
		return
	}
	writeJSON(w, http.StatusOK, LeaseJobResponse{Job: job})
}

// StartJobAttempt handles POST /api/v1/jobs/{id}/start
func (h *Handler) StartJobAttempt(w http.ResponseWriter, r *http.Request) {
	h.advanceJob(w, r, "attempt_started", func(job *outbound.OutboundJob) error {
		return job.StartAttempt()
	})
}

// CompleteJob handles POST /api/v1/jobs/{id}/success
func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	var req JobSuccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Outcome == "" {
		req.Outcome = "call_placed"
	}
	h.advanceJob(w, r, req.Outcome, func(job *outbound.OutboundJob) error {
		return job.MarkSucceeded(req.Outcome)
	})
}

// FailJob handles POST /api/v1/jobs/{id}/failure
func (h *Handler) FailJob(w http.ResponseWriter, r *http.Request) {
	var req JobFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	h.advanceJob(w, r, req.Reason, func(job *outbound.OutboundJob) error {
		return job.MarkFailed(req.Reason, outbound.DefaultRetryPolicy(), time.Now())
	})
}

// advanceJob loads the job, applies one lifecycle move, saves, and emits the
// state change. Invalid moves surface as conflicts.
func (h *Handler) advanceJob(w http.ResponseWriter, r *http.Request, reason string, move func(*outbound.OutboundJob) error) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}

	job, err := h.repo.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	from := job.State
	if err := move(job); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err := h.repo.SaveJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save job")
		return
	}

	h.emit(r.Context(), events.JobStateChanged, "", &events.JobStateData{
		JobID:     job.ID,
		FromState: string(from),
		ToState:   string(job.State),
		Attempt:   job.AttemptCount,
		Reason:    reason,
	})
	writeJSON(w, http.StatusOK, job)
}

// ListAttempts handles GET /api/v1/attempts/{accountRef}
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "attempt history not configured")
		return
	}

	accountRef := r.PathValue("accountRef")
	attempts, err := h.repo.ListAttempts(r.Context(), accountRef, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	writeJSON(w, http.StatusOK, AttemptsResponse{AccountRef: accountRef, Attempts: attempts})
}

// MetricsSummary handles GET /api/v1/metrics/summary
func (h *Handler) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	resp := MetricsSummaryResponse{
		CallOutcomes: map[string]int64{},
		JobStates:    map[outbound.JobState]int64{},
		ActiveCalls:  h.store.Len(),
	}

	if h.repo != nil {
		outcomes, err := h.repo.CountCallOutcomes(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to aggregate call outcomes")
			return
		}
		resp.CallOutcomes = outcomes

		states, err := h.repo.CountJobsByState(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to aggregate job states")
			return
		}
		resp.JobStates = states
	}

	writeJSON(w, http.StatusOK, resp)
}
