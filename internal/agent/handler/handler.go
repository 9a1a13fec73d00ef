// Package handler exposes the call engine and dial job queue over a JSON
// HTTP API. Call sessions live in memory with per-call serialization; jobs,
// attempts, and finished calls persist through the outbound repository.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/northstarrec/outdial/pkg/agent"
	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/outbound"
	"github.com/northstarrec/outdial/pkg/policy"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MiB
	callTTL            = 30 * time.Minute
	reaperInterval     = 1 * time.Minute
)

// Handler serves the call and job APIs.
type Handler struct {
	loader    *policy.Loader
	repo      *outbound.Repository
	publisher *events.Publisher
	pool      workerpool.WorkerPool
	store     *CallStore
}

// NewHandler creates the API handler. The repository and publisher may be nil
// in tests; persistence and event emission are then skipped.
func NewHandler(loader *policy.Loader, repo *outbound.Repository, pub *events.Publisher, pool workerpool.WorkerPool) *Handler {
	return &Handler{
		loader:    loader,
		repo:      repo,
		publisher: pub,
		pool:      pool,
		store:     NewCallStore(),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/calls", h.StartCall)
	mux.HandleFunc("POST /api/v1/calls/{id}/turns", h.HandleTurn)
	mux.HandleFunc("GET /api/v1/calls/{id}", h.GetCall)
	mux.HandleFunc("DELETE /api/v1/calls/{id}", h.AbandonCall)

	mux.HandleFunc("POST /api/v1/jobs", h.EnqueueJob)
	mux.HandleFunc("GET /api/v1/jobs", h.ListJobs)
	mux.HandleFunc("POST /api/v1/jobs/lease", h.LeaseJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/start", h.StartJobAttempt)
	mux.HandleFunc("POST /api/v1/jobs/{id}/success", h.CompleteJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/failure", h.FailJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", h.CancelJob)

	mux.HandleFunc("GET /api/v1/attempts/{accountRef}", h.ListAttempts)
	mux.HandleFunc("GET /api/v1/metrics/summary", h.MetricsSummary)
}

// StartReaper begins the background call session TTL reaper.
func (h *Handler) StartReaper(ctx context.Context) {
	reap := func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, id := range h.store.ReapStale(callTTL, time.Now()) {
					slog.Warn("reaping stale call session", slog.String("call_id", id))
				}
			}
		}
	}
	if h.pool != nil {
		_ = h.pool.Submit(ctx, reap)
	} else {
		go reap()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *Handler) emit(ctx context.Context, et events.EventType, callID string, data any) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Emit(ctx, et, callID, data); err != nil {
		slog.WarnContext(ctx, "event emit failed",
			slog.String("event_type", string(et)), slog.String("error", err.Error()))
	}
}

// StartCall handles POST /api/v1/calls
func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req StartCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PartyProfile.TargetName == "" {
		writeError(w, http.StatusBadRequest, "party_profile.target_name is required")
		return
	}

	pol := h.loader.GetOrDefault(req.PolicyName)
	ag := agent.New(pol)
	resp := ag.StartCall(agent.NewCallState(), req.PartyProfile)

	callID := xid.New().String()
	now := time.Now()
	h.store.Put(callID, &activeCall{
		state:        resp.State,
		profile:      req.PartyProfile,
		acct:         req.AccountContext,
		policyName:   req.PolicyName,
		jobID:        req.JobID,
		accountRef:   req.AccountRef,
		campaignID:   req.CampaignID,
		startedAt:    now,
		lastActivity: now,
	})

	h.emit(r.Context(), events.CallStarted, callID, &events.CallStartedData{
		TargetName: req.PartyProfile.TargetName,
		PolicyName: pol.Name,
		JobID:      req.JobID,
	})

	writeJSON(w, http.StatusCreated, CallResponse{
		CallID:          callID,
		AssistantText:   resp.AssistantText,
		AssistantIntent: resp.AssistantIntent,
		Actions:         resp.Actions,
		CallState:       resp.State,
	})
}

// HandleTurn handles POST /api/v1/calls/{id}/turns
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	callID := r.PathValue("id")

	ac, ok := h.store.Get(callID)
	if !ok {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	prevPhase := ac.state.Phase
	ag := agent.New(h.loader.GetOrDefault(ac.policyName))
	resp, err := ag.HandleTurn(req.TurnEvent, ac.state, ac.profile, ac.acct)
	if err != nil {
		var verr *agent.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "turn processing failed")
		return
	}

	ac.state = resp.State
	ac.lastActivity = time.Now()

	ctx := r.Context()
	h.emit(ctx, events.CallTurn, callID, &events.CallTurnData{
		TurnCount:       resp.State.TurnCount,
		EventType:       string(req.TurnEvent.Type),
		PrimaryIntent:   string(resp.NLU.Label),
		Confidence:      resp.NLU.Confidence,
		AssistantIntent: resp.AssistantIntent,
		Phase:           string(resp.State.Phase),
	})
	if resp.State.Phase != prevPhase {
		h.emit(ctx, events.PhaseTransition, callID, &events.PhaseTransitionData{
			FromPhase: string(prevPhase),
			ToPhase:   string(resp.State.Phase),
			TurnCount: resp.State.TurnCount,
		})
	}
	for _, action := range resp.Actions {
		h.emit(ctx, events.ActionEmitted, callID, &events.ActionEmittedData{
			ActionType: string(action.Type),
			Payload:    action.Payload,
		})
	}
	if resp.State.Ended() {
		h.finishCall(ctx, callID, ac)
	}

	writeJSON(w, http.StatusOK, CallResponse{
		CallID:          callID,
		AssistantText:   resp.AssistantText,
		AssistantIntent: resp.AssistantIntent,
		Actions:         resp.Actions,
		NLU:             resp.NLU,
		CallState:       resp.State,
	})
}

// GetCall handles GET /api/v1/calls/{id}
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	ac, ok := h.store.Get(callID)
	if !ok {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()
	writeJSON(w, http.StatusOK, CallSummaryResponse{
		CallID:     callID,
		PolicyName: ac.policyName,
		JobID:      ac.jobID,
		AccountRef: ac.accountRef,
		Ended:      ac.state.Ended(),
		CallState:  ac.state,
		StartedAt:  ac.startedAt.Format(time.RFC3339),
	})
}

// AbandonCall handles DELETE /api/v1/calls/{id}. The host uses it when the
// line drops without a final turn event.
func (h *Handler) AbandonCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	ac, ok := h.store.Get(callID)
	if !ok {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.state.Terminate(agent.OutcomeClosed)
	h.finishCall(r.Context(), callID, ac)
	w.WriteHeader(http.StatusNoContent)
}

// finishCall persists the final record, emits the terminal event, and drops
// the session. Callers hold the call mutex.
func (h *Handler) finishCall(ctx context.Context, callID string, ac *activeCall) {
	st := ac.state
	h.emit(ctx, events.CallEnded, callID, &events.CallEndedData{
		Outcome:   st.EndReason,
		TurnCount: st.TurnCount,
		Verified:  st.RightPartyVerified,
	})
	if st.EscalationFlag {
		h.emit(ctx, events.CallEscalated, callID, &events.CallEscalatedData{
			Reason: st.EscalationReason,
		})
	}

	if h.repo != nil {
		stateJSON, _ := json.Marshal(st)
		rec := &outbound.CallRecord{
			CallID:       callID,
			JobID:        ac.jobID,
			AccountRef:   ac.accountRef,
			Outcome:      st.EndReason,
			EndReason:    st.EscalationReason,
			TurnCount:    st.TurnCount,
			Verified:     st.RightPartyVerified,
			Escalated:    st.EscalationFlag,
			PTPDate:      st.PromiseToPay.Date,
			PTPAmount:    st.PromiseToPay.Amount,
			PTPConfirmed: st.PromiseToPay.Confirmed,
			CallbackAt:   st.Callback.DatetimeLocal,
			StateJSON:    string(stateJSON),
		}
		rec.EndedAt.Time = time.Now()
		rec.EndedAt.Valid = true
		if err := h.repo.CreateCallRecord(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "persist call record failed",
				slog.String("call_id", callID), slog.String("error", err.Error()))
		}
	}

	h.store.Delete(callID)
}
