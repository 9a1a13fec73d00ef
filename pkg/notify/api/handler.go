// Package api provides REST endpoints for notification endpoint management.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/northstarrec/outdial/pkg/events"
	"github.com/northstarrec/outdial/pkg/notify"
	"github.com/northstarrec/outdial/pkg/urlvalidation"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// Handler provides REST endpoints for notification management.
type Handler struct {
	repo      *notify.Repository
	publisher *events.Publisher
}

// NewHandler creates a new notify API handler.
func NewHandler(repo *notify.Repository, publisher *events.Publisher) *Handler {
	return &Handler{repo: repo, publisher: publisher}
}

// RegisterRoutes registers all notify API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/notify/endpoints", h.Create)
	mux.HandleFunc("GET /api/v1/notify/endpoints", h.List)
	mux.HandleFunc("GET /api/v1/notify/endpoints/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/notify/endpoints/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/notify/endpoints/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/notify/endpoints/{id}/rotate-secret", h.RotateSecret)
	mux.HandleFunc("GET /api/v1/notify/endpoints/{id}/deliveries", h.ListDeliveries)
	mux.HandleFunc("GET /api/v1/notify/endpoints/{id}/dead-letters", h.ListDeadLetters)
	mux.HandleFunc("POST /api/v1/notify/endpoints/{id}/dead-letters/{dlid}/replay", h.ReplayDeadLetter)
	mux.HandleFunc("POST /api/v1/notify/endpoints/{id}/test", h.Test)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func toEndpointResponse(ep *notify.Endpoint, includeSecret bool) EndpointResponse {
	resp := EndpointResponse{
		ID:             ep.ID,
		Name:           ep.Name,
		URL:            ep.URL,
		EventTypes:     []events.EventType(ep.EventTypes),
		CampaignFilter: ep.CampaignFilter,
		IsActive:       ep.IsActive,
		Description:    ep.Description,
		FailureCount:   ep.FailureCount,
		CircuitState:   ep.CircuitState,
		CreatedAt:      ep.CreatedAt.Format(time.RFC3339),
		ModifiedAt:     ep.ModifiedAt.Format(time.RFC3339),
	}
	if includeSecret {
		resp.Secret = ep.Secret
	}
	return resp
}

// Create handles POST /api/v1/notify/endpoints
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}

	if err := urlvalidation.ValidateEndpointURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint URL: "+err.Error())
		return
	}

	secret, err := notify.GenerateSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	ep := &notify.Endpoint{
		Name:           req.Name,
		URL:            req.URL,
		Secret:         secret,
		EventTypes:     notify.EventTypesJSON(req.EventTypes),
		CampaignFilter: req.CampaignFilter,
		IsActive:       true,
		Description:    req.Description,
	}

	if err := h.repo.CreateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	writeJSON(w, http.StatusCreated, toEndpointResponse(ep, true))
}

// List handles GET /api/v1/notify/endpoints
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.repo.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	resp := make([]EndpointResponse, 0, len(endpoints))
	for i := range endpoints {
		resp = append(resp, toEndpointResponse(&endpoints[i], false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/notify/endpoints/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ep, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, toEndpointResponse(ep, false))
}

// Update handles PUT /api/v1/notify/endpoints/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	id := r.PathValue("id")
	ep, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	var req UpdateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		ep.Name = *req.Name
	}
	if req.URL != nil {
		if err := urlvalidation.ValidateEndpointURL(*req.URL); err != nil {
			writeError(w, http.StatusBadRequest, "invalid endpoint URL: "+err.Error())
			return
		}
		ep.URL = *req.URL
	}
	if req.EventTypes != nil {
		ep.EventTypes = notify.EventTypesJSON(*req.EventTypes)
	}
	if req.CampaignFilter != nil {
		ep.CampaignFilter = *req.CampaignFilter
	}
	if req.IsActive != nil {
		ep.IsActive = *req.IsActive
	}
	if req.Description != nil {
		ep.Description = *req.Description
	}

	if err := h.repo.Update(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	writeJSON(w, http.StatusOK, toEndpointResponse(ep, false))
}

// Delete handles DELETE /api/v1/notify/endpoints/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles POST /api/v1/notify/endpoints/{id}/rotate-secret
func (h *Handler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ep, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	secret, err := notify.GenerateSecret()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	ep.Secret = secret
	if err := h.repo.Update(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update secret")
		return
	}

	writeJSON(w, http.StatusOK, toEndpointResponse(ep, true))
}

// ListDeliveries handles GET /api/v1/notify/endpoints/{id}/deliveries
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	attempts, err := h.repo.ListDeliveries(r.Context(), id, 50, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := make([]DeliveryResponse, 0, len(attempts))
	for _, a := range attempts {
		resp = append(resp, DeliveryResponse{
			ID:            a.ID,
			EventID:       a.EventID,
			EventType:     a.EventType,
			ResponseCode:  a.ResponseCode,
			AttemptNumber: a.AttemptNumber,
			Status:        a.Status,
			Error:         a.Error,
			DurationMs:    a.DurationMs,
			CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDeadLetters handles GET /api/v1/notify/endpoints/{id}/dead-letters
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	letters, err := h.repo.ListDeadLetters(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	resp := make([]DeadLetterResponse, 0, len(letters))
	for _, dl := range letters {
		resp = append(resp, DeadLetterResponse{
			ID:        dl.ID,
			EventID:   dl.EventID,
			EventType: dl.EventType,
			LastError: dl.LastError,
			Attempts:  dl.Attempts,
			CreatedAt: dl.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReplayDeadLetter handles POST /api/v1/notify/endpoints/{id}/dead-letters/{dlid}/replay
func (h *Handler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	id := r.PathValue("id")
	dlid := r.PathValue("dlid")

	letters, err := h.repo.ListDeadLetters(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	var found *notify.DeadLetter
	for i := range letters {
		if letters[i].ID == dlid {
			found = &letters[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	// Re-publish the envelope to the event bus.
	var env events.Envelope
	if err := json.Unmarshal([]byte(found.Payload), &env); err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt dead letter payload")
		return
	}

	if err := h.publisher.Emit(r.Context(), env.Type, env.CallID, json.RawMessage(env.Data)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to re-publish event")
		return
	}

	if err := h.repo.MarkDeadLetterReplayed(r.Context(), dlid); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark dead letter replayed")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Test handles POST /api/v1/notify/endpoints/{id}/test
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	id := r.PathValue("id")

	if _, err := h.repo.GetByID(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	testData := events.NotifyTestData{
		EndpointID: id,
		Message:    "This is a test delivery from outdial",
	}

	if err := h.publisher.Emit(r.Context(), events.NotifyTest, "", testData); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to publish test event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "test event published"})
}
