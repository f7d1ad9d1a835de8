package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/helpdesk-learning/internal/api"
	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/pagination"
	"github.com/cloo-solutions/helpdesk-learning/internal/service"
)

type LearningService interface {
	Enqueue(ctx context.Context, ticketID string) (bool, error)
	SeedHistoricalTickets(ctx context.Context, days int) (*service.SeedResult, error)
	Status(ctx context.Context) (*domain.LearningQueueStats, error)
	ListFailed(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.FailedLearningItem], error)
}

// SweepTrigger wakes the learning worker. Trigger reports false when a
// wake-up is already pending.
type SweepTrigger interface {
	Trigger() bool
}

type LearningHandler struct {
	svc     LearningService
	trigger SweepTrigger
}

func NewLearningHandler(svc LearningService, trigger SweepTrigger) *LearningHandler {
	return &LearningHandler{svc: svc, trigger: trigger}
}

type EnqueueRequest struct {
	TicketID string `json:"ticket_id"`
}

type EnqueueResponse struct {
	TicketID string `json:"ticket_id"`
	Queued   bool   `json:"queued"`
}

type SeedRequest struct {
	Days int `json:"days"`
}

type TriggerResponse struct {
	Triggered bool `json:"triggered"`
}

func (h *LearningHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Status(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}

func (h *LearningHandler) Failed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	page, err := h.svc.ListFailed(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, page)
}

// Trigger asks for a sweep without waiting for it
func (h *LearningHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusAccepted, TriggerResponse{Triggered: h.trigger.Trigger()})
}

func (h *LearningHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := api.DecodeJSON(r, &req); err != nil && !errors.Is(err, domain.ErrEmptyBody) {
		api.HandleError(w, err)
		return
	}
	if req.Days < 0 {
		api.Error(w, http.StatusBadRequest, "days cannot be negative")
		return
	}

	result, err := h.svc.SeedHistoricalTickets(r.Context(), req.Days)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

func (h *LearningHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if req.TicketID == "" {
		api.Error(w, http.StatusBadRequest, "ticket_id is required")
		return
	}

	created, err := h.svc.Enqueue(r.Context(), req.TicketID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	api.Success(w, status, EnqueueResponse{TicketID: req.TicketID, Queued: created})
}
