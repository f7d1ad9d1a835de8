package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/helpdesk-learning/internal/api"
	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

type TicketScorer interface {
	ScoreTicket(ctx context.Context, t domain.IncomingTicket, settings domain.WorkflowSettings) (*domain.TicketScore, error)
}

type SettingsService interface {
	Snapshot(ctx context.Context) (domain.WorkflowSettings, error)
	Save(ctx context.Context, settings domain.WorkflowSettings) error
}

type TicketHandler struct {
	scorer   TicketScorer
	settings SettingsService
}

func NewTicketHandler(scorer TicketScorer, settings SettingsService) *TicketHandler {
	return &TicketHandler{scorer: scorer, settings: settings}
}

// Score returns the confidence and escalation verdict for an incoming ticket
func (h *TicketHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req domain.IncomingTicket
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Description) == "" {
		api.Error(w, http.StatusBadRequest, "title or description is required")
		return
	}

	settings, err := h.settings.Snapshot(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	score, err := h.scorer.ScoreTicket(r.Context(), req, settings)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, score)
}
