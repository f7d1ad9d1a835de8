package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/helpdesk-learning/internal/api"
	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/governor"
)

type GovernorService interface {
	Usage() governor.Usage
	ApplyPreset(ctx context.Context, preset domain.Preset) (domain.RateLimitPolicy, error)
	UpdateLimits(ctx context.Context, u governor.LimitsUpdate) (domain.RateLimitPolicy, error)
	SetFreeTier(ctx context.Context, enabled bool) (domain.RateLimitPolicy, error)
}

type GovernorHandler struct {
	svc GovernorService
}

func NewGovernorHandler(svc GovernorService) *GovernorHandler {
	return &GovernorHandler{svc: svc}
}

type PresetRequest struct {
	Preset string `json:"preset"`
}

type FreeTierRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *GovernorHandler) Show(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, h.svc.Usage())
}

func (h *GovernorHandler) ApplyPreset(w http.ResponseWriter, r *http.Request) {
	var req PresetRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	preset, err := domain.ParsePreset(req.Preset)
	if err != nil || preset == domain.PresetCustom {
		api.Error(w, http.StatusBadRequest, "preset must be strict, balanced or generous")
		return
	}

	policy, err := h.svc.ApplyPreset(r.Context(), preset)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, policy)
}

func (h *GovernorHandler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	var req governor.LimitsUpdate
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	policy, err := h.svc.UpdateLimits(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, policy)
}

func (h *GovernorHandler) SetFreeTier(w http.ResponseWriter, r *http.Request) {
	var req FreeTierRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if req.Enabled == nil {
		api.Error(w, http.StatusBadRequest, "enabled is required")
		return
	}

	policy, err := h.svc.SetFreeTier(r.Context(), *req.Enabled)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, policy)
}
