package handlers

import (
	"net/http"

	"github.com/cloo-solutions/helpdesk-learning/internal/api"
	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// PolicySyncer applies a saved rate limit policy to the running governor
type PolicySyncer interface {
	SetPolicy(p domain.RateLimitPolicy) error
}

type SettingsHandler struct {
	settings SettingsService
	policy   PolicySyncer
}

func NewSettingsHandler(settings SettingsService, policy PolicySyncer) *SettingsHandler {
	return &SettingsHandler{settings: settings, policy: policy}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Snapshot(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, s)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.WorkflowSettings
	if err := api.DecodeJSONStrict(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.settings.Save(r.Context(), req); err != nil {
		api.HandleError(w, err)
		return
	}

	// The snapshot carries a pinned free tier that the request may not.
	saved, err := h.settings.Snapshot(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.policy.SetPolicy(saved.RateLimit); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, saved)
}
