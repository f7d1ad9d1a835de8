package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/helpdesk-learning/internal/api"
	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

type FeedbackService interface {
	Rate(ctx context.Context, articleID string, rating int) (float64, error)
	RecomputeEffectiveness(ctx context.Context, articleID string) (float64, error)
}

type ArticleExporter interface {
	ExportURL(ctx context.Context, articleID string) (string, error)
}

type ArticleDeleter interface {
	Delete(ctx context.Context, articleID string) error
}

type ArticleHandler struct {
	feedback FeedbackService
	deleter  ArticleDeleter
	exporter ArticleExporter
}

// NewArticleHandler creates an ArticleHandler. exporter may be nil when no
// archive storage is configured.
func NewArticleHandler(feedback FeedbackService, deleter ArticleDeleter, exporter ArticleExporter) *ArticleHandler {
	return &ArticleHandler{feedback: feedback, deleter: deleter, exporter: exporter}
}

type RateRequest struct {
	Rating int `json:"rating"`
}

type EffectivenessResponse struct {
	ArticleID     string  `json:"article_id"`
	Effectiveness float64 `json:"effectiveness"`
}

type ExportResponse struct {
	ArticleID string `json:"article_id"`
	URL       string `json:"url"`
}

func (h *ArticleHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req RateRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	score, err := h.feedback.Rate(r.Context(), id, req.Rating)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, EffectivenessResponse{ArticleID: id, Effectiveness: score})
}

func (h *ArticleHandler) RecomputeEffectiveness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	score, err := h.feedback.RecomputeEffectiveness(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, EffectivenessResponse{ArticleID: id, Effectiveness: score})
}

func (h *ArticleHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}
	if h.exporter == nil {
		api.HandleError(w, domain.ErrStorageNotEnabled)
		return
	}

	url, err := h.exporter.ExportURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, ExportResponse{ArticleID: id, URL: url})
}

func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.deleter.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
