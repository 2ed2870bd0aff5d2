package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/controller"
	"github.com/unclebandit/bulkmail-backend/internal/middleware"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

// CampaignHandler serves read-only reporting over the delivery ledger.
type CampaignHandler struct {
	Service *service.CampaignService
	Log     zerolog.Logger
}

func NewCampaignHandler(svc *service.CampaignService, log zerolog.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Log: log}
}

// HistoryHandler returns every ledger row of a campaign, newest first.
func (h *CampaignHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.params(w, r)
	if !ok {
		return
	}
	rows, err := h.Service.History(r.Context(), owner, id)
	if err != nil {
		controller.RespondError(w, h.Log, err)
		return
	}
	controller.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"campaignId": id,
		"history":    rows,
	})
}

// StatsHandler returns the campaign with its sent/failed counts.
func (h *CampaignHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.params(w, r)
	if !ok {
		return
	}
	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), owner, id)
	if err != nil {
		controller.RespondError(w, h.Log, err)
		return
	}
	controller.RespondJSON(w, http.StatusOK, details)
}

func (h *CampaignHandler) params(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	owner, ok := middleware.OwnerID(r.Context())
	if !ok {
		controller.RespondJSON(w, http.StatusUnauthorized, controller.APIResponse{Message: "unauthorized", Status: "error"})
		return 0, 0, false
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		controller.RespondJSON(w, http.StatusBadRequest, controller.APIResponse{Message: "invalid campaign id", Status: "error"})
		return 0, 0, false
	}
	return owner, id, true
}
