package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             zerolog.Logger
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Name         string `json:"name" validate:"required"`
		TemplateID   int    `json:"templateId" validate:"required,gt=0"`
		RecipientIDs []int  `json:"recipientIds"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), owner, body.Name, body.TemplateID, body.RecipientIDs)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), owner, page, pageSize, status)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	campaign, err := c.CampaignService.GetCampaign(r.Context(), owner, id)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Name         *string `json:"name"`
		TemplateID   *int    `json:"templateId"`
		RecipientIDs *[]int  `json:"recipientIds"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), owner, id, service.CampaignUpdate{
		Name: body.Name, TemplateID: body.TemplateID, RecipientIDs: body.RecipientIDs,
	})
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "Campaign updated successfully", campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := c.CampaignService.DeleteCampaign(r.Context(), owner, id); err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "Campaign removed successfully.", nil)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	campaign, err := c.CampaignService.ScheduleCampaign(r.Context(), owner, id, body.ScheduledAt)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "Campaign scheduled successfully", campaign)
}

// SendCampaign dispatches synchronously and returns the run's aggregate.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := c.CampaignService.SendCampaign(r.Context(), owner, id)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "Campaign sending completed", result)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		RecipientID int `json:"recipientId" validate:"required,gt=0"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	rendered, err := c.CampaignService.PreviewCampaign(r.Context(), owner, id, body.RecipientID)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"subject":     rendered.Subject,
		"body":        rendered.Body,
		"recipientId": body.RecipientID,
	})
}

func (c *CampaignController) ValidateEmails(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Emails []string `json:"emails" validate:"required,min=1"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	results := service.ValidateEmails(body.Emails)
	valid := 0
	for _, res := range results {
		if res.IsValid {
			valid++
		}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"summary": map[string]int{
			"total":   len(results),
			"valid":   valid,
			"invalid": len(results) - valid,
		},
	})
}
