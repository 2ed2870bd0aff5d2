package controller

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/service"
)

type TemplateController struct {
	TemplateService *service.TemplateService
	Log             zerolog.Logger
}

func (c *TemplateController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Name    string `json:"name" validate:"required"`
		Subject string `json:"subject" validate:"required"`
		Body    string `json:"body" validate:"required"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	t, err := c.TemplateService.CreateTemplate(r.Context(), owner, body.Name, body.Subject, body.Body)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, t)
}

func (c *TemplateController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	ts, err := c.TemplateService.ListTemplates(r.Context(), owner)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, ts)
}

func (c *TemplateController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := c.TemplateService.GetTemplate(r.Context(), owner, id)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, t)
}

func (c *TemplateController) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Name    *string `json:"name"`
		Subject *string `json:"subject"`
		Body    *string `json:"body"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	t, err := c.TemplateService.UpdateTemplate(r.Context(), owner, id, service.TemplateUpdate{
		Name: body.Name, Subject: body.Subject, Body: body.Body,
	})
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, t)
}

func (c *TemplateController) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := c.TemplateService.DeleteTemplate(r.Context(), owner, id); err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "Template removed successfully.", nil)
}
