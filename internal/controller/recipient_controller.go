package controller

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/model"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

type RecipientController struct {
	RecipientService *service.RecipientService
	Log              zerolog.Logger
}

func (c *RecipientController) CreateRecipient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Email   string `json:"email" validate:"required"`
		Name    string `json:"name"`
		IsValid *bool  `json:"isValid"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	rec, err := c.RecipientService.CreateRecipient(r.Context(), owner, body.Email, body.Name, body.IsValid)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rec)
}

func (c *RecipientController) ListRecipients(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	rs, err := c.RecipientService.ListRecipients(r.Context(), owner)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, rs)
}

func (c *RecipientController) GetRecipient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := c.RecipientService.GetRecipient(r.Context(), owner, id)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

func (c *RecipientController) UpdateRecipient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Email   *string `json:"email"`
		Name    *string `json:"name"`
		IsValid *bool   `json:"isValid"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	rec, err := c.RecipientService.UpdateRecipient(r.Context(), owner, id, service.RecipientUpdate{
		Email: body.Email, Name: body.Name, IsValid: body.IsValid,
	})
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

func (c *RecipientController) DeleteRecipient(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := c.RecipientService.DeleteRecipient(r.Context(), owner, id); err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "Recipient removed successfully.", nil)
}

func (c *RecipientController) DeleteAllRecipients(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	n, err := c.RecipientService.DeleteAllRecipients(r.Context(), owner)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "All recipients removed.", map[string]int{"deletedCount": n})
}

// BulkClassify validates CSV rows without persisting them.
func (c *RecipientController) BulkClassify(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Recipients []model.RecipientRow `json:"recipients" validate:"required,min=1"`
		CSVHeaders []string             `json:"csvHeaders"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	out, err := c.RecipientService.ClassifyBulk(r.Context(), owner, body.Recipients, body.CSVHeaders)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusOK, "CSV validation completed", out)
}

// Import persists rows the caller accepted after classification.
func (c *RecipientController) Import(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var body struct {
		Recipients []model.RecipientRow `json:"recipients" validate:"required,min=1"`
	}
	if !decode(w, r, c.Log, &body) {
		return
	}

	res, err := c.RecipientService.ImportRecipients(r.Context(), owner, body.Recipients)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	successResponse(w, http.StatusCreated, "Recipients imported", res)
}
