package controller

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/service"
)

type AuthController struct {
	AuthService *service.AuthService
	Log         zerolog.Logger
}

type credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

func (c *AuthController) Register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decode(w, r, c.Log, &body) {
		return
	}
	u, token, err := c.AuthService.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusCreated, authResponse{ID: u.ID, Email: u.Email, Token: token})
}

func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if !decode(w, r, c.Log, &body) {
		return
	}
	u, token, err := c.AuthService.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		RespondError(w, c.Log, err)
		return
	}
	RespondJSON(w, http.StatusOK, authResponse{ID: u.ID, Email: u.Email, Token: token})
}
