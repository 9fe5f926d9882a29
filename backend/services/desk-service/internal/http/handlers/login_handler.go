package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"cyberdesk/backend/services/desk-service/internal/models"
	"cyberdesk/backend/services/desk-service/internal/service"
)

// Authenticator logs operators in.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, *models.Operator, error)
}

// NewLoginHandler handles POST /auth/login.
func NewLoginHandler(auth Authenticator, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Username string `json:"username" validate:"required,max=64"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		token, _, err := auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			writeServiceError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, response{
			Token:     token,
			TokenType: "Bearer",
		})
	}
}
