package authhandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"detailpay/internal/domain/auth"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/middleware"
	"detailpay/internal/transport/http/shared"
)

const tokenTTL = 8 * time.Hour

type Users interface {
	FindActiveUserByEmail(ctx context.Context, email string) (auth.AuthUser, error)
	UpdateLastLogin(ctx context.Context, userID string) error
}

type Handler struct {
	Users  Users
	Secret string
}

func NewHandler(users Users, secret string) *Handler {
	return &Handler{Users: users, Secret: secret}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      map[string]string `json:"user"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if issues := shared.DecodeJSON(r, &payload); len(issues) > 0 {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}

	user, err := h.Users.FindActiveUserByEmail(r.Context(), payload.Email)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}
	if err := auth.CheckPassword(user.Password, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}

	token, err := auth.GenerateToken(h.Secret, auth.Claims{UserID: user.ID, RoleID: user.RoleID, RoleName: user.RoleName}, tokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}

	if err := h.Users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	api.Success(w, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(tokenTTL).UTC(),
		User:      map[string]string{"id": user.ID, "roleId": user.RoleID, "role": user.RoleName},
	}, middleware.GetRequestID(r.Context()))
}

// HandleMe echoes the identity carried by the bearer token.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"id": user.UserID, "roleId": user.RoleID, "role": user.RoleName}, middleware.GetRequestID(r.Context()))
}
