package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// 全セッションを破棄した上で、user、accountsを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler は認証済みユーザー向けのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	config  AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		config:  config,
	}
}

type profileResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	UserID  string `json:"userId"`
}

// Me は現在のユーザーとセッションを返す。
// GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	result := middleware.AuthFromContext(r.Context())
	if !result.IsAuthenticated() {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toSessionEnvelope(result.User, result.Session))
}

// Profile はユーザー向けの挨拶とプロフィールを返す。
// GET /api/profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	result := middleware.AuthFromContext(r.Context())
	if !result.IsAuthenticated() {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		Message: fmt.Sprintf("Welcome %s!", result.User.Name),
		Email:   result.User.Email,
		UserID:  result.User.ID,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	clearSessionCookie(w, h.config)
	w.WriteHeader(http.StatusNoContent)
}
