// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/authgate/internal/auth"
	"github.com/hitoshi/authgate/internal/middleware"
	"github.com/hitoshi/authgate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput, client auth.ClientInfo) (*model.User, *model.Session, error)
	SignIn(ctx context.Context, in auth.SignInInput, client auth.ClientInfo) (*model.User, *model.Session, error)
	SignOut(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (model.AuthResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメールアドレス・パスワード認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp はユーザーを登録し、セッションCookieを発行する。
// POST /api/auth/sign-up/email
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, session, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, clientInfo(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	setSessionCookie(w, h.config, session.Token)
	writeJSON(w, http.StatusOK, toSessionEnvelope(user, session))
}

// SignIn は資格情報を検証し、セッションCookieを発行する。
// POST /api/auth/sign-in/email
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, session, err := h.service.SignIn(r.Context(), auth.SignInInput{
		Email:    req.Email,
		Password: req.Password,
	}, clientInfo(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	setSessionCookie(w, h.config, session.Token)
	writeJSON(w, http.StatusOK, toSessionEnvelope(user, session))
}

// GetSession は現在のセッションとユーザーを返す。
// GET /api/auth/get-session
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionTokenFromRequest(r)

	result, err := h.service.Resolve(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !result.IsAuthenticated() {
		// 無効なトークンを保持し続けないようCookieを消去する
		if token != "" {
			clearSessionCookie(w, h.config)
		}
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toSessionEnvelope(result.User, result.Session))
}

// SignOut はセッションを破棄し、Cookieを消去する。
// セッションが存在しない場合も成功を返す。
// POST /api/auth/sign-out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context(), middleware.SessionTokenFromRequest(r)); err != nil {
		handleServiceError(w, err)
		return
	}

	clearSessionCookie(w, h.config)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// setSessionCookie はセッショントークンをHTTP Only Cookieに設定する。
func setSessionCookie(w http.ResponseWriter, config AuthHandlerConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.SessionMaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを消去する。
func clearSessionCookie(w http.ResponseWriter, config AuthHandlerConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
