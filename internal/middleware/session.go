// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authgate/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// authContextKey はリクエストコンテキストに認証結果を格納するためのキー。
var authContextKey = contextKey("auth_result")

// SessionResolver はトークンから認証状態を判定するインターフェース。
// auth.Serviceが実装する。
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (model.AuthResult, error)
}

// SessionTokenFromRequest はリクエストのCookieからセッショントークンを取り出す。
// Cookieが無い場合は空文字を返す。
func SessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 認証状態を判定するミドルウェアを返す。
// 認証済みの場合は認証結果をリクエストコンテキストに注入する。
// 未認証リクエストには401、ストア障害時には503を返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := resolver.Resolve(r.Context(), SessionTokenFromRequest(r))
			if err != nil {
				WriteAPIError(w, err)
				return
			}
			if !result.IsAuthenticated() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			annotateUserID(r.Context(), result.User.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), result)))
		})
	}
}

// AuthFromContext はリクエストコンテキストから認証結果を取得する。
// セッションミドルウェアを通過していない場合は未認証の結果を返す。
func AuthFromContext(ctx context.Context) model.AuthResult {
	result, ok := ctx.Value(authContextKey).(model.AuthResult)
	if !ok {
		return model.UnauthenticatedResult()
	}
	return result
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	result := AuthFromContext(ctx)
	if !result.IsAuthenticated() {
		return "", fmt.Errorf("user ID not found in context")
	}
	return result.User.ID, nil
}

// ContextWithAuth はコンテキストに認証結果を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAuth(ctx context.Context, result model.AuthResult) context.Context {
	return context.WithValue(ctx, authContextKey, result)
}

// WriteAPIError はエラーをAPIErrorとしてレスポンスに書き込む。
// APIError以外のエラーは内部エラーとして扱う。
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
		return
	}
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}
