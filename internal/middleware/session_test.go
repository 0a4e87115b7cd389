package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/authgate/internal/model"
)

// mockSessionResolver はSessionResolverのテスト用モック。
type mockSessionResolver struct {
	resolveFn func(ctx context.Context, token string) (model.AuthResult, error)
}

func (m *mockSessionResolver) Resolve(ctx context.Context, token string) (model.AuthResult, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, token)
	}
	return model.UnauthenticatedResult(), nil
}

// resolverForToken は指定トークンのみ認証済みとするResolverを返す。
func resolverForToken(validToken, userID string) *mockSessionResolver {
	return &mockSessionResolver{
		resolveFn: func(_ context.Context, token string) (model.AuthResult, error) {
			if token != validToken {
				return model.UnauthenticatedResult(), nil
			}
			return model.NewAuthenticated(
				&model.User{ID: userID, Email: userID + "@example.com", Name: "Test"},
				&model.Session{ID: "session-" + userID, UserID: userID},
			), nil
		},
	}
}

func TestSessionMiddleware_ValidSession_SetsAuthInContext(t *testing.T) {
	mw := NewSessionMiddleware(resolverForToken("valid-token", "user-123"))

	var captured model.AuthResult
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = AuthFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !captured.IsAuthenticated() {
		t.Fatal("expected authenticated result in context")
	}
	if captured.User.ID != "user-123" {
		t.Errorf("User.ID = %q, want %q", captured.User.ID, "user-123")
	}
}

func TestSessionMiddleware_Unauthenticated_Returns401(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"empty cookie", &http.Cookie{Name: SessionCookieName, Value: ""}},
		{"unknown token", &http.Cookie{Name: SessionCookieName, Value: "bogus"}},
		{"wrong cookie name", &http.Cookie{Name: "session_id", Value: "valid-token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewSessionMiddleware(resolverForToken("valid-token", "user-123"))
			called := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if called {
				t.Error("next handler should not be called")
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Error != "Unauthorized" {
				t.Errorf("error = %q, want %q", body.Error, "Unauthorized")
			}
			if body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestSessionMiddleware_StoreFailure_Returns503(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveFn: func(_ context.Context, _ string) (model.AuthResult, error) {
			return model.UnauthenticatedResult(), model.NewInfrastructureUnavailableError()
		},
	}
	mw := NewSessionMiddleware(resolver)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "any"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestSessionMiddleware_UnexpectedError_Returns500(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveFn: func(_ context.Context, _ string) (model.AuthResult, error) {
			return model.UnauthenticatedResult(), errors.New("boom")
		},
	}
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithAuth(context.Background(), model.NewAuthenticated(
		&model.User{ID: "user-1"}, &model.Session{ID: "s1", UserID: "user-1"},
	))
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want %q", userID, "user-1")
	}
}

func TestAuthFromContext_DefaultsToUnauthenticated(t *testing.T) {
	result := AuthFromContext(context.Background())
	if result.State != model.Unauthenticated {
		t.Errorf("State = %v, want unauthenticated", result.State)
	}
}
