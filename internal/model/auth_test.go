package model

import (
	"testing"
	"time"
)

func TestSession_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "未来の期限は有効", expiresAt: now.Add(time.Second), want: false},
		{name: "期限ちょうどは期限切れ", expiresAt: now, want: true},
		{name: "過去の期限は期限切れ", expiresAt: now.Add(-time.Minute), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expiresAt}
			if got := s.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthResult_IsAuthenticated(t *testing.T) {
	if UnauthenticatedResult().IsAuthenticated() {
		t.Error("UnauthenticatedResult should not be authenticated")
	}

	r := NewAuthenticated(&User{ID: "u1"}, &Session{ID: "s1"})
	if !r.IsAuthenticated() {
		t.Error("NewAuthenticated should be authenticated")
	}

	// Stateだけ立っていてもUser/Sessionが欠けていれば認証済みとみなさない
	partial := AuthResult{State: Authenticated}
	if partial.IsAuthenticated() {
		t.Error("result without user/session should not be authenticated")
	}
}

func TestAuthState_String(t *testing.T) {
	if Authenticated.String() != "authenticated" {
		t.Errorf("Authenticated.String() = %q", Authenticated.String())
	}
	if Unauthenticated.String() != "unauthenticated" {
		t.Errorf("Unauthenticated.String() = %q", Unauthenticated.String())
	}
}

func TestAPIError_Error(t *testing.T) {
	err := NewInvalidCredentialsError()
	want := "[INVALID_CREDENTIALS] メールアドレスまたはパスワードが正しくありません。"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
