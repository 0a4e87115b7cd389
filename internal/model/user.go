// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Emailは小文字に正規化された状態で保持する。
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProviderCredential はメールアドレス+パスワード認証のプロバイダーID。
const ProviderCredential = "credential"

// Account はユーザーの認証手段（資格情報）を表す。
// パスワードハッシュはIdentity Storeの外に出さない。
type Account struct {
	ID           string
	UserID       string
	ProviderID   string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Tokenはクライアントに渡す生のトークンでメモリ上にのみ存在する。
// 永続化されるのはTokenHashのみ。
type Session struct {
	ID        string
	UserID    string
	Token     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	IPAddress string
	UserAgent string
}

// IsExpired はnow時点でセッションが期限切れかどうかを返す。
// now >= ExpiresAt の場合に期限切れとみなす。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
