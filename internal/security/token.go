package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// sessionTokenBytes はセッショントークンのエントロピー（バイト数）。
const sessionTokenBytes = 32

// GenerateSessionToken は暗号的に安全なセッショントークンを生成する。
// 32バイトの乱数をパディングなしbase64urlでエンコードする。
func GenerateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenHasher はセッショントークンのダイジェストを計算する。
// ストアにはダイジェストのみを保存し、ストアの内容が漏洩しても
// 有効なトークンを復元できないようにする。
type TokenHasher struct {
	secret []byte
}

// NewTokenHasher はサーバーシークレットを鍵とするTokenHasherを生成する。
func NewTokenHasher(secret string) *TokenHasher {
	return &TokenHasher{secret: []byte(secret)}
}

// Digest はトークンのHMAC-SHA256を16進文字列で返す。
func (h *TokenHasher) Digest(token string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
