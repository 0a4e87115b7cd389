package identity

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/authgate/internal/model"
)

const (
	minPasswordBytes = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordBytes = 72
	maxEmailLength   = 254
	maxNameRunes     = 100
)

// normalizeEmail は前後の空白を除去し小文字化したメールアドレスを返す。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail はメールアドレスの形式を検証する。
// 表示名付きの形式（"Name <a@x.com>"）は受け付けない。
func validateEmail(email string) error {
	if email == "" {
		return model.NewInvalidCredentialFormatError("メールアドレスが空です")
	}
	if len(email) > maxEmailLength {
		return model.NewInvalidCredentialFormatError("メールアドレスが長すぎます")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return model.NewInvalidCredentialFormatError("メールアドレスの形式が不正です")
	}
	return nil
}

// validatePassword はパスワードの長さを検証する。
func validatePassword(password string) error {
	if len(password) < minPasswordBytes {
		return model.NewInvalidCredentialFormatError("パスワードが短すぎます")
	}
	if len(password) > maxPasswordBytes {
		return model.NewInvalidCredentialFormatError("パスワードが長すぎます")
	}
	return nil
}

// validateName はサニタイズ済みの表示名を検証する。
func validateName(name string) error {
	if name == "" {
		return model.NewInvalidCredentialFormatError("名前が空です")
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		return model.NewInvalidCredentialFormatError("名前が長すぎます")
	}
	return nil
}
