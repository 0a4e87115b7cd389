// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateIdentity         = "DUPLICATE_IDENTITY"
	ErrCodeInvalidCredentialFormat   = "INVALID_CREDENTIAL_FORMAT"
	ErrCodeInvalidCredentials        = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized              = "UNAUTHORIZED"
	ErrCodeInfrastructureUnavailable = "INFRASTRUCTURE_UNAVAILABLE"
	ErrCodeInvalidRequest            = "INVALID_REQUEST"
	ErrCodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"
	ErrCodeUserNotFound              = "USER_NOT_FOUND"
	ErrCodeForbiddenOrigin           = "FORBIDDEN_ORIGIN"
	ErrCodeInternal                  = "INTERNAL_ERROR"
)

// NewDuplicateIdentityError はメールアドレス重複エラーを生成する。
func NewDuplicateIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateIdentity,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewInvalidCredentialFormatError は入力形式エラーを生成する。
// reasonにはどの項目が不正かを含める（パスワードの値そのものは含めない）。
func NewInvalidCredentialFormatError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentialFormat,
		Message:  fmt.Sprintf("入力形式が正しくありません: %s", reason),
		Category: "validation",
		Action:   "メールアドレス、パスワード（8〜72バイト）、名前を確認してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// 存在しないメールアドレスとパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
// 期限切れ・不正トークン等の理由は外部に出さない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInfrastructureUnavailableError はストア障害エラーを生成する。
func NewInfrastructureUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeInfrastructureUnavailable,
		Message:  "認証基盤が一時的に利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの形式が正しくありません。",
		Category: "validation",
		Action:   "JSON形式のリクエストボディを送信してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewForbiddenOriginError は許可されていないオリジンからの状態変更リクエストを拒否するエラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "許可されていないオリジンからのリクエストです。",
		Category: "auth",
		Action:   "正規のアプリケーションから操作してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
