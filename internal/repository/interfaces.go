// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// ErrDuplicateEmail は同じメールアドレスのユーザーが既に存在する場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithAccount はユーザーとaccountを同一トランザクションで作成する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	CreateWithAccount(ctx context.Context, user *model.User, account *model.Account) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するaccounts、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// AccountRepository はユーザーの資格情報の永続化インターフェース。
type AccountRepository interface {
	// FindByUserIDAndProvider はuser_idとprovider_idでaccountを検索する。
	// 見つからない場合はnilを返す。
	FindByUserIDAndProvider(ctx context.Context, userID, providerID string) (*model.Account, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// セッションはトークンのダイジェスト（TokenHash）で引き当てる。
// 各操作は単一レコードに対してアトミックであること。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByTokenHash は指定ダイジェストのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れのレコードを返す場合があるため、呼び出し側で有効期限を検証すること。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)

	// DeleteByTokenHash は指定ダイジェストのセッションを削除し、削除したかどうかを返す。
	// 存在しない場合もエラーにしない（冪等）。
	DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error)

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
