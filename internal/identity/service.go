// Package identity はメールアドレス+パスワードによるユーザー登録と資格情報の検証を提供する。
// ユーザーとaccountの永続化、パスワードハッシュ、入力形式の検証を担い、
// 認証サービスからはIdentity Storeとして利用される。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
)

// dummyPassword は存在しないユーザーに対する照合でタイミングを揃えるためのパスワード。
const dummyPassword = "authgate-dummy-password"

// Service はIdentity Storeの実装。
type Service struct {
	userRepo    repository.UserRepository
	accountRepo repository.AccountRepository
	hasher      PasswordHasher
	sanitizer   security.NameSanitizer
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	hasher PasswordHasher,
	sanitizer security.NameSanitizer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		accountRepo: accountRepo,
		hasher:      hasher,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// CreateAccount は新しいユーザーと資格情報を作成する。
// 入力形式が不正な場合はINVALID_CREDENTIAL_FORMAT、
// メールアドレスが登録済みの場合はDUPLICATE_IDENTITYのAPIErrorを返す。
func (s *Service) CreateAccount(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	name = s.sanitizer.Sanitize(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateIdentityError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          name,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	account := &model.Account{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		ProviderID:   model.ProviderCredential,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.CreateWithAccount(ctx, user, account); err != nil {
		// 事前チェックと作成の間に同じメールアドレスが登録された場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateIdentityError()
		}
		return nil, fmt.Errorf("failed to create user and account: %w", err)
	}

	slog.Info("new user created", slog.String("user_id", user.ID))
	return user, nil
}

// VerifyCredentials はメールアドレスとパスワードを照合し、一致したユーザーを返す。
// ユーザーが存在しない場合もパスワード不一致の場合も同一のINVALID_CREDENTIALSを返す。
// 存在しないユーザーに対してもダミーハッシュとの照合を行い、応答時間の差を抑える。
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		s.compareDummy(password)
		return nil, model.NewInvalidCredentialsError()
	}

	account, err := s.accountRepo.FindByUserIDAndProvider(ctx, user.ID, model.ProviderCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		s.compareDummy(password)
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Error("password comparison failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewInvalidCredentialsError()
	}

	return user, nil
}

// FindUser は指定IDのユーザーを返す。見つからない場合はnilを返す。
func (s *Service) FindUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// DeleteAccount はユーザーと資格情報を削除する。
// セッション発行に失敗したサインアップの取り消しに使用する。
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// compareDummy はダミーハッシュとの照合を行う。結果は使用しない。
func (s *Service) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Error("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}
