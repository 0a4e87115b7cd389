// Package auth はセッションの発行・破棄と、リクエストごとのセッション検証を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
	"github.com/hitoshi/authgate/internal/repository"
	"github.com/hitoshi/authgate/internal/security"
)

// IdentityStore はユーザー登録と資格情報検証を行う外部コラボレーター。
// ドメインエラーは*model.APIErrorで返し、それ以外のエラーは基盤障害として扱われる。
type IdentityStore interface {
	// CreateAccount はユーザーと資格情報を作成する。
	CreateAccount(ctx context.Context, email, password, name string) (*model.User, error)
	// VerifyCredentials は資格情報を照合し、一致したユーザーを返す。
	VerifyCredentials(ctx context.Context, email, password string) (*model.User, error)
	// FindUser は指定IDのユーザーを返す。見つからない場合はnilを返す。
	FindUser(ctx context.Context, userID string) (*model.User, error)
	// DeleteAccount はユーザーと資格情報を削除する。
	DeleteAccount(ctx context.Context, userID string) error
}

// SignUpInput はサインアップの入力。
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// SignInInput はサインインの入力。
type SignInInput struct {
	Email    string
	Password string
}

// ClientInfo はセッションに記録するクライアント情報。
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int           // セッション有効期間（秒）
	CleanupTimeout time.Duration // 期限切れセッションのバックグラウンド削除のタイムアウト
}

// Service はセッションの発行（Issuer）と検証（Gate）を提供する。
type Service struct {
	identity    IdentityStore
	sessionRepo repository.SessionRepository
	hasher      *security.TokenHasher
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time

	cleanupWG sync.WaitGroup
}

// NewService はServiceを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	identity IdentityStore,
	sessionRepo repository.SessionRepository,
	hasher *security.TokenHasher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = 5 * time.Second
	}
	return &Service{
		identity:    identity,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// SignUp はユーザーを登録し、そのままログイン状態にする。
// 成功時はセッションを1件だけ作成する。
// セッション発行に失敗した場合は作成したユーザーを削除し、再試行で登録できる状態に戻す。
func (s *Service) SignUp(ctx context.Context, in SignUpInput, client ClientInfo) (*model.User, *model.Session, error) {
	user, err := s.identity.CreateAccount(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		s.metrics.RecordSignUp(signUpResult(err))
		return nil, nil, mapIdentityError("sign up", err)
	}

	session, err := s.createSession(ctx, user.ID, client)
	if err != nil {
		s.rollbackSignUp(ctx, user.ID)
		s.metrics.RecordSignUp("error")
		return nil, nil, err
	}

	s.metrics.RecordSignUp("success")
	return user, session, nil
}

// rollbackSignUp はセッションを持たないまま残ったユーザーを削除する。
// リクエストのキャンセル後も完了させるため、親コンテキストから切り離して実行する。
func (s *Service) rollbackSignUp(ctx context.Context, userID string) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CleanupTimeout)
	defer cancel()

	if err := s.identity.DeleteAccount(rbCtx, userID); err != nil {
		slog.Error("failed to roll back sign up",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// SignIn は資格情報を検証し、新しいセッションを発行する。
// 既存のセッションには影響しない。
func (s *Service) SignIn(ctx context.Context, in SignInInput, client ClientInfo) (*model.User, *model.Session, error) {
	user, err := s.identity.VerifyCredentials(ctx, in.Email, in.Password)
	if err != nil {
		s.metrics.RecordSignIn(signInResult(err))
		return nil, nil, mapIdentityError("sign in", err)
	}

	session, err := s.createSession(ctx, user.ID, client)
	if err != nil {
		s.metrics.RecordSignIn("error")
		return nil, nil, err
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)
	s.metrics.RecordSignIn("success")
	return user, session, nil
}

// SignOut はトークンに対応するセッションを破棄する。
// トークンが空、またはセッションが既に存在しない場合もnilを返す（冪等）。
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	deleted, err := s.sessionRepo.DeleteByTokenHash(ctx, s.hasher.Digest(token))
	if err != nil {
		slog.Error("failed to delete session", slog.String("error", err.Error()))
		return model.NewInfrastructureUnavailableError()
	}

	if deleted {
		s.metrics.RecordSessionRevoked()
	}
	return nil
}

// SignOutAll は指定ユーザーの全セッションを破棄する。
func (s *Service) SignOutAll(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		slog.Error("failed to delete user sessions",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewInfrastructureUnavailableError()
	}

	slog.Info("all sessions revoked", slog.String("user_id", userID))
	return nil
}

// WaitForCleanup はバックグラウンドで実行中のセッション削除の完了を待つ。
// グレースフルシャットダウン時に呼び出す。
func (s *Service) WaitForCleanup() {
	s.cleanupWG.Wait()
}

// createSession はセッションを作成し永続化する。
// 返却するセッションのTokenには生のトークンを設定する。
func (s *Service) createSession(ctx context.Context, userID string, client ClientInfo) (*model.Session, error) {
	token, err := security.GenerateSessionToken()
	if err != nil {
		slog.Error("failed to generate session token", slog.String("error", err.Error()))
		return nil, model.NewInternalError()
	}

	now := s.now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		TokenHash: s.hasher.Digest(token),
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		slog.Error("failed to save session",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInfrastructureUnavailableError()
	}

	s.metrics.RecordSessionCreated()
	return session, nil
}

// mapIdentityError はIdentity Storeのエラーを呼び出し元向けのエラーに変換する。
// APIError以外のエラーはログに記録し、基盤障害エラーに置き換える。
func mapIdentityError(op string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	slog.Error("identity store failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewInfrastructureUnavailableError()
}

func signUpResult(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return "error"
	}
	switch apiErr.Code {
	case model.ErrCodeDuplicateIdentity:
		return "duplicate"
	case model.ErrCodeInvalidCredentialFormat:
		return "invalid_format"
	default:
		return "error"
	}
}

func signInResult(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidCredentials {
		return "invalid_credentials"
	}
	return "error"
}
