package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/authgate/internal/metrics"
	"github.com/hitoshi/authgate/internal/model"
)

// Resolve はトークンからリクエストの認証状態を判定する。
//
// 判定手順:
//  1. トークンが空ならUnauthenticated
//  2. ダイジェストでセッションを検索し、無ければUnauthenticated
//  3. 期限切れならUnauthenticated（レコードはバックグラウンドで削除）
//  4. 所有ユーザーが存在しなければUnauthenticated（同上）
//  5. それ以外はAuthenticated
//
// ストア障害時はUnauthenticatedとINFRASTRUCTURE_UNAVAILABLEのAPIErrorを返す。
// 期限切れレコードの削除以外に副作用はなく、同じトークンで何度呼んでも結果は変わらない。
func (s *Service) Resolve(ctx context.Context, token string) (model.AuthResult, error) {
	if token == "" {
		return s.unauthenticated(), nil
	}

	tokenHash := s.hasher.Digest(token)

	session, err := s.sessionRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return s.infrastructureFailure("failed to find session", err)
	}
	if session == nil {
		return s.unauthenticated(), nil
	}

	if session.IsExpired(s.now()) {
		s.purgeInBackground(ctx, tokenHash, "expired")
		return s.unauthenticated(), nil
	}

	user, err := s.identity.FindUser(ctx, session.UserID)
	if err != nil {
		return s.infrastructureFailure("failed to find session owner", err)
	}
	if user == nil {
		s.purgeInBackground(ctx, tokenHash, "owner_missing")
		return s.unauthenticated(), nil
	}

	session.Token = token
	s.metrics.RecordAuthDecision(metrics.OutcomeAuthenticated)
	return model.NewAuthenticated(user, session), nil
}

func (s *Service) unauthenticated() model.AuthResult {
	s.metrics.RecordAuthDecision(metrics.OutcomeUnauthenticated)
	return model.UnauthenticatedResult()
}

func (s *Service) infrastructureFailure(msg string, err error) (model.AuthResult, error) {
	slog.Error(msg, slog.String("error", err.Error()))
	s.metrics.RecordAuthDecision(metrics.OutcomeError)
	return model.UnauthenticatedResult(), model.NewInfrastructureUnavailableError()
}

// purgeInBackground は無効なセッションを非同期に削除する。
// リクエストのキャンセルに影響されないよう、親コンテキストから切り離して実行する。
// 削除の失敗はログに記録するのみで、判定結果には影響しない。
func (s *Service) purgeInBackground(ctx context.Context, tokenHash, reason string) {
	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()

		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CleanupTimeout)
		defer cancel()

		deleted, err := s.sessionRepo.DeleteByTokenHash(bgCtx, tokenHash)
		if err != nil {
			slog.Warn("failed to purge invalid session",
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			return
		}
		if deleted {
			s.metrics.RecordSessionsPurged(1)
		}
	}()
}
