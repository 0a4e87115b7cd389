package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/authgate/internal/model"
)

// MemorySessionRepo はプロセス内メモリを使用したセッションリポジトリ。
// 単一プロセス構成やテストで使用する。プロセス再起動で全セッションが失われる。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session // key: TokenHash
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.Session),
	}
}

// Create はセッションを作成する。同一ダイジェストが既に存在する場合はエラーを返す。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.TokenHash]; exists {
		return fmt.Errorf("failed to create session: token hash already exists")
	}

	stored := *session
	stored.Token = ""
	r.sessions[session.TokenHash] = stored
	return nil
}

// FindByTokenHash は指定ダイジェストのセッションのコピーを返す。見つからない場合はnilを返す。
func (r *MemorySessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

// DeleteByTokenHash は指定ダイジェストのセッションを削除する。
func (r *MemorySessionRepo) DeleteByTokenHash(_ context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[tokenHash]; !ok {
		return false, nil
	}
	delete(r.sessions, tokenHash)
	return true, nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *MemorySessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, hash)
		}
	}
	return nil
}

// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, s := range r.sessions {
		if s.IsExpired(now) {
			delete(r.sessions, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Count は保持しているセッション数を返す。テスト用。
func (r *MemorySessionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
