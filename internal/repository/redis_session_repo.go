package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/authgate/internal/model"
)

const (
	redisSessionPrefix     = "authgate:session:"
	redisUserSessionPrefix = "authgate:user_sessions:"
)

// redisSessionRecord はRedisに保存するセッションのJSON表現。
type redisSessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッションキーにはExpiresAtまでのTTLを設定し、期限切れレコードはRedisが削除する。
// ユーザー単位の一括削除のため、ユーザーごとにダイジェストの集合を保持する。
type RedisSessionRepo struct {
	client redis.UniversalClient
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{client: client}
}

func sessionKey(tokenHash string) string {
	return redisSessionPrefix + tokenHash
}

func userSessionsKey(userID string) string {
	return redisUserSessionPrefix + userID
}

// Create はセッションを作成する。ExpiresAtが過去の場合はエラーを返す。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: expires_at must be in the future")
	}

	data, err := json.Marshal(redisSessionRecord{
		ID:        session.ID,
		UserID:    session.UserID,
		TokenHash: session.TokenHash,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.TokenHash), data, ttl)
		pipe.SAdd(ctx, userSessionsKey(session.UserID), session.TokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByTokenHash は指定ダイジェストのセッションを取得する。見つからない場合はnilを返す。
func (r *RedisSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rec redisSessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &model.Session{
		ID:        rec.ID,
		UserID:    rec.UserID,
		TokenHash: rec.TokenHash,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
	}, nil
}

// DeleteByTokenHash は指定ダイジェストのセッションを削除する。
// 存在しない場合もエラーにせず、falseを返す。
// 並行する削除と競合した場合は、実際にキーを削除した側のみがtrueを返す。
func (r *RedisSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	session, err := r.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	if session == nil {
		return false, nil
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(tokenHash))
		pipe.SRem(ctx, userSessionsKey(session.UserID), tokenHash)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
// 集合の読み取りと削除の間に作成されたセッションは対象外となる。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	hashes, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}
	if len(hashes) == 0 {
		return nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range hashes {
			pipe.Del(ctx, sessionKey(h))
		}
		pipe.SRem(ctx, userSessionsKey(userID), toAnySlice(hashes)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションの本体をTTLに任せ、
// ユーザー集合に残った失効済みダイジェストのみを掃除する。
// 削除したダイジェスト数を返す。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var deleted int64
	iter := r.client.Scan(ctx, 0, redisUserSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to list user sessions: %w", err)
		}
		for _, h := range hashes {
			n, err := r.client.Exists(ctx, sessionKey(h)).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to check session: %w", err)
			}
			if n == 0 {
				if err := r.client.SRem(ctx, setKey, h).Err(); err != nil {
					return deleted, fmt.Errorf("failed to prune user sessions: %w", err)
				}
				deleted++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan user sessions: %w", err)
	}
	return deleted, nil
}

// Ping はRedisへの疎通を確認する。ヘルスチェック用。
func (r *RedisSessionRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
