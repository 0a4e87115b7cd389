package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/authgate/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したaccountリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByUserIDAndProvider はuser_idとprovider_idでaccountを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUserIDAndProvider(ctx context.Context, userID, providerID string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider_id, password_hash, created_at, updated_at
		 FROM accounts
		 WHERE user_id = $1 AND provider_id = $2`,
		userID, providerID,
	).Scan(&account.ID, &account.UserID, &account.ProviderID, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	return account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
