package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/genie/internal/model"
)

// PostgresUserMappingRepo はPostgreSQLを使用したユーザー対応表リポジトリ。
type PostgresUserMappingRepo struct {
	db *sql.DB
}

// NewPostgresUserMappingRepo はPostgresUserMappingRepoを生成する。
func NewPostgresUserMappingRepo(db *sql.DB) *PostgresUserMappingRepo {
	return &PostgresUserMappingRepo{db: db}
}

// FindByAccountName はアカウント名で対応を検索する。
// 無効化済み・見つからない場合はnilを返す。
func (r *PostgresUserMappingRepo) FindByAccountName(ctx context.Context, accountName string) (*model.UserMapping, error) {
	mapping := &model.UserMapping{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_name, email, display_name, employee_id, is_active, last_synced_at, created_at
		 FROM user_mappings WHERE account_name = $1 AND is_active = true`,
		accountName,
	).Scan(
		&mapping.ID, &mapping.AccountName, &mapping.Email, &mapping.DisplayName,
		&mapping.EmployeeID, &mapping.IsActive, &mapping.LastSyncedAt, &mapping.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー対応の検索に失敗しました: %w", err)
	}
	return mapping, nil
}

// Upsert は対応をアカウント名をキーに冪等にUPSERTする。
func (r *PostgresUserMappingRepo) Upsert(ctx context.Context, mapping *model.UserMapping) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_mappings (id, account_name, email, display_name, employee_id, is_active, last_synced_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (account_name) DO UPDATE SET
		    email = EXCLUDED.email,
		    display_name = EXCLUDED.display_name,
		    employee_id = EXCLUDED.employee_id,
		    is_active = EXCLUDED.is_active,
		    last_synced_at = EXCLUDED.last_synced_at`,
		mapping.ID, mapping.AccountName, mapping.Email, mapping.DisplayName,
		mapping.EmployeeID, mapping.IsActive, mapping.LastSyncedAt, mapping.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザー対応のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// DeactivateNotSyncedSince は指定時刻より前に同期された対応を無効化し、件数を返す。
func (r *PostgresUserMappingRepo) DeactivateNotSyncedSince(ctx context.Context, threshold time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_mappings SET is_active = false
		 WHERE is_active = true AND last_synced_at < $1`,
		threshold,
	)
	if err != nil {
		return 0, fmt.Errorf("ユーザー対応の無効化に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("無効化件数の取得に失敗しました: %w", err)
	}
	return int(affected), nil
}

// CountActive は有効な対応の件数を返す。
func (r *PostgresUserMappingRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_mappings WHERE is_active = true`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("有効な対応の件数取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ UserMappingRepository = (*PostgresUserMappingRepo)(nil)
