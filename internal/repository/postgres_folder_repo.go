package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/genie/internal/model"
)

// PostgresFolderRepo はPostgreSQLを使用したフォルダリポジトリ。
type PostgresFolderRepo struct {
	db *sql.DB
}

// NewPostgresFolderRepo はPostgresFolderRepoを生成する。
func NewPostgresFolderRepo(db *sql.DB) *PostgresFolderRepo {
	return &PostgresFolderRepo{db: db}
}

// FindByID は指定IDのフォルダを取得する。
// 所有者が一致しない場合・見つからない場合はnilを返す。
func (r *PostgresFolderRepo) FindByID(ctx context.Context, id, userID string) (*model.Folder, error) {
	folder := &model.Folder{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, sort_order, created_at
		 FROM folders WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.SortOrder, &folder.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フォルダの取得に失敗しました: %w", err)
	}
	return folder, nil
}

// ListByUserID はユーザーのフォルダ一覧をsort_order昇順で返す。
func (r *PostgresFolderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Folder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, sort_order, created_at
		 FROM folders WHERE user_id = $1 ORDER BY sort_order ASC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォルダ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var folders []*model.Folder
	for rows.Next() {
		folder := &model.Folder{}
		if err := rows.Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.SortOrder, &folder.CreatedAt); err != nil {
			return nil, fmt.Errorf("フォルダの読み取りに失敗しました: %w", err)
		}
		folders = append(folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォルダの走査に失敗しました: %w", err)
	}
	return folders, nil
}

// Create はフォルダを作成する。
func (r *PostgresFolderRepo) Create(ctx context.Context, folder *model.Folder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, sort_order, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		folder.ID, folder.UserID, folder.Name, folder.SortOrder, folder.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("フォルダの作成に失敗しました: %w", err)
	}
	return nil
}

// Rename はフォルダ名を変更する。
func (r *PostgresFolderRepo) Rename(ctx context.Context, id, userID, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE folders SET name = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, name,
	)
	if err != nil {
		return fmt.Errorf("フォルダ名の変更に失敗しました: %w", err)
	}
	return nil
}

// Delete はフォルダを削除する。対応付けはCASCADE削除される。
func (r *PostgresFolderRepo) Delete(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM folders WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("フォルダの削除に失敗しました: %w", err)
	}
	return nil
}

// AssignSession はセッションをフォルダに対応付ける。冪等。
func (r *PostgresFolderRepo) AssignSession(ctx context.Context, folderID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_folder_mappings (folder_id, session_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (folder_id, session_id) DO NOTHING`,
		folderID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("フォルダへの対応付けに失敗しました: %w", err)
	}
	return nil
}

// UnassignSession はセッションのフォルダ対応付けを解除する。
func (r *PostgresFolderRepo) UnassignSession(ctx context.Context, folderID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_folder_mappings WHERE folder_id = $1 AND session_id = $2`,
		folderID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("フォルダ対応付けの解除に失敗しました: %w", err)
	}
	return nil
}

// ListSessionIDs はフォルダに対応付けられたセッションIDの一覧を返す。
func (r *PostgresFolderRepo) ListSessionIDs(ctx context.Context, folderID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM chat_folder_mappings WHERE folder_id = $1 ORDER BY created_at ASC`,
		folderID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォルダ内セッションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("セッションIDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セッションIDの走査に失敗しました: %w", err)
	}
	return ids, nil
}

// compile-time interface check
var _ FolderRepository = (*PostgresFolderRepo)(nil)
