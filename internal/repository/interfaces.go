// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/genie/internal/model"
)

// ChatRepository はチャットセッションとメッセージの永続化インターフェース。
type ChatRepository interface {
	// FindSessionByID は指定IDのセッションをメッセージ付きで取得する。
	// 所有者が一致しない場合・見つからない場合はnilを返す。
	FindSessionByID(ctx context.Context, id, userID string) (*model.ChatSession, error)

	// ListSessionsByUserID はユーザーのセッション一覧を最終アクティブ降順で返す。
	// includeArchivedがfalseの場合、アーカイブ済みセッションは除外する。
	// メッセージ本文は含まない。
	ListSessionsByUserID(ctx context.Context, userID string, includeArchived bool) ([]*model.ChatSession, error)

	// CreateSession はセッションを作成する。
	CreateSession(ctx context.Context, session *model.ChatSession) error

	// AppendMessage はセッションにメッセージを追記し、
	// セッションのlast_active_atを更新する。
	AppendMessage(ctx context.Context, message *model.ChatMessage) error

	// UpdateTitle はセッションのタイトルを更新する。
	UpdateTitle(ctx context.Context, id, userID, title string) error

	// SetArchived はセッションのアーカイブ状態を設定する。
	SetArchived(ctx context.Context, id, userID string, archived bool) error

	// DeleteSession はセッションを削除する。メッセージはCASCADE削除される。
	DeleteSession(ctx context.Context, id, userID string) error

	// SearchSessions はタイトルまたはメッセージ本文にキーワードを含む
	// セッションを最終アクティブ降順で返す。
	SearchSessions(ctx context.Context, userID, keyword string) ([]*model.ChatSession, error)
}

// FolderRepository はチャット整理用フォルダの永続化インターフェース。
type FolderRepository interface {
	// FindByID は指定IDのフォルダを取得する。
	// 所有者が一致しない場合・見つからない場合はnilを返す。
	FindByID(ctx context.Context, id, userID string) (*model.Folder, error)

	// ListByUserID はユーザーのフォルダ一覧をsort_order昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Folder, error)

	// Create はフォルダを作成する。
	Create(ctx context.Context, folder *model.Folder) error

	// Rename はフォルダ名を変更する。
	Rename(ctx context.Context, id, userID, name string) error

	// Delete はフォルダを削除する。セッションとの対応付けはCASCADE削除され、
	// セッション自体は削除されない。
	Delete(ctx context.Context, id, userID string) error

	// AssignSession はセッションをフォルダに対応付ける。冪等。
	AssignSession(ctx context.Context, folderID, sessionID string) error

	// UnassignSession はセッションのフォルダ対応付けを解除する。
	UnassignSession(ctx context.Context, folderID, sessionID string) error

	// ListSessionIDs はフォルダに対応付けられたセッションIDの一覧を返す。
	ListSessionIDs(ctx context.Context, folderID string) ([]string, error)
}

// UserMappingRepository はWindowsアカウントと社員属性の対応表の
// 永続化インターフェース。ゲートキーパーの識別解決と同期ジョブが使用する。
type UserMappingRepository interface {
	// FindByAccountName はアカウント名で対応を検索する。
	// 無効化済み・見つからない場合はnilを返す。
	FindByAccountName(ctx context.Context, accountName string) (*model.UserMapping, error)

	// Upsert は対応をアカウント名をキーに冪等にUPSERTする。
	Upsert(ctx context.Context, mapping *model.UserMapping) error

	// DeactivateNotSyncedSince は指定時刻より前に同期された対応を無効化し、
	// 無効化した件数を返す。同期ジョブが離職者の対応を落とすために使う。
	DeactivateNotSyncedSince(ctx context.Context, threshold time.Time) (int, error)

	// CountActive は有効な対応の件数を返す。
	CountActive(ctx context.Context) (int, error)
}
