package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/genie/internal/model"
)

// PostgresChatRepo はPostgreSQLを使用したチャットリポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

// FindSessionByID は指定IDのセッションをメッセージ付きで取得する。
// 所有者が一致しない場合・見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindSessionByID(ctx context.Context, id, userID string) (*model.ChatSession, error) {
	session := &model.ChatSession{}
	var modelID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, model_id, is_archived, created_at, last_active_at
		 FROM chat_sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(
		&session.ID, &session.UserID, &session.Title, &modelID,
		&session.IsArchived, &session.CreatedAt, &session.LastActiveAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャットセッションの取得に失敗しました: %w", err)
	}
	session.ModelID = nullStringValue(modelID)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, sender, content, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("チャットメッセージの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &model.ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("チャットメッセージの読み取りに失敗しました: %w", err)
		}
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャットメッセージの走査に失敗しました: %w", err)
	}

	return session, nil
}

// ListSessionsByUserID はユーザーのセッション一覧を最終アクティブ降順で返す。
func (r *PostgresChatRepo) ListSessionsByUserID(ctx context.Context, userID string, includeArchived bool) ([]*model.ChatSession, error) {
	query := `SELECT id, user_id, title, model_id, is_archived, created_at, last_active_at
	          FROM chat_sessions WHERE user_id = $1`
	if !includeArchived {
		query += ` AND is_archived = false`
	}
	query += ` ORDER BY last_active_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("チャットセッション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// CreateSession はセッションを作成する。
func (r *PostgresChatRepo) CreateSession(ctx context.Context, session *model.ChatSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, model_id, is_archived, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.UserID, session.Title, nullString(session.ModelID),
		session.IsArchived, session.CreatedAt, session.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("チャットセッションの作成に失敗しました: %w", err)
	}
	return nil
}

// AppendMessage はセッションにメッセージを追記し、last_active_atを更新する。
// 追記と更新は同一トランザクションで行う。
func (r *PostgresChatRepo) AppendMessage(ctx context.Context, message *model.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, sender, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.SessionID, message.Sender, message.Content, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("チャットメッセージの追記に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE chat_sessions SET last_active_at = $2 WHERE id = $1`,
		message.SessionID, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("最終アクティブ日時の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// UpdateTitle はセッションのタイトルを更新する。
func (r *PostgresChatRepo) UpdateTitle(ctx context.Context, id, userID, title string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, title,
	)
	if err != nil {
		return fmt.Errorf("セッションタイトルの更新に失敗しました: %w", err)
	}
	return nil
}

// SetArchived はセッションのアーカイブ状態を設定する。
func (r *PostgresChatRepo) SetArchived(ctx context.Context, id, userID string, archived bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET is_archived = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, archived,
	)
	if err != nil {
		return fmt.Errorf("アーカイブ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteSession はセッションを削除する。メッセージはCASCADE削除される。
func (r *PostgresChatRepo) DeleteSession(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("チャットセッションの削除に失敗しました: %w", err)
	}
	return nil
}

// SearchSessions はタイトルまたはメッセージ本文にキーワードを含む
// セッションを最終アクティブ降順で返す。
func (r *PostgresChatRepo) SearchSessions(ctx context.Context, userID, keyword string) ([]*model.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT s.id, s.user_id, s.title, s.model_id, s.is_archived, s.created_at, s.last_active_at
		 FROM chat_sessions s
		 LEFT JOIN chat_messages m ON s.id = m.session_id
		 WHERE s.user_id = $1
		   AND (s.title ILIKE '%' || $2 || '%' OR m.content ILIKE '%' || $2 || '%')
		 ORDER BY s.last_active_at DESC`,
		userID, keyword,
	)
	if err != nil {
		return nil, fmt.Errorf("チャットセッションの検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// scanSessions はセッション行（メッセージなし）を走査する。
func scanSessions(rows *sql.Rows) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	for rows.Next() {
		session := &model.ChatSession{}
		var modelID sql.NullString
		if err := rows.Scan(
			&session.ID, &session.UserID, &session.Title, &modelID,
			&session.IsArchived, &session.CreatedAt, &session.LastActiveAt,
		); err != nil {
			return nil, fmt.Errorf("チャットセッションの読み取りに失敗しました: %w", err)
		}
		session.ModelID = nullStringValue(modelID)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チャットセッションの走査に失敗しました: %w", err)
	}
	return sessions, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ChatRepository = (*PostgresChatRepo)(nil)
