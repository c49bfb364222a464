// Package chat はチャットセッションとメッセージの管理機能を提供する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/repository"
	"github.com/hitoshi/genie/internal/security"
)

// autoTitleMaxLen は自動タイトルの最大文字数（超過分は省略記号に置換）。
const autoTitleMaxLen = 30

// Service はチャットセッションのユースケースを提供する。
type Service struct {
	repo      repository.ChatRepository
	sanitizer security.MessageSanitizerService
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ChatRepository, sanitizer security.MessageSanitizerService, logger *slog.Logger) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, logger: logger}
}

// ListSessions はユーザーのセッション一覧を最終アクティブ降順で返す。
func (s *Service) ListSessions(ctx context.Context, userID string, includeArchived bool) ([]*model.ChatSession, error) {
	return s.repo.ListSessionsByUserID(ctx, userID, includeArchived)
}

// GetSession は指定IDのセッションをメッセージ付きで取得する。
func (s *Service) GetSession(ctx context.Context, id, userID string) (*model.ChatSession, error) {
	session, err := s.repo.FindSessionByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(id)
	}
	return session, nil
}

// CreateSession は新しいセッションを作成して返す。
// titleが空の場合は初期タイトルを使用する（最初の発話で自動リネームされる）。
func (s *Service) CreateSession(ctx context.Context, userID, title, modelID string) (*model.ChatSession, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultSessionTitle
	}

	now := time.Now()
	session := &model.ChatSession{
		ID:           uuid.New().String(),
		UserID:       userID,
		Title:        title,
		ModelID:      modelID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("チャットセッションを作成しました",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
	)
	return session, nil
}

// RenameSession はセッションのタイトルを変更する。
func (s *Service) RenameSession(ctx context.Context, id, userID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.NewInvalidTitleError()
	}
	if _, err := s.GetSession(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.UpdateTitle(ctx, id, userID, title)
}

// SetArchived はセッションのアーカイブ状態を設定する。
func (s *Service) SetArchived(ctx context.Context, id, userID string, archived bool) error {
	if _, err := s.GetSession(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.SetArchived(ctx, id, userID, archived)
}

// DeleteSession はセッションと配下のメッセージを削除する。
func (s *Service) DeleteSession(ctx context.Context, id, userID string) error {
	if _, err := s.GetSession(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, id, userID)
}

// SearchSessions はタイトル・本文にキーワードを含むセッションを返す。
// キーワードが空の場合は全セッション一覧を返す。
func (s *Service) SearchSessions(ctx context.Context, userID, keyword string) ([]*model.ChatSession, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.repo.ListSessionsByUserID(ctx, userID, true)
	}
	return s.repo.SearchSessions(ctx, userID, keyword)
}

// SessionMessages はセッションの全メッセージを時系列順で返す。
// クエリパイプラインが会話履歴の構築に使用する。
func (s *Service) SessionMessages(ctx context.Context, sessionID, userID string) ([]model.ChatMessage, error) {
	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	messages := make([]model.ChatMessage, 0, len(session.Messages))
	for _, m := range session.Messages {
		messages = append(messages, *m)
	}
	return messages, nil
}

// AppendMessage はセッションにメッセージを追記する。
// 本文はHTMLタグを除去してから保存する（表示時の再サニタイズに依存しない）。
func (s *Service) AppendMessage(ctx context.Context, sessionID, sender, content string) error {
	if sender != model.SenderUser && sender != model.SenderAssistant {
		return fmt.Errorf("不正な送信者です: %s", sender)
	}

	message := &model.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   s.sanitizer.Sanitize(content),
		CreatedAt: time.Now(),
	}
	return s.repo.AppendMessage(ctx, message)
}

// EnsureAutoTitle はタイトルが初期値のままのセッションに、
// 最初のユーザー発話から導出したタイトルを設定する。
// タイトル変更済みのセッションには何もしない。
func (s *Service) EnsureAutoTitle(ctx context.Context, sessionID, userID, prompt string) error {
	session, err := s.repo.FindSessionByID(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return model.NewSessionNotFoundError(sessionID)
	}
	if session.Title != model.DefaultSessionTitle && strings.TrimSpace(session.Title) != "" {
		return nil
	}

	title := DeriveTitle(prompt)
	return s.repo.UpdateTitle(ctx, sessionID, userID, title)
}

// DeriveTitle はユーザー発話の先頭行からセッションタイトルを導出する。
// 最大30文字で切り詰め、超過時は省略記号を付ける。
func DeriveTitle(prompt string) string {
	line := prompt
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return model.DefaultSessionTitle
	}

	runes := []rune(line)
	if len(runes) > autoTitleMaxLen {
		return string(runes[:autoTitleMaxLen]) + "…"
	}
	return line
}
