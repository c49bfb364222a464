// Package folder はチャットセッションを整理するフォルダ機能を提供する。
package folder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/repository"
)

// Service はフォルダのユースケースを提供する。
type Service struct {
	repo   repository.FolderRepository
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.FolderRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List はユーザーのフォルダ一覧を表示順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Folder, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// Create は新しいフォルダを作成して返す。
func (s *Service) Create(ctx context.Context, userID, name string, sortOrder int) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewInvalidTitleError()
	}

	folder := &model.Folder{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		SortOrder: sortOrder,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, folder); err != nil {
		return nil, err
	}

	s.logger.Info("フォルダを作成しました",
		slog.String("folder_id", folder.ID),
		slog.String("user_id", userID),
	)
	return folder, nil
}

// Rename はフォルダ名を変更する。
func (s *Service) Rename(ctx context.Context, id, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.NewInvalidTitleError()
	}
	if err := s.ensureExists(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Rename(ctx, id, userID, name)
}

// Delete はフォルダを削除する。中のセッション自体は削除されない。
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if err := s.ensureExists(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id, userID)
}

// AssignSession はセッションをフォルダに入れる。冪等。
func (s *Service) AssignSession(ctx context.Context, folderID, userID, sessionID string) error {
	if err := s.ensureExists(ctx, folderID, userID); err != nil {
		return err
	}
	return s.repo.AssignSession(ctx, folderID, sessionID)
}

// UnassignSession はセッションをフォルダから出す。
func (s *Service) UnassignSession(ctx context.Context, folderID, userID, sessionID string) error {
	if err := s.ensureExists(ctx, folderID, userID); err != nil {
		return err
	}
	return s.repo.UnassignSession(ctx, folderID, sessionID)
}

// SessionIDs はフォルダ内のセッションID一覧を返す。
func (s *Service) SessionIDs(ctx context.Context, folderID, userID string) ([]string, error) {
	if err := s.ensureExists(ctx, folderID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListSessionIDs(ctx, folderID)
}

func (s *Service) ensureExists(ctx context.Context, id, userID string) error {
	folder, err := s.repo.FindByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if folder == nil {
		return model.NewFolderNotFoundError(id)
	}
	return nil
}
