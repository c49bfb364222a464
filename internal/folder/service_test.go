package folder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/genie/internal/model"
)

// fakeFolderRepo はFolderRepositoryのインメモリ実装。
type fakeFolderRepo struct {
	folders  map[string]*model.Folder
	mappings map[string][]string
}

func newFakeFolderRepo() *fakeFolderRepo {
	return &fakeFolderRepo{
		folders:  make(map[string]*model.Folder),
		mappings: make(map[string][]string),
	}
}

func (f *fakeFolderRepo) FindByID(ctx context.Context, id, userID string) (*model.Folder, error) {
	folder, ok := f.folders[id]
	if !ok || folder.UserID != userID {
		return nil, nil
	}
	return folder, nil
}

func (f *fakeFolderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Folder, error) {
	var out []*model.Folder
	for _, folder := range f.folders {
		if folder.UserID == userID {
			out = append(out, folder)
		}
	}
	return out, nil
}

func (f *fakeFolderRepo) Create(ctx context.Context, folder *model.Folder) error {
	f.folders[folder.ID] = folder
	return nil
}

func (f *fakeFolderRepo) Rename(ctx context.Context, id, userID, name string) error {
	if folder, ok := f.folders[id]; ok && folder.UserID == userID {
		folder.Name = name
	}
	return nil
}

func (f *fakeFolderRepo) Delete(ctx context.Context, id, userID string) error {
	delete(f.folders, id)
	delete(f.mappings, id)
	return nil
}

func (f *fakeFolderRepo) AssignSession(ctx context.Context, folderID, sessionID string) error {
	for _, id := range f.mappings[folderID] {
		if id == sessionID {
			return nil
		}
	}
	f.mappings[folderID] = append(f.mappings[folderID], sessionID)
	return nil
}

func (f *fakeFolderRepo) UnassignSession(ctx context.Context, folderID, sessionID string) error {
	ids := f.mappings[folderID]
	for i, id := range ids {
		if id == sessionID {
			f.mappings[folderID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeFolderRepo) ListSessionIDs(ctx context.Context, folderID string) ([]string, error) {
	return f.mappings[folderID], nil
}

func newTestService() *Service {
	return NewService(newFakeFolderRepo(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreate(t *testing.T) {
	s := newTestService()

	folder, err := s.Create(context.Background(), "0009", "営業チーム", 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if folder.ID == "" {
		t.Error("ID is empty, want UUID")
	}
	if folder.Name != "営業チーム" {
		t.Errorf("Name = %q, want %q", folder.Name, "営業チーム")
	}
}

func TestCreate_EmptyName(t *testing.T) {
	s := newTestService()

	_, err := s.Create(context.Background(), "0009", "  ", 0)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidTitle {
		t.Errorf("error = %v, want INVALID_TITLE", err)
	}
}

func TestRename_NotFound(t *testing.T) {
	s := newTestService()

	err := s.Rename(context.Background(), "no-such-folder", "0009", "新しい名前")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFolderNotFound {
		t.Errorf("error = %v, want FOLDER_NOT_FOUND", err)
	}
}

// TestAssignSession_OtherUser は他ユーザーのフォルダへの対応付けが
// 拒否されることを検証する。
func TestAssignSession_OtherUser(t *testing.T) {
	s := newTestService()
	folder, _ := s.Create(context.Background(), "0009", "営業", 0)

	err := s.AssignSession(context.Background(), folder.ID, "0010", "sess-1")
	if err == nil {
		t.Error("他ユーザーからの対応付けが成功した（所有者チェックがない）")
	}
}

func TestAssignSession_Idempotent(t *testing.T) {
	s := newTestService()
	folder, _ := s.Create(context.Background(), "0009", "営業", 0)

	for i := 0; i < 2; i++ {
		if err := s.AssignSession(context.Background(), folder.ID, "0009", "sess-1"); err != nil {
			t.Fatalf("AssignSession() error = %v", err)
		}
	}

	ids, err := s.SessionIDs(context.Background(), folder.ID, "0009")
	if err != nil {
		t.Fatalf("SessionIDs() error = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("セッション数 = %d, want 1（冪等であること）", len(ids))
	}
}

func TestUnassignSession(t *testing.T) {
	s := newTestService()
	folder, _ := s.Create(context.Background(), "0009", "営業", 0)
	s.AssignSession(context.Background(), folder.ID, "0009", "sess-1")

	if err := s.UnassignSession(context.Background(), folder.ID, "0009", "sess-1"); err != nil {
		t.Fatalf("UnassignSession() error = %v", err)
	}

	ids, _ := s.SessionIDs(context.Background(), folder.ID, "0009")
	if len(ids) != 0 {
		t.Errorf("セッション数 = %d, want 0", len(ids))
	}
}
