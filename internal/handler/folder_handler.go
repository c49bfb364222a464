package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/genie/internal/model"
)

// FolderServiceInterface はフォルダハンドラーが必要とするサービスインターフェース。
type FolderServiceInterface interface {
	// List はユーザーのフォルダ一覧を返す。
	List(ctx context.Context, userID string) ([]*model.Folder, error)
	// Create は新しいフォルダを作成する。
	Create(ctx context.Context, userID, name string, sortOrder int) (*model.Folder, error)
	// Rename はフォルダ名を変更する。
	Rename(ctx context.Context, id, userID, name string) error
	// Delete はフォルダを削除する。
	Delete(ctx context.Context, id, userID string) error
	// AssignSession はセッションをフォルダに入れる。
	AssignSession(ctx context.Context, folderID, userID, sessionID string) error
	// UnassignSession はセッションをフォルダから出す。
	UnassignSession(ctx context.Context, folderID, userID, sessionID string) error
	// SessionIDs はフォルダ内のセッションID一覧を返す。
	SessionIDs(ctx context.Context, folderID, userID string) ([]string, error)
}

// FolderHandler はフォルダ管理のHTTPハンドラー。
type FolderHandler struct {
	service FolderServiceInterface
}

// NewFolderHandler はFolderHandlerを生成する。
func NewFolderHandler(service FolderServiceInterface) *FolderHandler {
	return &FolderHandler{service: service}
}

// folderRequest はフォルダ作成・リネームリクエストのボディ。
type folderRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order,omitempty"`
}

// assignSessionRequest はセッション割り当てリクエストのボディ。
type assignSessionRequest struct {
	SessionID string `json:"session_id"`
}

// folderResponse はフォルダ情報のAPIレスポンス。
type folderResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFolders はフォルダ一覧を返す。
// GET /api/folders
func (h *FolderHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	folders, err := h.service.List(r.Context(), identity.PrincipalID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]folderResponse, 0, len(folders))
	for _, f := range folders {
		responses = append(responses, toFolderResponse(f))
	}
	writeJSON(w, http.StatusOK, responses)
}

// CreateFolder は新しいフォルダを作成する。
// POST /api/folders
func (h *FolderHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	folder, err := h.service.Create(r.Context(), identity.PrincipalID, req.Name, req.SortOrder)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFolderResponse(folder))
}

// RenameFolder はフォルダ名を変更する。
// PATCH /api/folders/:id
func (h *FolderHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.Rename(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID, req.Name); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteFolder はフォルダを削除する。中のセッション自体は削除されない。
// DELETE /api/folders/:id
func (h *FolderHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AssignSession はセッションをフォルダに入れる。冪等。
// POST /api/folders/:id/sessions
func (h *FolderHandler) AssignSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req assignSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.AssignSession(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID, req.SessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnassignSession はセッションをフォルダから出す。
// DELETE /api/folders/:id/sessions/:sessionID
func (h *FolderHandler) UnassignSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.UnassignSession(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID, chi.URLParam(r, "sessionID")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListFolderSessions はフォルダ内のセッションID一覧を返す。
// GET /api/folders/:id/sessions
func (h *FolderHandler) ListFolderSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sessionIDs, err := h.service.SessionIDs(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"session_ids": sessionIDs})
}

// toFolderResponse はmodel.FolderからAPIレスポンスに変換する。
func toFolderResponse(folder *model.Folder) folderResponse {
	return folderResponse{
		ID:        folder.ID,
		Name:      folder.Name,
		SortOrder: folder.SortOrder,
		CreatedAt: folder.CreatedAt,
	}
}
