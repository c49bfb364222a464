package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/genie/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	// ListSessions はユーザーのセッション一覧を返す。
	ListSessions(ctx context.Context, userID string, includeArchived bool) ([]*model.ChatSession, error)
	// GetSession はセッションをメッセージ付きで取得する。
	GetSession(ctx context.Context, id, userID string) (*model.ChatSession, error)
	// CreateSession は新しいセッションを作成する。
	CreateSession(ctx context.Context, userID, title, modelID string) (*model.ChatSession, error)
	// RenameSession はセッションのタイトルを変更する。
	RenameSession(ctx context.Context, id, userID, title string) error
	// SetArchived はセッションのアーカイブ状態を設定する。
	SetArchived(ctx context.Context, id, userID string, archived bool) error
	// DeleteSession はセッションを削除する。
	DeleteSession(ctx context.Context, id, userID string) error
	// SearchSessions はキーワードでセッションを検索する。
	SearchSessions(ctx context.Context, userID, keyword string) ([]*model.ChatSession, error)
}

// ChatHandler はチャットセッション管理のHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// createSessionRequest はセッション作成リクエストのボディ。
type createSessionRequest struct {
	Title   string `json:"title,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// renameSessionRequest はセッションリネームリクエストのボディ。
type renameSessionRequest struct {
	Title string `json:"title"`
}

// archiveSessionRequest はアーカイブ状態変更リクエストのボディ。
type archiveSessionRequest struct {
	Archived bool `json:"archived"`
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	ModelID      string            `json:"model_id,omitempty"`
	IsArchived   bool              `json:"is_archived"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActiveAt time.Time         `json:"last_active_at"`
	Messages     []messageResponse `json:"messages,omitempty"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListSessions はセッション一覧を返す。
// GET /api/sessions?include_archived=true
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"

	sessions, err := h.service.ListSessions(r.Context(), identity.PrincipalID, includeArchived)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponses(sessions))
}

// GetSession はセッション詳細をメッセージ付きで返す。
// GET /api/sessions/:id
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// CreateSession は新しいセッションを作成する。
// POST /api/sessions
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	session, err := h.service.CreateSession(r.Context(), identity.PrincipalID, req.Title, req.ModelID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// RenameSession はセッションのタイトルを変更する。
// PATCH /api/sessions/:id
func (h *ChatHandler) RenameSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.RenameSession(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID, req.Title); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetArchived はセッションのアーカイブ状態を変更する。
// PUT /api/sessions/:id/archive
func (h *ChatHandler) SetArchived(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req archiveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.SetArchived(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID, req.Archived); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession はセッションと配下のメッセージを削除する。
// DELETE /api/sessions/:id
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSession(r.Context(), chi.URLParam(r, "id"), identity.PrincipalID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SearchSessions はキーワードでセッションを検索する。
// GET /api/sessions/search?q=keyword
func (h *ChatHandler) SearchSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sessions, err := h.service.SearchSessions(r.Context(), identity.PrincipalID, r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponses(sessions))
}

// toSessionResponse はmodel.ChatSessionからAPIレスポンスに変換する。
func toSessionResponse(session *model.ChatSession) sessionResponse {
	resp := sessionResponse{
		ID:           session.ID,
		Title:        session.Title,
		ModelID:      session.ModelID,
		IsArchived:   session.IsArchived,
		CreatedAt:    session.CreatedAt,
		LastActiveAt: session.LastActiveAt,
	}
	for _, m := range session.Messages {
		resp.Messages = append(resp.Messages, messageResponse{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return resp
}

func toSessionResponses(sessions []*model.ChatSession) []sessionResponse {
	responses := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, toSessionResponse(s))
	}
	return responses
}
