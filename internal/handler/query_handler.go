// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/genie/internal/middleware"
	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/query"
)

// QueryServiceInterface はクエリハンドラーが必要とするサービスインターフェース。
type QueryServiceInterface interface {
	// Query は自然言語リクエストをデータソースに対して処理する。
	Query(ctx context.Context, req query.Request) (*query.Response, error)
	// Chat はデータソースを参照しない一般チャットを処理する。
	Chat(ctx context.Context, req query.Request) (*query.Response, error)
}

// QueryHandler は自然言語クエリのHTTPハンドラー。
type QueryHandler struct {
	service QueryServiceInterface
}

// NewQueryHandler はQueryHandlerを生成する。
func NewQueryHandler(service QueryServiceInterface) *QueryHandler {
	return &QueryHandler{service: service}
}

// queryRequest はクエリリクエストのボディ。
type queryRequest struct {
	Prompt    string   `json:"prompt"`
	SourceIDs []string `json:"source_ids"`
	SessionID string   `json:"session_id,omitempty"`
}

// chatRequest は一般チャットリクエストのボディ。
type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Query は自然言語クエリを処理する。
// POST /api/query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	resp, err := h.service.Query(r.Context(), query.Request{
		Prompt:    req.Prompt,
		SourceIDs: req.SourceIDs,
		SessionID: req.SessionID,
		Identity:  identity,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Chat は一般チャットを処理する。
// POST /api/chat
func (h *QueryHandler) Chat(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	resp, err := h.service.Chat(r.Context(), query.Request{
		Prompt:    req.Prompt,
		SessionID: req.SessionID,
		Identity:  identity,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- ヘルパー関数 ---

// requireIdentity は認証済みIdentityを取得する。未認証の場合は401を書き込み、
// falseを返す。
func requireIdentity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	identity := middleware.IdentityFromContext(r.Context())
	if !identity.Authenticated {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return model.Identity{}, false
	}
	return identity, true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeInvalidRequestBody はリクエストボディ解析エラーのレスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeEmptyPrompt, model.ErrCodeNoSources, model.ErrCodeInvalidTitle:
		return http.StatusBadRequest
	case model.ErrCodeSessionNotFound, model.ErrCodeFolderNotFound:
		return http.StatusNotFound
	case model.ErrCodeSchemaReload:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
