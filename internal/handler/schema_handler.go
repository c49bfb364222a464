package handler

import (
	"net/http"

	"github.com/hitoshi/genie/internal/middleware"
	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/source"
)

// SchemaCatalogInterface はスキーマハンドラーが必要とするカタログインターフェース。
type SchemaCatalogInterface interface {
	// Descriptors は全データソースのスキーマ記述子を返す。
	Descriptors() ([]*source.SourceDescriptor, error)
	// Reload はレジストリファイルを再読み込みする。
	Reload() error
}

// SchemaHandler はスキーマレジストリのHTTPハンドラー。
type SchemaHandler struct {
	catalog SchemaCatalogInterface
}

// NewSchemaHandler はSchemaHandlerを生成する。
func NewSchemaHandler(catalog SchemaCatalogInterface) *SchemaHandler {
	return &SchemaHandler{catalog: catalog}
}

// sourceResponse はデータソース情報のAPIレスポンス。
// 接続情報（環境変数名）はクライアントに公開しない。
type sourceResponse struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Entities []source.EntitySchema `json:"entities"`
}

// ListSources はデータソースのスキーマ一覧を返す。
// GET /api/schema
func (h *SchemaHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	descriptors, err := h.catalog.Descriptors()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]sourceResponse, 0, len(descriptors))
	for _, d := range descriptors {
		responses = append(responses, sourceResponse{
			ID:       d.ID,
			Name:     d.Name,
			Entities: d.Entities,
		})
	}
	writeJSON(w, http.StatusOK, responses)
}

// ReloadSources はスキーマレジストリを再読み込みする。
// 失敗した場合、既存のキャッシュは維持される。
// POST /api/schema/reload
func (h *SchemaHandler) ReloadSources(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	if err := h.catalog.Reload(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     model.ErrCodeSchemaReload,
			Message:  "スキーマレジストリの再読み込みに失敗しました。既存の定義で運用を継続します。",
			Category: "system",
			Action:   "レジストリファイルの内容を確認してください。",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Whoami はゲートキーパーが解決したIdentityを返す。
// GET /api/whoami
func Whoami(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": identity.Authenticated,
		"employee_id":   identity.EmployeeID,
		"email":         identity.Email,
		"account_name":  identity.AccountName,
	})
}

// Health はサービスの稼働確認に応答する。認証不要。
// GET /api/health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
