package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/genie/internal/middleware"
	"github.com/hitoshi/genie/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserMappings      repository.UserMappingRepository
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// クエリ
	QueryService QueryServiceInterface

	// チャット
	ChatService ChatServiceInterface

	// フォルダ
	FolderService FolderServiceInterface

	// スキーマレジストリ
	Catalog SchemaCatalogInterface

	// Prometheusスクレイプ用ハンドラー（nilの場合 /metrics は公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → LoggingMiddleware → GatekeeperMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// ヘルスチェック（/api/health）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewGatekeeperMiddleware(deps.UserMappings, deps.Logger))

	queryHandler := NewQueryHandler(deps.QueryService)
	chatHandler := NewChatHandler(deps.ChatService)
	folderHandler := NewFolderHandler(deps.FolderService)
	schemaHandler := NewSchemaHandler(deps.Catalog)

	// --- レート制限の外のルート ---

	r.Get("/api/health", Health)
	r.Get("/api/whoami", Whoami)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- レート制限下のルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 自然言語クエリ（クエリ専用レート制限を追加）
		r.With(deps.RateLimiter.QueryMiddleware()).Post("/api/query", queryHandler.Query)
		r.With(deps.RateLimiter.QueryMiddleware()).Post("/api/chat", queryHandler.Chat)

		// チャットセッション管理
		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", chatHandler.ListSessions)
			r.Post("/", chatHandler.CreateSession)
			r.Get("/search", chatHandler.SearchSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", chatHandler.GetSession)
				r.Patch("/", chatHandler.RenameSession)
				r.Delete("/", chatHandler.DeleteSession)
				r.Put("/archive", chatHandler.SetArchived)
			})
		})

		// フォルダ管理
		r.Route("/api/folders", func(r chi.Router) {
			r.Get("/", folderHandler.ListFolders)
			r.Post("/", folderHandler.CreateFolder)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", folderHandler.RenameFolder)
				r.Delete("/", folderHandler.DeleteFolder)
				r.Get("/sessions", folderHandler.ListFolderSessions)
				r.Post("/sessions", folderHandler.AssignSession)
				r.Delete("/sessions/{sessionID}", folderHandler.UnassignSession)
			})
		})

		// スキーマレジストリ
		r.Route("/api/schema", func(r chi.Router) {
			r.Get("/", schemaHandler.ListSources)
			r.Post("/reload", schemaHandler.ReloadSources)
		})
	})

	return r
}
