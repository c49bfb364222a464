package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/genie/internal/chat"
	"github.com/hitoshi/genie/internal/config"
	"github.com/hitoshi/genie/internal/database"
	"github.com/hitoshi/genie/internal/folder"
	"github.com/hitoshi/genie/internal/gemini"
	"github.com/hitoshi/genie/internal/handler"
	"github.com/hitoshi/genie/internal/logger"
	"github.com/hitoshi/genie/internal/metrics"
	"github.com/hitoshi/genie/internal/middleware"
	"github.com/hitoshi/genie/internal/query"
	"github.com/hitoshi/genie/internal/repository"
	"github.com/hitoshi/genie/internal/security"
	"github.com/hitoshi/genie/internal/source"
	"github.com/hitoshi/genie/internal/worker/identsync"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続（チャット履歴・フォルダ・ユーザー対応表）
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	chatRepo := repository.NewPostgresChatRepo(db)
	folderRepo := repository.NewPostgresFolderRepo(db)
	mappingRepo := repository.NewPostgresUserMappingRepo(db)

	// 3. セキュリティサービスの初期化
	validator := security.NewSQLValidator(slog.Default())
	sanitizer := security.NewMessageSanitizer()

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. データソース層の初期化
	catalog := source.NewCatalog(cfg.SchemaRegistryPath)
	pool := source.NewPool()
	defer pool.Close()

	binder := source.NewBinder(slog.Default(), cfg.SessionBindMode)
	runner := source.NewBoundRunner(pool, binder, slog.Default())
	orchestrator := source.NewOrchestrator(
		catalog, runner, slog.Default(),
		cfg.QueryMaxConcurrent, cfg.SourceQueryTimeout,
	)
	orchestrator.SetMetrics(collector)

	// 6. 生成クライアントの初期化
	// 生成APIは本サービス唯一のインターネットegressのため、
	// エンドポイント検証とSSRF防止付きクライアントを必ず通す
	egressGuard := security.NewEgressGuard()
	if err := egressGuard.ValidateEndpoint(cfg.GeminiEndpoint); err != nil {
		return fmt.Errorf("invalid GEMINI_ENDPOINT: %w", err)
	}

	generator := gemini.NewClient(
		egressGuard.NewSafeClient(cfg.GeminiTimeout),
		slog.Default(),
		cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEndpoint,
	)

	// 7. ドメインサービスの初期化
	chatService := chat.NewService(chatRepo, sanitizer, slog.Default())
	folderService := folder.NewService(folderRepo, slog.Default())
	queryService := query.NewService(
		catalog, validator, sanitizer, generator, orchestrator,
		chatService, slog.Default(), cfg.ChatHistoryLimit,
	)
	queryService.SetMetrics(collector)

	// 8. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.QueryRate = rate.Limit(float64(cfg.RateLimitQuery) / 60.0)
	rateLimiterCfg.QueryBurst = cfg.RateLimitQuery

	deps := &handler.RouterDeps{
		UserMappings:      mappingRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		Logger:            slog.Default(),

		QueryService:   queryService,
		ChatService:    chatService,
		FolderService:  folderService,
		Catalog:        catalog,
		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute, // Gemini呼び出し＋複数ソース実行を跨ぐ
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ディレクトリと人事データベースを照合するユーザー同期ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DirectoryURL == "" || cfg.HRDatabaseURL == "" {
		return fmt.Errorf("worker mode requires DIRECTORY_URL and HR_DATABASE_URL")
	}

	// 1. DB接続（ユーザー対応表の書き込み先）
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 人事データベース接続（読み取り専用）
	hrDB, err := database.Open(cfg.HRDatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open HR database: %w", err)
	}
	defer hrDB.Close()

	slog.Info("database connections established (worker)")

	// 3. 同期ジョブの初期化
	mappingRepo := repository.NewPostgresUserMappingRepo(db)
	directory := identsync.NewDirectoryClient(cfg.DirectoryURL, 30*time.Second)
	hrReader := identsync.NewHRReader(hrDB)

	syncer := identsync.NewSyncer(
		directory, hrReader, mappingRepo, slog.Default(),
		cfg.SyncInterval, cfg.SyncErrorBackoff,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
	)

	// 同期ジョブをメインgoroutineで実行（ブロッキング）
	syncer.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/api/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
