package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/genie/internal/gemini"
	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/security"
	"github.com/hitoshi/genie/internal/source"
)

// Request は自然言語クエリリクエストを表す。
type Request struct {
	Prompt    string
	SourceIDs []string
	SessionID string
	Identity  model.Identity
}

// Data はクエリ実行結果のデータ部分。
// Rowsはソース IDをキーとするマップで、順序に意味はない。
type Data struct {
	Rows           map[string][]source.Row `json:"rows,omitempty"`
	TotalRows      int                     `json:"totalRows"`
	GeneratedQuery string                  `json:"generatedQuery,omitempty"`
}

// Metadata はクエリ実行のメタ情報。
type Metadata struct {
	SourcesQueried  int      `json:"sourcesQueried"`
	SourcesFailed   []string `json:"sourcesFailed,omitempty"`
	ExecutionTimeMs float64  `json:"executionTimeMs"`
}

// Response は呼び出し元に返す応答。
// 部分的なソース失敗はSuccess=trueの応答の内側で報告される。
// Degradedは生成サービスに到達できず劣化応答を返したことを明示する。
type Response struct {
	Success            bool     `json:"success"`
	Data               *Data    `json:"data,omitempty"`
	Message            string   `json:"message,omitempty"`
	NeedsClarification bool     `json:"needsClarification"`
	Degraded           bool     `json:"degraded,omitempty"`
	Metadata           Metadata `json:"metadata"`
}

// Generator はコンテンツ生成のインターフェース（gemini.Clientの部分集合）。
type Generator interface {
	GenerateContent(ctx context.Context, contents []gemini.Content) *gemini.Response
}

// Executor は並列クエリ実行のインターフェース（source.Orchestratorの部分集合）。
type Executor interface {
	Execute(ctx context.Context, sourceIDs []string, sqlText string, identity model.Identity) (*source.AggregatedResult, error)
}

// MetricsRecorder はクエリパイプラインのメトリクス記録インターフェース。
// nilの場合、記録はスキップされる。
type MetricsRecorder interface {
	RecordQuerySuccess()
	RecordQueryDegraded()
	RecordValidationReject(reason string)
	RecordGenerationLatency(duration time.Duration)
}

// HistoryStore はチャット履歴の読み書きインターフェース。
// nilの場合、履歴参照とターン永続化はスキップされる。
type HistoryStore interface {
	// SessionMessages はセッションの全メッセージを返す。
	SessionMessages(ctx context.Context, sessionID, userID string) ([]model.ChatMessage, error)
	// AppendMessage はセッションに1メッセージを追記する。
	AppendMessage(ctx context.Context, sessionID, sender, content string) error
	// EnsureAutoTitle はタイトルが初期値のままのセッションに
	// プロンプト由来のタイトルを設定する。
	EnsureAutoTitle(ctx context.Context, sessionID, userID, prompt string) error
}

// Service は自然言語クエリのパイプライン全体を調停する。
// 状態遷移: 受理 → コンテキスト構築 → 生成 → {検証 → 実行 → 集約} /
// {拒否 → エラー応答} / {クエリなし → 確認応答}。
type Service struct {
	catalog      *source.Catalog
	validator    security.SQLValidatorService
	sanitizer    security.MessageSanitizerService
	generator    Generator
	executor     Executor
	history      HistoryStore
	logger       *slog.Logger
	historyLimit int
	metrics      MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	catalog *source.Catalog,
	validator security.SQLValidatorService,
	sanitizer security.MessageSanitizerService,
	generator Generator,
	executor Executor,
	history HistoryStore,
	logger *slog.Logger,
	historyLimit int,
) *Service {
	return &Service{
		catalog:      catalog,
		validator:    validator,
		sanitizer:    sanitizer,
		generator:    generator,
		executor:     executor,
		history:      history,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// SetMetrics はメトリクス記録先を設定する。未設定の場合は記録しない。
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// generate は生成APIを呼び出し、レイテンシを記録する。
func (s *Service) generate(ctx context.Context, contents []gemini.Content) *gemini.Response {
	genStart := time.Now()
	genResp := s.generator.GenerateContent(ctx, contents)
	if s.metrics != nil {
		s.metrics.RecordGenerationLatency(time.Since(genStart))
	}
	return genResp
}

// Query は1件の自然言語リクエストを処理して応答を返す。
// エラーを返すのはリクエスト前提条件の違反（空プロンプト・ソース未指定）のみで、
// 生成失敗・検証拒否・ソース失敗はすべて応答の内側で表現される。
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if isBlank(req.Prompt) {
		return nil, model.NewEmptyPromptError()
	}
	if len(req.SourceIDs) == 0 {
		return nil, model.NewNoSourcesError()
	}

	s.logger.Info("クエリリクエストを処理します",
		slog.String("employee_id", req.Identity.EmployeeID),
		slog.Int("sources", len(req.SourceIDs)),
	)

	// コンテキスト構築: 対象ソースのスキーマと直近の会話履歴
	descriptors := s.resolveDescriptors(req.SourceIDs)
	history := s.loadHistory(ctx, req)
	contents := BuildQueryPrompt(req.Prompt, descriptors, history)

	// 生成
	genResp := s.generate(ctx, contents)
	if !genResp.Success {
		// 生成不能: 検証をスキップした実行は決して行わず、
		// 劣化応答であることを明示して終端する
		if s.metrics != nil {
			s.metrics.RecordQueryDegraded()
		}
		resp := &Response{
			Success:  true,
			Message:  "現在、AIサービスに接続できません。しばらくしてから再度お試しください。",
			Degraded: true,
			Metadata: Metadata{ExecutionTimeMs: msSince(start)},
		}
		s.persistTurns(ctx, req, resp.Message)
		return resp, nil
	}

	// クエリ抽出
	sqlText := ExtractSQL(genResp.Text)
	if sqlText == "" {
		// クエリなし: 直接回答または確認質問として終端する
		resp := &Response{
			Success:            true,
			Message:            s.sanitizer.Sanitize(FormatAnswer(genResp.Text)),
			NeedsClarification: IsClarification(genResp.Text),
			Metadata:           Metadata{ExecutionTimeMs: msSince(start)},
		}
		s.persistTurns(ctx, req, resp.Message)
		return resp, nil
	}

	// 検証: 拒否されたクエリは決して実行されず、本文もユーザーに返さない
	validation := s.validator.Validate(sqlText)
	if !validation.Valid {
		s.logger.Warn("生成クエリが安全性検査で拒否されました",
			slog.String("reason", validation.Reason),
		)
		if s.metrics != nil {
			s.metrics.RecordValidationReject(validation.ReasonCode)
		}
		resp := &Response{
			Success:            true,
			Message:            "生成されたクエリは安全性検査により実行できませんでした。質問の表現を変えて再度お試しください。",
			NeedsClarification: true,
			Metadata:           Metadata{ExecutionTimeMs: msSince(start)},
		}
		s.persistTurns(ctx, req, resp.Message)
		return resp, nil
	}

	// 実行・集約
	agg, err := s.executor.Execute(ctx, req.SourceIDs, validation.SanitizedSQL, req.Identity)
	if err != nil {
		return nil, err
	}

	rows := make(map[string][]source.Row, len(agg.Results))
	for id, r := range agg.Results {
		if r.Succeeded {
			rows[id] = r.Rows
		}
	}

	message := s.sanitizer.Sanitize(ExtractExplanation(genResp.Text))
	resp := &Response{
		Success: true,
		Data: &Data{
			Rows:           rows,
			TotalRows:      agg.TotalRows(),
			GeneratedQuery: validation.SanitizedSQL,
		},
		Message: message,
		Metadata: Metadata{
			SourcesQueried:  agg.TotalSources,
			SourcesFailed:   agg.FailedSources,
			ExecutionTimeMs: msSince(start),
		},
	}
	if s.metrics != nil {
		s.metrics.RecordQuerySuccess()
	}
	s.persistTurns(ctx, req, message)
	return resp, nil
}

// Chat はデータソースを参照しない一般チャットリクエストを処理する。
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if isBlank(req.Prompt) {
		return nil, model.NewEmptyPromptError()
	}

	history := s.loadHistory(ctx, req)
	contents := BuildChatPrompt(req.Prompt, history)

	genResp := s.generate(ctx, contents)
	if !genResp.Success {
		if s.metrics != nil {
			s.metrics.RecordQueryDegraded()
		}
		resp := &Response{
			Success:  true,
			Message:  "現在、AIサービスに接続できません。しばらくしてから再度お試しください。",
			Degraded: true,
			Metadata: Metadata{ExecutionTimeMs: msSince(start)},
		}
		s.persistTurns(ctx, req, resp.Message)
		return resp, nil
	}

	resp := &Response{
		Success:  true,
		Message:  s.sanitizer.Sanitize(FormatAnswer(genResp.Text)),
		Metadata: Metadata{ExecutionTimeMs: msSince(start)},
	}
	s.persistTurns(ctx, req, resp.Message)
	return resp, nil
}

// resolveDescriptors は要求されたソースのうちカタログに存在するものを返す。
// 未知のIDはここでは除外され、実行段階で失敗結果として記録される。
func (s *Service) resolveDescriptors(sourceIDs []string) []*source.SourceDescriptor {
	var descriptors []*source.SourceDescriptor
	for _, id := range sourceIDs {
		desc, err := s.catalog.FindByID(id)
		if err != nil {
			s.logger.Error("カタログの参照に失敗しました", slog.String("error", err.Error()))
			return descriptors
		}
		if desc != nil {
			descriptors = append(descriptors, desc)
		}
	}
	return descriptors
}

// loadHistory は直近historyLimit件の会話履歴を時系列順で返す。
// 履歴の取得失敗はリクエストを失敗させない。
func (s *Service) loadHistory(ctx context.Context, req Request) []HistoryItem {
	if s.history == nil || req.SessionID == "" {
		return nil
	}

	messages, err := s.history.SessionMessages(ctx, req.SessionID, req.Identity.PrincipalID)
	if err != nil {
		s.logger.Warn("会話履歴の取得に失敗しました。履歴なしで続行します",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return HistoryWindow(messages, s.historyLimit)
}

// persistTurns はユーザー発話とアシスタント応答を履歴に追記し、
// 初期タイトルのセッションに自動タイトルを設定する。
// 永続化の失敗は応答を失敗させない（ログのみ）。
func (s *Service) persistTurns(ctx context.Context, req Request, answer string) {
	if s.history == nil || req.SessionID == "" {
		return
	}

	if err := s.history.AppendMessage(ctx, req.SessionID, model.SenderUser, req.Prompt); err != nil {
		s.logger.Error("ユーザー発話の保存に失敗しました", slog.String("error", err.Error()))
		return
	}
	if err := s.history.AppendMessage(ctx, req.SessionID, model.SenderAssistant, answer); err != nil {
		s.logger.Error("アシスタント応答の保存に失敗しました", slog.String("error", err.Error()))
		return
	}
	if err := s.history.EnsureAutoTitle(ctx, req.SessionID, req.Identity.PrincipalID, req.Prompt); err != nil {
		s.logger.Warn("自動タイトルの設定に失敗しました", slog.String("error", err.Error()))
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
