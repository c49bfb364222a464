package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/genie/internal/model"
)

// MetricsRecorder はソース単位の実行メトリクス記録インターフェース。
// nilの場合、記録はスキップされる。
type MetricsRecorder interface {
	RecordSourceSuccess(sourceID string)
	RecordSourceFailure(sourceID string)
	RecordSourceLatency(sourceID string, duration time.Duration)
}

// Orchestrator は複数データソースへのクエリを並列に実行して集約する。
// 同時実行数はセマフォで制限され、1ソースの失敗が他ソースに波及しない。
type Orchestrator struct {
	catalog       *Catalog
	runner        SourceRunner
	logger        *slog.Logger
	maxConcurrent int
	perTimeout    time.Duration
	metrics       MetricsRecorder
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(catalog *Catalog, runner SourceRunner, logger *slog.Logger, maxConcurrent int, perTimeout time.Duration) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		catalog:       catalog,
		runner:        runner,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		perTimeout:    perTimeout,
	}
}

// SetMetrics はメトリクス記録先を設定する。未設定の場合は記録しない。
func (o *Orchestrator) SetMetrics(m MetricsRecorder) {
	o.metrics = m
}

// Execute は指定された全ソースに対してsqlTextを並列実行し、
// 全タスクの完了を待って集約結果を返す。
// 個々のソースの失敗・タイムアウト・パニックはそのソースの失敗結果として
// 記録され、Execute自体はソース一覧が空の場合にのみエラーを返す。
// sqlTextが空の場合は各ソースへの接続確認のみを行う。
func (o *Orchestrator) Execute(ctx context.Context, sourceIDs []string, sqlText string, identity model.Identity) (*AggregatedResult, error) {
	if len(sourceIDs) == 0 {
		return nil, model.NewNoSourcesError()
	}

	o.logger.Info("並列クエリを開始します",
		slog.Int("sources", len(sourceIDs)),
		slog.Int("max_concurrent", o.maxConcurrent),
	)

	var (
		mu      sync.Mutex
		results = make(map[string]*SourceQueryResult, len(sourceIDs))
	)

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.maxConcurrent)

	for _, id := range sourceIDs {
		wg.Add(1)
		go func(sourceID string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := o.runOne(ctx, sourceID, sqlText, identity)
			o.record(result)

			mu.Lock()
			results[sourceID] = result
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	agg := &AggregatedResult{
		Results:      results,
		TotalSources: len(sourceIDs),
	}
	for _, id := range sourceIDs {
		if r, ok := results[id]; ok && !r.Succeeded {
			agg.FailedSources = append(agg.FailedSources, id)
		}
	}
	agg.HasPartialFailure = len(agg.FailedSources) > 0

	o.logger.Info("並列クエリが完了しました",
		slog.Int("total", agg.TotalSources),
		slog.Int("failed", len(agg.FailedSources)),
		slog.Int("rows", agg.TotalRows()),
	)

	return agg, nil
}

// record は1ソース分の実行結果をメトリクスに反映する。
func (o *Orchestrator) record(result *SourceQueryResult) {
	if o.metrics == nil {
		return
	}
	if result.Succeeded {
		o.metrics.RecordSourceSuccess(result.SourceID)
	} else {
		o.metrics.RecordSourceFailure(result.SourceID)
	}
	o.metrics.RecordSourceLatency(result.SourceID, result.Elapsed)
}

// runOne は1ソース分のタスクを実行する。パニックを含むあらゆる失敗を
// 失敗結果に変換して返し、決してパニックを外に漏らさない。
func (o *Orchestrator) runOne(ctx context.Context, sourceID, sqlText string, identity model.Identity) (result *SourceQueryResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ソースタスクでパニックが発生しました",
				slog.String("source_id", sourceID),
				slog.Any("panic", r),
			)
			result = NewFailureResult(sourceID,
				fmt.Sprintf("内部エラーが発生しました: %v", r), time.Since(start))
		}
	}()

	desc, err := o.catalog.FindByID(sourceID)
	if err != nil {
		return NewFailureResult(sourceID, err.Error(), time.Since(start))
	}
	if desc == nil {
		return NewFailureResult(sourceID, "未知のデータソースです", time.Since(start))
	}

	taskCtx := ctx
	if o.perTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, o.perTimeout)
		defer cancel()
	}

	rows, err := o.runner.Run(taskCtx, desc, sqlText, identity)
	elapsed := time.Since(start)
	if err != nil {
		o.logger.Warn("ソースクエリが失敗しました",
			slog.String("source_id", sourceID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return NewFailureResult(sourceID, err.Error(), elapsed)
	}

	o.logger.Debug("ソースクエリが成功しました",
		slog.String("source_id", sourceID),
		slog.Int("rows", len(rows)),
		slog.Duration("elapsed", elapsed),
	)
	return NewSuccessResult(sourceID, rows, elapsed)
}
