package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/genie/internal/model"
)

// SourceRunner は1ソース分のクエリ実行インターフェース。
// Orchestratorはこのインターフェース経由でタスク本体を実行する。
type SourceRunner interface {
	// Run は指定ディスクリプタのソースに対してクエリを実行し、行を返す。
	// sqlTextが空の場合は接続確認（ping）のみを行う。
	// 束縛→クエリの順序はこの中で厳密に逐次実行される。
	Run(ctx context.Context, desc *SourceDescriptor, sqlText string, identity model.Identity) ([]Row, error)
}

// boundRunner はSourceRunnerのデフォルト実装。
// Poolからデータソースを解決し、Binderでセッション束縛したコネクション上で
// クエリを実行する。
type boundRunner struct {
	pool   *Pool
	binder *Binder
	logger *slog.Logger
}

// NewBoundRunner はPool/Binderを使用するSourceRunnerを生成する。
func NewBoundRunner(pool *Pool, binder *Binder, logger *slog.Logger) SourceRunner {
	return &boundRunner{pool: pool, binder: binder, logger: logger}
}

// Run はセッション束縛済みコネクション上でクエリを実行する。
// コネクションは成功・失敗を問わずこの関数内で必ず解放される。
func (r *boundRunner) Run(ctx context.Context, desc *SourceDescriptor, sqlText string, identity model.Identity) ([]Row, error) {
	db, err := r.pool.Get(desc)
	if err != nil {
		return nil, err
	}

	// 束縛はクエリ実行より先に必ず試行される。束縛の失敗可否はBindModeに従う。
	scoped, err := r.binder.Bind(ctx, db, desc.ID, identity)
	if err != nil {
		return nil, err
	}
	defer scoped.Close()

	if scoped.Degraded {
		r.logger.Warn("束縛が部分的に失敗したまま実行します（データ層がデフォルト拒否します）",
			slog.String("source_id", desc.ID),
		)
	}

	// sqlTextなしの場合は接続確認のみ
	if sqlText == "" {
		if err := scoped.Conn().PingContext(ctx); err != nil {
			return nil, fmt.Errorf("接続確認に失敗しました: %w", err)
		}
		return nil, nil
	}

	rows, err := scoped.Conn().QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("クエリの実行に失敗しました: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("カラム情報の取得に失敗しました: %w", err)
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("行の読み取りに失敗しました: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			// []byteはJSONで人間が読める形にならないため文字列化する
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[i] = Field{Name: col, Value: values[i]}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("行の走査中にエラーが発生しました: %w", err)
	}

	return result, nil
}
