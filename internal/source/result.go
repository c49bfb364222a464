package source

import "time"

// Field は行の1フィールド（カラム名と値）を表す。
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Row は名前付きフィールドの順序付き列。
// カラムの意味型はSourceDescriptorカタログのEntitySchemaが宣言する。
type Row []Field

// SourceQueryResult は1ソースに対するクエリ実行の結果を表す明示的なタグ付き変種。
// NewSuccessResult / NewFailureResult のどちらかでのみ生成され、生成後は不変。
// 成功時のみRowsが設定され、失敗時のみErrorMessageが設定される。
type SourceQueryResult struct {
	SourceID     string
	Succeeded    bool
	Rows         []Row
	ErrorMessage string
	Elapsed      time.Duration
}

// NewSuccessResult は成功結果を生成する。
func NewSuccessResult(sourceID string, rows []Row, elapsed time.Duration) *SourceQueryResult {
	return &SourceQueryResult{
		SourceID:  sourceID,
		Succeeded: true,
		Rows:      rows,
		Elapsed:   elapsed,
	}
}

// NewFailureResult は失敗結果を生成する。
func NewFailureResult(sourceID, message string, elapsed time.Duration) *SourceQueryResult {
	return &SourceQueryResult{
		SourceID:     sourceID,
		Succeeded:    false,
		ErrorMessage: message,
		Elapsed:      elapsed,
	}
}

// AggregatedResult は複数ソースの並列クエリ結果の集約。
// Resultsはソース IDをキーとするマップであり、完了順序には意味がない。
// 1リクエストの寿命の間だけ存在し、永続化されない。
type AggregatedResult struct {
	Results           map[string]*SourceQueryResult
	TotalSources      int
	FailedSources     []string
	HasPartialFailure bool
}

// TotalRows は全成功ソースの行数合計を返す。
func (a *AggregatedResult) TotalRows() int {
	total := 0
	for _, r := range a.Results {
		if r.Succeeded {
			total += len(r.Rows)
		}
	}
	return total
}
