package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizerService はAI応答テキストの表示前サニタイズのインターフェースを定義する。
// 生成テキストはMarkdownとしてUIに渡されるが、モデルが生のHTMLを混入させる
// 可能性があるため、HTMLタグをすべて除去してから返す。
type MessageSanitizerService interface {
	// Sanitize は生成テキストからHTMLタグを除去したテキストを返す。
	// Markdown記法（コードブロック、リスト、強調）はそのまま通過する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(text string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。Markdownのプレーンテキスト部分は
// 影響を受けない。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は生成テキストからHTMLタグを除去する。
// 見出しラベル（**Explanation:** 等）の除去後に残る前後空白も取り除く。
func (s *messageSanitizer) Sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}
