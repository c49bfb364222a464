// Package security はアプリケーションのセキュリティ機能を提供する。
//
// SQLValidatorService はAI生成SQLを実行前に検査するゲート。
// 読み取り専用のSELECT文のみを許可し、データ変更・権限操作・動的実行を
// 含むクエリをすべて拒否する。自由文由来のクエリが実データに触れる前の
// 唯一の防壁であり、ここを通過しないクエリは決して実行されない。
package security

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// SQLValidatorService はAI生成SQLの安全性検査のインターフェースを定義する。
type SQLValidatorService interface {
	// Validate は候補SQLを検査し、検証結果を返す。
	// 不正な入力に対してもpanicせず、常に拒否理由を返す。
	Validate(sql string) ValidationResult

	// Sanitize は末尾のセミコロン・空白を除去し、ブロックコメントを取り除く。
	// 冪等: Sanitize(Sanitize(x)) == Sanitize(x)。
	Sanitize(sql string) string
}

// ValidationResult はSQL検証の結果を表す。
// Validがtrueの場合のみSanitizedSQLが設定され、falseの場合はReasonと
// ReasonCodeが設定される。ReasonCodeは集計用の機械可読な拒否分類。
type ValidationResult struct {
	Valid        bool
	SanitizedSQL string
	Reason       string
	ReasonCode   string
}

// 拒否分類コード。メトリクスのラベル値として使用する。
const (
	RejectEmptyQuery         = "empty_query"
	RejectNotSelect          = "not_select"
	RejectForbiddenKeyword   = "forbidden_keyword"
	RejectMultipleStatements = "multiple_statements"
	RejectSuspiciousPattern  = "suspicious_pattern"
)

// blockedKeywords は生成SQLに決して現れてはならないキーワード。
// スキーマ/データ変更、権限操作、動的実行、管理コマンドを網羅する。
var blockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER", "CREATE",
	"EXEC", "EXECUTE", "GRANT", "REVOKE", "DENY",
	"OPENROWSET", "OPENDATASOURCE", "BULK", "SHUTDOWN", "BACKUP", "RESTORE",
	"DBCC", "KILL", "RECONFIGURE", "WAITFOR",
}

var (
	// lineCommentRe は単一行コメント（-- 以降行末まで）にマッチする。
	lineCommentRe = regexp.MustCompile(`(?m)--.*$`)
	// blockCommentRe はブロックコメント（/* ... */）にマッチする。
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// multiStatementRe はセミコロンの後に別の文が続くパターンにマッチする。
	multiStatementRe = regexp.MustCompile(`(?i);\s*(SELECT|INSERT|UPDATE|DELETE|DROP|EXEC|CREATE|ALTER|GRANT)\b`)

	// systemProcRe はシステムプロシージャ接頭辞（sp_ / xp_）にマッチする。
	systemProcRe = regexp.MustCompile(`(?i)\b(sp|xp)_\w+`)

	// suspiciousRes はインジェクションの兆候となるパターン群。
	// 終端直後のコメント、システムカタログへのUNIONアクセス、
	// 一時領域・変数の作成/代入を検出する。
	suspiciousRes = []*regexp.Regexp{
		regexp.MustCompile(`['"];\s*--`),
		regexp.MustCompile(`(?is)UNION\s+ALL\s+SELECT.*?sys\.`),
		regexp.MustCompile(`(?i)INTO\s+#`),
		regexp.MustCompile(`(?i)INTO\s+@`),
		regexp.MustCompile(`(?i)DECLARE\s+@`),
		regexp.MustCompile(`(?i)SET\s+@`),
	}

	// blockedKeywordRes は禁止キーワードごとの単語境界マッチ。
	blockedKeywordRes = compileKeywordPatterns()
)

// compileKeywordPatterns は禁止キーワードの単語境界正規表現を事前コンパイルする。
func compileKeywordPatterns() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(blockedKeywords))
	for _, kw := range blockedKeywords {
		res[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return res
}

// sqlValidator はSQLValidatorServiceの実装。
// 状態を持たない純粋な検査器で、ログ出力以外の副作用を持たない。
type sqlValidator struct {
	logger *slog.Logger
}

// NewSQLValidator はSQLValidatorServiceの新しいインスタンスを生成する。
func NewSQLValidator(logger *slog.Logger) *sqlValidator {
	return &sqlValidator{logger: logger}
}

// Validate は候補SQLを検査する。検査規則は順番に適用される:
//  1. 空・空白のみの入力を拒否
//  2. コメント除去後にSELECTで始まらない文を拒否
//  3. 禁止キーワード（単語境界・大文字小文字無視）を拒否
//  4. 複数文（セミコロン + 次の文）を拒否
//  5. 不審なパターン（インジェクション兆候）を拒否
//  6. 上記すべてを通過した場合のみサニタイズ済みSQLを返す
func (v *sqlValidator) Validate(sql string) ValidationResult {
	if strings.TrimSpace(sql) == "" {
		return v.reject(RejectEmptyQuery, "クエリが空です")
	}

	trimmed := strings.TrimSpace(sql)
	uncommented := removeComments(trimmed)

	// SELECTで始まることを確認（AIが先頭にコメントを付けることがあるため、
	// コメント除去後のテキストで判定する）
	if !startsWithSelect(uncommented) {
		return v.reject(RejectNotSelect, "読み取り専用のSELECT文のみ許可されています")
	}

	// 禁止キーワードの検査はコメント除去後の全文に対して行う
	for _, kw := range blockedKeywords {
		if blockedKeywordRes[kw].MatchString(uncommented) {
			return v.reject(RejectForbiddenKeyword, fmt.Sprintf("禁止キーワードが検出されました: %s", kw))
		}
	}
	if m := systemProcRe.FindString(uncommented); m != "" {
		return v.reject(RejectForbiddenKeyword, fmt.Sprintf("禁止キーワードが検出されました: %s", m))
	}

	if multiStatementRe.MatchString(trimmed) {
		return v.reject(RejectMultipleStatements, "複数のSQL文は許可されていません")
	}

	for _, re := range suspiciousRes {
		if re.MatchString(trimmed) {
			return v.reject(RejectSuspiciousPattern, "不審なSQLパターンが検出されました")
		}
	}

	v.logger.Info("SQL validation passed")
	return ValidationResult{
		Valid:        true,
		SanitizedSQL: v.Sanitize(trimmed),
	}
}

// Sanitize はブロックコメントを除去し、末尾のセミコロン・空白を取り除く。
// ブロックコメント除去を先に行うことで冪等性を保証する。
func (v *sqlValidator) Sanitize(sql string) string {
	sanitized := blockCommentRe.ReplaceAllString(sql, " ")
	sanitized = strings.TrimRight(sanitized, "; \n\r\t")
	return sanitized
}

// reject は拒否理由をログに記録し、拒否結果を返す。
// 拒否されたクエリ本文はログにもレスポンスにも含めない。
func (v *sqlValidator) reject(code, reason string) ValidationResult {
	v.logger.Warn("SQL validation failed", slog.String("reason", reason))
	return ValidationResult{Valid: false, Reason: reason, ReasonCode: code}
}

// removeComments は単一行コメントとブロックコメントを除去する。
func removeComments(sql string) string {
	result := lineCommentRe.ReplaceAllString(sql, "")
	result = blockCommentRe.ReplaceAllString(result, " ")
	return result
}

// startsWithSelect はコメント除去済みテキストがSELECTで始まるかを判定する。
func startsWithSelect(sql string) bool {
	rest := strings.TrimSpace(sql)
	if len(rest) < 6 {
		return false
	}
	if !strings.EqualFold(rest[:6], "SELECT") {
		return false
	}
	// "SELECTED" のような前方一致を除外する
	if len(rest) > 6 {
		c := rest[6]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '*' && c != '(' {
			return false
		}
	}
	return true
}
