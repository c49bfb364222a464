// Package query は自然言語リクエストからクエリ生成・検証・実行・応答整形までの
// パイプラインを提供する。
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hitoshi/genie/internal/gemini"
	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/source"
)

// 生成結果の構造化マーカー。システムプロンプトでこの形式を指示し、
// 抽出側はこのマーカーだけを解釈する。
const (
	explanationMarker   = "**説明:**"
	clarificationMarker = "**確認事項:**"
)

// systemPrompt はクエリ生成モードのシステム指示。
// 認可済みアクセサ関数のみを使う読み取り専用クエリの生成を指示する。
const systemPrompt = `あなたは社内データ分析アシスタント「Genie」です。ユーザーの自然言語の質問を、認可済みデータへの読み取り専用クエリに変換します。

## 厳守事項:
1. SELECT文のみを生成すること。INSERT/UPDATE/DELETEなどのデータ変更は決して生成しない
2. 必ず提供されたアクセサ関数（例: fn_authorized_xxx()）を使うこと。生テーブルを直接参照しない
3. アクセサ関数はログインユーザーの認可範囲に基づいてデータを自動的に絞り込む
4. 説明は簡潔かつ業務的に書くこと
5. ユーザーの意図が不明確な場合は、推測せずに確認の質問を返すこと

## 応答形式:
クエリを生成する場合は、必ず次の形式で応答すること:

` + "```sql" + `
SELECT ...
FROM fn_authorized_xxx()
WHERE ...
` + "```" + `

**説明:** [クエリの内容と取得されるデータの簡潔な説明]

確認が必要な場合は、次の形式で応答すること:

**確認事項:** [ユーザーへの質問]`

// chatSystemPrompt は一般チャットモードのシステム指示。
const chatSystemPrompt = `あなたは社内アシスタント「Genie」です。
親切で正確なアシスタントとして、一般的な知識に基づいてユーザーの質問に答えてください。
社内データへの問い合わせを求められた場合は、データソースを指定して質問するよう案内してください。
応答はMarkdownで読みやすく整形してください。`

// primingAck はシステム指示に対するアシスタント側の定型応答。
// システムロール非対応のAPIに対してuser/modelの往復で役割を確立する。
const primingAck = `承知しました。私はGenieとして、提供された認可済みアクセサ関数のみを使用した読み取り専用クエリでお手伝いします。どのようなデータをお調べしますか？`

const chatPrimingAck = `承知しました。Genieとしてご質問にお答えします。どのようなご用件でしょうか？`

// HistoryItem はプロンプトに含める過去の1発話。
type HistoryItem struct {
	IsUser  bool
	Content string
}

// HistoryWindow はメッセージ履歴から直近limit件を選び、時系列順に並べて返す。
// 選択は新しい順、並びは古い順（プロンプトの会話順序は時系列であること）。
func HistoryWindow(messages []model.ChatMessage, limit int) []HistoryItem {
	if limit <= 0 || len(messages) == 0 {
		return nil
	}

	sorted := make([]model.ChatMessage, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	if len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}

	items := make([]HistoryItem, 0, len(sorted))
	for _, m := range sorted {
		items = append(items, HistoryItem{
			IsUser:  m.Sender == model.SenderUser,
			Content: m.Content,
		})
	}
	return items
}

// BuildQueryPrompt はクエリ生成モードのマルチターンコンテンツを組み立てる。
// 構成: システム指示＋スキーマ情報 → 役割確立の往復 → 履歴 → 今回の発話。
func BuildQueryPrompt(userPrompt string, descriptors []*source.SourceDescriptor, history []HistoryItem) []gemini.Content {
	first := systemPrompt + "\n\n" + buildSchemaContext(descriptors) + "\n---\n\n役割を理解したことを応答してください。"
	return buildContents(first, primingAck, history, userPrompt)
}

// BuildChatPrompt は一般チャットモードのマルチターンコンテンツを組み立てる。
func BuildChatPrompt(userPrompt string, history []HistoryItem) []gemini.Content {
	first := chatSystemPrompt + "\n\n---\n\n役割を理解したことを応答してください。"
	return buildContents(first, chatPrimingAck, history, userPrompt)
}

func buildContents(first, ack string, history []HistoryItem, userPrompt string) []gemini.Content {
	contents := make([]gemini.Content, 0, len(history)+3)
	contents = append(contents,
		gemini.Content{Role: "user", Parts: []gemini.Part{{Text: first}}},
		gemini.Content{Role: "model", Parts: []gemini.Part{{Text: ack}}},
	)
	for _, item := range history {
		role := "model"
		if item.IsUser {
			role = "user"
		}
		contents = append(contents, gemini.Content{Role: role, Parts: []gemini.Part{{Text: item.Content}}})
	}
	contents = append(contents, gemini.Content{Role: "user", Parts: []gemini.Part{{Text: userPrompt}}})
	return contents
}

// buildSchemaContext はカタログのスキーマ情報をMarkdownで整形する。
func buildSchemaContext(descriptors []*source.SourceDescriptor) string {
	var sb strings.Builder
	sb.WriteString("## 利用可能なデータソースとスキーマ:\n\n")

	for _, desc := range descriptors {
		fmt.Fprintf(&sb, "### %s (ID: %s)\n\n", desc.Name, desc.ID)

		for _, entity := range desc.Entities {
			fmt.Fprintf(&sb, "#### アクセサ関数: `%s`\n", entity.AccessorName)
			if entity.Description != "" {
				fmt.Fprintf(&sb, "説明: %s\n", entity.Description)
			}
			sb.WriteString("\n| カラム | 型 | 説明 |\n|--------|----|------|\n")
			for _, col := range entity.Columns {
				desc := col.Description
				if col.IsPrimary {
					desc += "（主キー）"
				}
				fmt.Fprintf(&sb, "| %s | %s | %s |\n", col.Name, col.DataType, desc)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

var (
	sqlBlockRe    = regexp.MustCompile("(?is)```sql\\s*(.*?)```")
	plainSQLRe    = regexp.MustCompile(`(?is)\bSELECT\s.*?(;|\z)`)
	explanationRe = regexp.MustCompile(`(?s)\*\*説明:\*\*\s*(.*?)(?:---|\z)`)
)

// ExtractSQL は生成テキストからクエリ候補を取り出す。
// sqlフェンスブロックを優先し、なければ生のSELECT文を探す。
// 見つからない場合は空文字列を返す（クエリなし応答として扱う）。
func ExtractSQL(response string) string {
	if m := sqlBlockRe.FindStringSubmatch(response); m != nil {
		sql := strings.TrimSpace(m[1])

		// 先頭の注釈行（-- ...）を除去する。SELECTを含む行は本体として残す
		var lines []string
		for _, line := range strings.Split(sql, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "--") && !strings.Contains(strings.ToUpper(trimmed), "SELECT") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			return sql
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if m := plainSQLRe.FindString(response); m != "" {
		return strings.TrimSpace(m)
	}

	return ""
}

// ExtractExplanation は生成テキストから説明部分を取り出す。
func ExtractExplanation(response string) string {
	if m := explanationRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}

	// 構造化マーカーがない場合はフェンスブロック以降のテキストを説明とみなす
	if idx := strings.LastIndex(response, "```"); idx >= 0 {
		return strings.TrimSpace(response[idx+3:])
	}

	return ""
}

// IsClarification は生成テキストが確認質問かどうかを判定する。
func IsClarification(response string) bool {
	return strings.Contains(response, clarificationMarker)
}

// FormatAnswer は生成テキストから構造化マーカーを除去して表示用に整える。
func FormatAnswer(response string) string {
	s := strings.ReplaceAll(response, clarificationMarker, "")
	s = strings.ReplaceAll(s, explanationMarker, "")
	return strings.TrimSpace(s)
}
