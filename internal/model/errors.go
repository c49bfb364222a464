package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, query, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeEmptyPrompt     = "EMPTY_PROMPT"
	ErrCodeNoSources       = "NO_SOURCES"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeFolderNotFound  = "FOLDER_NOT_FOUND"
	ErrCodeInvalidTitle    = "INVALID_TITLE"
	ErrCodeSchemaReload    = "SCHEMA_RELOAD_FAILED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "社内ネットワークからアクセスし、再度お試しください。",
	}
}

// NewEmptyPromptError は空プロンプトエラーを生成する。
func NewEmptyPromptError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyPrompt,
		Message:  "質問が空です。",
		Category: "validation",
		Action:   "質問内容を入力してください。",
	}
}

// NewNoSourcesError はデータソース未指定エラーを生成する。
// リクエスト全体を失敗させる唯一の前提条件エラー。
func NewNoSourcesError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSources,
		Message:  "問い合わせ対象のデータソースが指定されていません。",
		Category: "validation",
		Action:   "1つ以上のデータソースを指定してください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたチャットセッションが見つかりません: %s", sessionID),
		Category: "query",
		Action:   "セッションIDを確認してください。",
	}
}

// NewFolderNotFoundError はフォルダ未検出エラーを生成する。
func NewFolderNotFoundError(folderID string) *APIError {
	return &APIError{
		Code:     ErrCodeFolderNotFound,
		Message:  fmt.Sprintf("指定されたフォルダが見つかりません: %s", folderID),
		Category: "query",
		Action:   "フォルダIDを確認してください。",
	}
}

// NewInvalidTitleError は無効なタイトルエラーを生成する。
func NewInvalidTitleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTitle,
		Message:  "タイトルが空です。",
		Category: "validation",
		Action:   "1文字以上のタイトルを指定してください。",
	}
}
