package model

import "time"

// ChatSession はユーザーとアシスタントの会話セッションを表す。
type ChatSession struct {
	ID           string
	UserID       string
	Title        string
	ModelID      string
	IsArchived   bool
	CreatedAt    time.Time
	LastActiveAt time.Time

	// Messages はセッションに属するメッセージ。取得方法によっては未設定。
	Messages []*ChatMessage
}

// SenderUser / SenderAssistant はChatMessage.Senderの取りうる値。
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// ChatMessage は会話の1ターンを表す。
type ChatMessage struct {
	ID        string
	SessionID string
	Sender    string
	Content   string
	CreatedAt time.Time
}

// Folder はチャットセッションを整理するフォルダを表す。
type Folder struct {
	ID        string
	UserID    string
	Name      string
	SortOrder int
	CreatedAt time.Time
}

// DefaultSessionTitle は新規セッションの初期タイトル。
// 最初のユーザーメッセージから自動リネームされるまでの仮タイトル。
const DefaultSessionTitle = "新しい会話"
