// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// BindMode はセッション束縛失敗時の動作を表す。
type BindMode string

const (
	// BindModeFailOpen は束縛失敗をログに記録してタスクを続行する。
	// データ層の認可関数が未設定コンテキストをデフォルト拒否することに依存する。
	BindModeFailOpen BindMode = "fail_open"
	// BindModeFailClosed は束縛失敗時に当該ソースのタスクを失敗させる。
	BindModeFailClosed BindMode = "fail_closed"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（チャット履歴・フォルダ・ユーザーマッピングの永続化先）
	DatabaseURL string

	// Gemini
	GeminiAPIKey   string
	GeminiModel    string
	GeminiEndpoint string
	GeminiTimeout  time.Duration

	// Source
	SchemaRegistryPath string
	QueryMaxConcurrent int
	SourceQueryTimeout time.Duration
	SessionBindMode    BindMode

	// Chat
	ChatHistoryLimit int

	// Rate Limit
	RateLimitGeneral int
	RateLimitQuery   int

	// Identity Sync
	DirectoryURL      string
	HRDatabaseURL     string
	SyncInterval      time.Duration
	SyncErrorBackoff  time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}

	cfg.SchemaRegistryPath = os.Getenv("SCHEMA_REGISTRY_PATH")
	if cfg.SchemaRegistryPath == "" {
		missing = append(missing, "SCHEMA_REGISTRY_PATH")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-flash")
	cfg.GeminiEndpoint = getEnvString("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta")
	cfg.GeminiTimeout = getEnvDuration("GEMINI_TIMEOUT", 5*time.Minute)
	cfg.QueryMaxConcurrent = getEnvInt("QUERY_MAX_CONCURRENT", 10)
	cfg.SourceQueryTimeout = getEnvDuration("SOURCE_QUERY_TIMEOUT", 30*time.Second)
	cfg.SessionBindMode = parseBindMode(getEnvString("SESSION_BIND_MODE", string(BindModeFailOpen)))
	cfg.ChatHistoryLimit = getEnvInt("CHAT_HISTORY_LIMIT", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitQuery = getEnvInt("RATE_LIMIT_QUERY", 10)
	cfg.DirectoryURL = getEnvString("DIRECTORY_URL", "")
	cfg.HRDatabaseURL = getEnvString("HR_DATABASE_URL", "")
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 24*time.Hour)
	cfg.SyncErrorBackoff = getEnvDuration("SYNC_ERROR_BACKOFF", 10*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseBindMode はSESSION_BIND_MODEの値をBindModeに変換する。
// 不正な値はfail_openにフォールバックする。
func parseBindMode(v string) BindMode {
	if v == string(BindModeFailClosed) {
		return BindModeFailClosed
	}
	return BindModeFailOpen
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
