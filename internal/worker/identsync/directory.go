// Package identsync は社内ディレクトリと人事データベースの照合による
// ユーザー対応表の同期処理を提供する。
package identsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DirectoryEntry は社内ディレクトリの1アカウントを表す。
type DirectoryEntry struct {
	AccountName string `json:"account_name"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// DirectorySource はディレクトリアカウントの取得インターフェース。
type DirectorySource interface {
	// ListAccounts は全アカウントを返す。
	ListAccounts(ctx context.Context) ([]DirectoryEntry, error)
}

// DirectoryClient は社内ディレクトリのHTTP JSONエンドポイントから
// アカウント一覧を取得するクライアント。
type DirectoryClient struct {
	httpClient *http.Client
	url        string
}

// NewDirectoryClient はDirectoryClientを生成する。
func NewDirectoryClient(url string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// ListAccounts はディレクトリの全アカウントを取得する。
func (c *DirectoryClient) ListAccounts(ctx context.Context) ([]DirectoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ディレクトリが異常ステータスを返しました: %d", resp.StatusCode)
	}

	var entries []DirectoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("ディレクトリ応答の解析に失敗しました: %w", err)
	}
	return entries, nil
}

// compile-time check
var _ DirectorySource = (*DirectoryClient)(nil)
