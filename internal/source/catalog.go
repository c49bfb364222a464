// Package source はデータソースのカタログ管理、セッション束縛、
// 並列クエリオーケストレーションを提供する。
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ColumnSchema はエンティティの1カラムの意味型を表す。
type ColumnSchema struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Description string `json:"description,omitempty"`
	IsPrimary   bool   `json:"is_primary,omitempty"`
}

// EntitySchema はデータソース内の1エンティティを表す。
// AccessorName は認可済みアクセサ関数の名前で、束縛済みセッションの
// 識別情報に基づいて参照可能な行のみを返す。生テーブルへの直接アクセスは
// カタログに存在しない。
type EntitySchema struct {
	Name         string         `json:"name"`
	AccessorName string         `json:"accessor_name"`
	Description  string         `json:"description,omitempty"`
	Columns      []ColumnSchema `json:"columns"`
}

// SourceDescriptor は1つの論理データソースを表す。
// ConnectionEnv は接続URLを保持する環境変数の名前。接続文字列そのものは
// カタログファイルに書かない。
type SourceDescriptor struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ConnectionEnv string         `json:"connection_env"`
	Entities      []EntitySchema `json:"entities"`
}

// Catalog はSourceDescriptorのレジストリ。
// JSONファイルから初回アクセス時に遅延読み込みし、以降はキャッシュを返す。
// 再読み込みはReloadの明示呼び出しのみで行われる。
// 全メソッドは並行アクセスに対して安全。
type Catalog struct {
	path string

	mu          sync.RWMutex
	descriptors []*SourceDescriptor
	loaded      bool
}

// NewCatalog は指定パスのレジストリファイルを参照するCatalogを生成する。
// この時点ではファイルを読み込まない。
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Descriptors は全SourceDescriptorを返す。
// 未読み込みの場合は読み込んでからキャッシュを返す。
func (c *Catalog) Descriptors() ([]*SourceDescriptor, error) {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return c.descriptors, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// ロック取得待ちの間に他のgoroutineが読み込んでいる可能性がある
	if c.loaded {
		return c.descriptors, nil
	}

	if err := c.loadLocked(); err != nil {
		return nil, err
	}
	return c.descriptors, nil
}

// FindByID は指定IDのSourceDescriptorを返す。見つからない場合はnilを返す。
func (c *Catalog) FindByID(id string) (*SourceDescriptor, error) {
	descriptors, err := c.Descriptors()
	if err != nil {
		return nil, err
	}
	for _, d := range descriptors {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

// Reload はレジストリファイルを再読み込みする。
// 読み込みに失敗した場合は既存のキャッシュを維持したままエラーを返す。
func (c *Catalog) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked()
}

// loadLocked はレジストリファイルを読み込む。呼び出し元がc.muを保持していること。
func (c *Catalog) loadLocked() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("スキーマレジストリの読み込みに失敗しました: %w", err)
	}

	var descriptors []*SourceDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return fmt.Errorf("スキーマレジストリの解析に失敗しました: %w", err)
	}

	c.descriptors = descriptors
	c.loaded = true
	return nil
}
