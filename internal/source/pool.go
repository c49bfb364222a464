package source

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/hitoshi/genie/internal/database"
)

// Pool はソースIDごとの*sql.DBを遅延生成して保持する。
// *sql.DB自体がコネクションプールであり、全タスクで安全に共有される。
// タスクごとの専用コネクションはBinderが取り出す。
type Pool struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewPool はPoolの新しいインスタンスを生成する。
func NewPool() *Pool {
	return &Pool{dbs: make(map[string]*sql.DB)}
}

// Get は指定ディスクリプタのデータソースへの*sql.DBを返す。
// 初回アクセス時にディスクリプタのConnectionEnvが指す環境変数から
// 接続URLを解決して開く。環境変数が未設定の場合はエラーを返す。
func (p *Pool) Get(desc *SourceDescriptor) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[desc.ID]; ok {
		return db, nil
	}

	connURL := os.Getenv(desc.ConnectionEnv)
	if connURL == "" {
		return nil, fmt.Errorf("データソース %s の接続URL環境変数 %s が未設定です", desc.ID, desc.ConnectionEnv)
	}

	db, err := database.Open(connURL)
	if err != nil {
		return nil, fmt.Errorf("データソース %s への接続オープンに失敗しました: %w", desc.ID, err)
	}

	p.dbs[desc.ID] = db
	return db, nil
}

// Close は保持している全データソース接続を閉じる。
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, db := range p.dbs {
		db.Close()
		delete(p.dbs, id)
	}
}
