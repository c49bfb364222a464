// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はリクエスト発行者の認可コンテキストを表す。
// トランスポート層（ゲートキーパーミドルウェア）がリクエストごとに生成し、
// コア内では読み取り専用として扱う。コアはこれを永続化しない。
type Identity struct {
	// PrincipalID は安定した主体識別子（社員ID）。
	PrincipalID string
	// EmployeeID は人事システム上の社員ID。
	EmployeeID string
	// Email は社員のメールアドレス。
	Email string
	// AccountName はディレクトリ上のアカウント名（DOMAIN\user の user 部分）。
	AccountName string
	// Authenticated は認証済みかどうか。falseの場合、セッション束縛はスキップされ、
	// データ層の認可関数がデフォルト拒否する。
	Authenticated bool
}

// UserMapping はディレクトリアカウントと人事システム社員の紐付けを表す。
// ゲートキーパーミドルウェアのID解決と、ディレクトリ同期ジョブが使用する。
type UserMapping struct {
	ID           string
	AccountName  string
	Email        string
	DisplayName  string
	EmployeeID   string
	IsActive     bool
	LastSyncedAt time.Time
	CreatedAt    time.Time
}
