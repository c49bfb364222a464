package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hitoshi/genie/internal/config"
	"github.com/hitoshi/genie/internal/model"
)

// セッション束縛に使用するキー。データソース側の認可済みアクセサ関数は
// current_setting でこれらを参照し、未設定の場合は行を返さない（デフォルト拒否）。
const (
	bindKeyEmployeeID  = "genie.employee_id"
	bindKeyEmail       = "genie.email"
	bindKeyAccountName = "genie.account_name"
)

// ScopedConnection は呼び出し元の識別情報を束縛した専用コネクション。
// 取得したタスクが排他的に所有し、タスク終了時に必ずCloseする。
// Degradedは1つ以上の属性設定に失敗したまま続行したことを示す。
type ScopedConnection struct {
	conn     *sql.Conn
	sourceID string

	// Degraded は束縛が部分的に失敗したことを示す（fail_openモードのみ）。
	Degraded bool
}

// Conn は束縛済みの*sql.Connを返す。
func (sc *ScopedConnection) Conn() *sql.Conn {
	return sc.conn
}

// Close はコネクションをプールに返却する。
func (sc *ScopedConnection) Close() error {
	return sc.conn.Close()
}

// sessionExecer はセッション属性設定の実行インターフェース。
// *sql.Connの部分集合として定義する（テスト用に差し替え可能）。
type sessionExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Binder は呼び出し元の認可属性をデータソースコネクションの
// セッションに束縛する。
type Binder struct {
	logger *slog.Logger
	mode   config.BindMode
}

// NewBinder はBinderの新しいインスタンスを生成する。
func NewBinder(logger *slog.Logger, mode config.BindMode) *Binder {
	return &Binder{logger: logger, mode: mode}
}

// Bind はdbから専用コネクションを取得し、identityの認可属性を
// セッションに束縛して返す。
// 未認証のidentityの場合は束縛をスキップして警告ログを出す。コネクション自体は
// 返すため接続確認は可能だが、束縛なしでは認可済みアクセサ関数は行を返さない。
// 属性設定の失敗時の動作はBindModeに従う:
//   - fail_open: ログに記録してDegradedを立てたまま続行する
//   - fail_closed: コネクションを閉じてエラーを返す（当該タスクは失敗する）
//
// エラー時を含むすべての経路で、返却済みScopedConnectionのCloseは呼び出し元の責務。
func (b *Binder) Bind(ctx context.Context, db *sql.DB, sourceID string, identity model.Identity) (*ScopedConnection, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("データソースへの接続に失敗しました: %w", err)
	}

	scoped := &ScopedConnection{conn: conn, sourceID: sourceID}

	degraded, err := b.apply(ctx, conn, sourceID, identity)
	if err != nil {
		// fail_closed: コネクションはここで解放する
		conn.Close()
		return nil, err
	}
	scoped.Degraded = degraded

	return scoped, nil
}

// apply はidentityの認可属性を1件ずつセッションに設定する。
// 戻り値は（部分的に失敗したか, fail_closed時のエラー）。
func (b *Binder) apply(ctx context.Context, execer sessionExecer, sourceID string, identity model.Identity) (bool, error) {
	if !identity.Authenticated {
		b.logger.Warn("未認証のためセッション束縛をスキップします",
			slog.String("source_id", sourceID),
		)
		return false, nil
	}

	attrs := []struct {
		key   string
		value string
	}{
		{bindKeyEmployeeID, identity.EmployeeID},
		{bindKeyEmail, identity.Email},
		{bindKeyAccountName, identity.AccountName},
	}

	degraded := false
	for _, attr := range attrs {
		// set_configのfalseはセッションスコープ（トランザクション終了後も維持）
		_, err := execer.ExecContext(ctx,
			"SELECT set_config($1, $2, false)", attr.key, attr.value)
		if err == nil {
			continue
		}

		if b.mode == config.BindModeFailClosed {
			return false, fmt.Errorf("セッション属性の設定に失敗しました（%s）: %w", attr.key, err)
		}

		// fail_open: 束縛失敗はデータ層のデフォルト拒否に委ねて続行する
		b.logger.Error("セッション属性の設定に失敗しました",
			slog.String("source_id", sourceID),
			slog.String("key", attr.key),
			slog.String("error", err.Error()),
		)
		degraded = true
	}

	if !degraded {
		b.logger.Info("セッション束縛を設定しました",
			slog.String("source_id", sourceID),
			slog.String("employee_id", identity.EmployeeID),
		)
	}

	return degraded, nil
}
