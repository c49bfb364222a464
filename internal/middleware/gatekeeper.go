// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/repository"
)

// remoteUserHeader はリバースプロキシが統合Windows認証の結果を渡すヘッダ。
const remoteUserHeader = "X-Remote-User"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// NewGatekeeperMiddleware はリクエスト発行者の識別を解決するミドルウェアを返す。
// プロキシが付与したアカウント名（DOMAIN\user形式）をユーザー対応表で
// 社員属性に解決し、Identityとしてコンテキストに注入する。
// ヘッダなし・未登録アカウントの場合は未認証のIdentityで続行する
// （接続確認等は通し、認可が必要なデータはデータ層がデフォルト拒否する）。
func NewGatekeeperMiddleware(mappings repository.UserMappingRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountName := parseAccountName(r.Header.Get(remoteUserHeader))
			if accountName == "" {
				ctx := ContextWithIdentity(r.Context(), model.Identity{})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			mapping, err := mappings.FindByAccountName(r.Context(), accountName)
			if err != nil {
				logger.Error("ユーザー対応の解決に失敗しました",
					slog.String("account_name", accountName),
					slog.String("error", err.Error()),
				)
				ctx := ContextWithIdentity(r.Context(), model.Identity{AccountName: accountName})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if mapping == nil {
				logger.Warn("未登録のアカウントです。未認証として続行します",
					slog.String("account_name", accountName),
				)
				ctx := ContextWithIdentity(r.Context(), model.Identity{AccountName: accountName})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			identity := model.Identity{
				PrincipalID:   mapping.EmployeeID,
				EmployeeID:    mapping.EmployeeID,
				Email:         mapping.Email,
				AccountName:   mapping.AccountName,
				Authenticated: true,
			}
			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseAccountName はDOMAIN\user形式のヘッダ値からアカウント名部分を取り出す。
// ドメイン部なしの値はそのまま返す。
func parseAccountName(remoteUser string) string {
	remoteUser = strings.TrimSpace(remoteUser)
	if remoteUser == "" {
		return ""
	}
	if idx := strings.LastIndexByte(remoteUser, '\\'); idx >= 0 {
		return remoteUser[idx+1:]
	}
	return remoteUser
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// ゲートキーパーを通過していないコンテキストでは未認証のIdentityを返す。
func IdentityFromContext(ctx context.Context) model.Identity {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok {
		return model.Identity{}
	}
	return identity
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
