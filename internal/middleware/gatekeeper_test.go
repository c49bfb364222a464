package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/genie/internal/model"
)

// fakeUserMappingRepository はテスト用のユーザー対応表リポジトリ。
type fakeUserMappingRepository struct {
	mappings map[string]*model.UserMapping
	err      error
}

func (f *fakeUserMappingRepository) FindByAccountName(ctx context.Context, accountName string) (*model.UserMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mappings[accountName], nil
}

func (f *fakeUserMappingRepository) Upsert(ctx context.Context, mapping *model.UserMapping) error {
	return nil
}

func (f *fakeUserMappingRepository) DeactivateNotSyncedSince(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (f *fakeUserMappingRepository) CountActive(ctx context.Context) (int, error) {
	return len(f.mappings), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestGatekeeperMiddleware_ResolvesIdentity(t *testing.T) {
	repo := &fakeUserMappingRepository{
		mappings: map[string]*model.UserMapping{
			"yamada.taro": {
				ID:          "map-1",
				AccountName: "yamada.taro",
				Email:       "yamada.taro@example.co.jp",
				EmployeeID:  "E10001",
				IsActive:    true,
			},
		},
	}

	mw := NewGatekeeperMiddleware(repo, testLogger())

	var got model.Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("X-Remote-User", `CORP\yamada.taro`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if !got.Authenticated {
		t.Error("expected identity to be authenticated")
	}
	if got.EmployeeID != "E10001" {
		t.Errorf("EmployeeID = %q, want %q", got.EmployeeID, "E10001")
	}
	if got.Email != "yamada.taro@example.co.jp" {
		t.Errorf("Email = %q, want %q", got.Email, "yamada.taro@example.co.jp")
	}
	if got.AccountName != "yamada.taro" {
		t.Errorf("AccountName = %q, want %q", got.AccountName, "yamada.taro")
	}
	if got.PrincipalID != "E10001" {
		t.Errorf("PrincipalID = %q, want %q", got.PrincipalID, "E10001")
	}
}

func TestGatekeeperMiddleware_MissingHeaderProceedsUnauthenticated(t *testing.T) {
	repo := &fakeUserMappingRepository{mappings: map[string]*model.UserMapping{}}
	mw := NewGatekeeperMiddleware(repo, testLogger())

	var got model.Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// 401にはせず、未認証のまま通す
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if got.Authenticated {
		t.Error("expected identity to be unauthenticated")
	}
	if got.AccountName != "" {
		t.Errorf("AccountName = %q, want empty", got.AccountName)
	}
}

func TestGatekeeperMiddleware_UnregisteredAccountProceedsUnauthenticated(t *testing.T) {
	repo := &fakeUserMappingRepository{mappings: map[string]*model.UserMapping{}}
	mw := NewGatekeeperMiddleware(repo, testLogger())

	var got model.Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("X-Remote-User", `CORP\suzuki.hanako`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if got.Authenticated {
		t.Error("expected identity to be unauthenticated for unregistered account")
	}
	// アカウント名だけは保持される（ログやレート制限のキーに使える）
	if got.AccountName != "suzuki.hanako" {
		t.Errorf("AccountName = %q, want %q", got.AccountName, "suzuki.hanako")
	}
}

func TestGatekeeperMiddleware_RepositoryErrorProceedsUnauthenticated(t *testing.T) {
	repo := &fakeUserMappingRepository{err: errors.New("connection refused")}
	mw := NewGatekeeperMiddleware(repo, testLogger())

	var got model.Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	req.Header.Set("X-Remote-User", `CORP\yamada.taro`)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if got.Authenticated {
		t.Error("expected identity to be unauthenticated on repository error")
	}
}

func TestParseAccountName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ドメイン付き", `CORP\yamada.taro`, "yamada.taro"},
		{"ドメインなし", "yamada.taro", "yamada.taro"},
		{"空文字", "", ""},
		{"空白のみ", "   ", ""},
		{"前後空白付き", ` CORP\yamada.taro `, "yamada.taro"},
		{"バックスラッシュ複数", `CORP\sub\yamada.taro`, "yamada.taro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseAccountName(tt.input); got != tt.want {
				t.Errorf("parseAccountName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIdentityFromContext_MissingReturnsZero(t *testing.T) {
	got := IdentityFromContext(context.Background())
	if got.Authenticated {
		t.Error("expected zero identity for context without gatekeeper")
	}
}
