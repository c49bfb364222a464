package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/genie/internal/model"
)

// TestRouterIntegration_GatekeeperWithChiRouter は
// ゲートキーパー→レート制限のミドルウェアチェーンがchi.Routerで
// 正しく動作することを検証する。
func TestRouterIntegration_GatekeeperWithChiRouter(t *testing.T) {
	repo := &fakeUserMappingRepository{
		mappings: map[string]*model.UserMapping{
			"yamada.taro": {
				AccountName: "yamada.taro",
				EmployeeID:  "E10001",
				Email:       "yamada.taro@example.co.jp",
				IsActive:    true,
			},
		},
	}

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    200,
		QueryRate:       1,
		QueryBurst:      1,
		CleanupInterval: 1 * time.Minute,
	})
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewGatekeeperMiddleware(repo, testLogger()))
	r.Use(rl.GeneralMiddleware())

	// ヘルスチェック（認証不要）
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// 自分の識別情報を返すエンドポイント
	r.Get("/api/whoami", func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		json.NewEncoder(w).Encode(map[string]any{
			"authenticated": identity.Authenticated,
			"employee_id":   identity.EmployeeID,
			"account_name":  identity.AccountName,
		})
	})

	// AIクエリはクエリ専用のレート制限を重ねる
	r.Group(func(r chi.Router) {
		r.Use(rl.QueryMiddleware())
		r.Post("/api/query", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"result": "done"})
		})
	})

	// テスト1: ヘルスチェックはヘッダなしで通る
	t.Run("health_without_header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
	})

	// テスト2: whoamiは解決済みIdentityを返す
	t.Run("whoami_resolved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		req.Header.Set("X-Remote-User", `CORP\yamada.taro`)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}

		var body map[string]any
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["authenticated"] != true {
			t.Error("expected authenticated = true")
		}
		if body["employee_id"] != "E10001" {
			t.Errorf("employee_id = %v, want %q", body["employee_id"], "E10001")
		}
	})

	// テスト3: 未登録アカウントは未認証として通る（401にしない）
	t.Run("whoami_unregistered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		req.Header.Set("X-Remote-User", `CORP\unknown.user`)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}

		var body map[string]any
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["authenticated"] != false {
			t.Error("expected authenticated = false for unregistered account")
		}
	})

	// テスト4: クエリ専用レート制限はバースト超過で429
	t.Run("query_rate_limited", func(t *testing.T) {
		req1 := httptest.NewRequest(http.MethodPost, "/api/query", nil)
		req1.Header.Set("X-Remote-User", `CORP\yamada.taro`)
		w1 := httptest.NewRecorder()
		r.ServeHTTP(w1, req1)

		if w1.Result().StatusCode != http.StatusOK {
			t.Fatalf("first query: status = %d, want %d", w1.Result().StatusCode, http.StatusOK)
		}

		req2 := httptest.NewRequest(http.MethodPost, "/api/query", nil)
		req2.Header.Set("X-Remote-User", `CORP\yamada.taro`)
		w2 := httptest.NewRecorder()
		r.ServeHTTP(w2, req2)

		if w2.Result().StatusCode != http.StatusTooManyRequests {
			t.Errorf("second query: status = %d, want %d", w2.Result().StatusCode, http.StatusTooManyRequests)
		}
	})

	// テスト5: クエリのレート制限は一般APIに波及しない
	t.Run("general_unaffected_by_query_limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		req.Header.Set("X-Remote-User", `CORP\yamada.taro`)
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
	})
}
