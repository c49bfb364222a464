package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/genie/internal/config"
	"github.com/hitoshi/genie/internal/model"
)

// fakeExecer はsessionExecerのテスト実装。
// 実行されたクエリと引数を記録し、指定キーでエラーを返す。
type fakeExecer struct {
	calls   [][]any
	failKey string
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, args)
	if f.failKey != "" && len(args) > 0 && args[0] == f.failKey {
		return nil, errors.New("connection reset")
	}
	return nil, nil
}

func testIdentity() model.Identity {
	return model.Identity{
		PrincipalID:   "0009",
		EmployeeID:    "0009",
		Email:         "taro@example.co.jp",
		AccountName:   "taro",
		Authenticated: true,
	}
}

// TestApply_SetsThreeAttributes は認証済みidentityの3属性が設定されることを検証する。
func TestApply_SetsThreeAttributes(t *testing.T) {
	b := NewBinder(slog.New(slog.NewTextHandler(io.Discard, nil)), config.BindModeFailOpen)
	execer := &fakeExecer{}

	degraded, err := b.apply(context.Background(), execer, "hcms-core", testIdentity())
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if degraded {
		t.Error("apply() degraded = true, want false")
	}

	if len(execer.calls) != 3 {
		t.Fatalf("apply() executed %d calls, want 3", len(execer.calls))
	}

	wantKeys := []string{bindKeyEmployeeID, bindKeyEmail, bindKeyAccountName}
	for i, call := range execer.calls {
		if call[0] != wantKeys[i] {
			t.Errorf("call %d key = %v, want %v", i, call[0], wantKeys[i])
		}
	}
}

// TestApply_Unauthenticated は未認証identityで属性設定がスキップされ、
// エラーにならないことを検証する。
func TestApply_Unauthenticated(t *testing.T) {
	b := NewBinder(slog.New(slog.NewTextHandler(io.Discard, nil)), config.BindModeFailOpen)
	execer := &fakeExecer{}

	identity := model.Identity{Authenticated: false}
	degraded, err := b.apply(context.Background(), execer, "hcms-core", identity)
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}
	if degraded {
		t.Error("apply() degraded = true, want false")
	}
	if len(execer.calls) != 0 {
		t.Errorf("apply() executed %d calls, want 0", len(execer.calls))
	}
}

// TestApply_FailOpen はfail_openモードで属性設定失敗がエラーにならず、
// Degradedとして続行されることを検証する。
func TestApply_FailOpen(t *testing.T) {
	b := NewBinder(slog.New(slog.NewTextHandler(io.Discard, nil)), config.BindModeFailOpen)
	execer := &fakeExecer{failKey: bindKeyEmail}

	degraded, err := b.apply(context.Background(), execer, "hcms-core", testIdentity())
	if err != nil {
		t.Fatalf("apply() error = %v, want nil（fail_openでは続行する）", err)
	}
	if !degraded {
		t.Error("apply() degraded = false, want true")
	}

	// 失敗したキー以降の属性も設定が試みられること
	if len(execer.calls) != 3 {
		t.Errorf("apply() executed %d calls, want 3", len(execer.calls))
	}
}

// TestApply_FailClosed はfail_closedモードで属性設定失敗がエラーになることを検証する。
func TestApply_FailClosed(t *testing.T) {
	b := NewBinder(slog.New(slog.NewTextHandler(io.Discard, nil)), config.BindModeFailClosed)
	execer := &fakeExecer{failKey: bindKeyEmployeeID}

	_, err := b.apply(context.Background(), execer, "hcms-core", testIdentity())
	if err == nil {
		t.Fatal("apply() error = nil, want error（fail_closedでは失敗する）")
	}
}

// TestApply_AttributeValues は属性値がidentityのフィールドから取られることを検証する。
func TestApply_AttributeValues(t *testing.T) {
	b := NewBinder(slog.New(slog.NewTextHandler(io.Discard, nil)), config.BindModeFailOpen)
	execer := &fakeExecer{}

	identity := testIdentity()
	if _, err := b.apply(context.Background(), execer, "pharma-pulse", identity); err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	wantValues := []string{identity.EmployeeID, identity.Email, identity.AccountName}
	for i, call := range execer.calls {
		if fmt.Sprint(call[1]) != wantValues[i] {
			t.Errorf("call %d value = %v, want %v", i, call[1], wantValues[i])
		}
	}
}
