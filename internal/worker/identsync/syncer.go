package identsync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/genie/internal/model"
	"github.com/hitoshi/genie/internal/repository"
)

// Syncer はディレクトリアカウントと人事システム社員を照合し、
// ユーザー対応表を同期するバックグラウンドジョブ。
// メールアドレスをキーに両者を突き合わせ、双方に存在するものだけを
// 有効なマッピングとして登録する。
type Syncer struct {
	directory DirectorySource
	employees EmployeeSource
	mappings  repository.UserMappingRepository
	logger    *slog.Logger

	interval     time.Duration
	errorBackoff time.Duration
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
func NewSyncer(
	directory DirectorySource,
	employees EmployeeSource,
	mappings repository.UserMappingRepository,
	logger *slog.Logger,
	interval time.Duration,
	errorBackoff time.Duration,
) *Syncer {
	return &Syncer{
		directory:    directory,
		employees:    employees,
		mappings:     mappings,
		logger:       logger,
		interval:     interval,
		errorBackoff: errorBackoff,
	}
}

// Start は同期ジョブを起動する。起動直後に1回実行し、以降は
// 成功時interval、失敗時errorBackoffの間隔で繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("ユーザー同期ジョブを開始しました",
		slog.Duration("interval", s.interval),
		slog.Duration("error_backoff", s.errorBackoff),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ユーザー同期ジョブを停止しました")
			return
		case <-timer.C:
		}

		wait := s.interval
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("ユーザー同期に失敗しました。バックオフ後に再試行します",
				slog.String("error", err.Error()),
			)
			wait = s.errorBackoff
		}
		timer.Reset(wait)
	}
}

// RunOnce は1回の同期サイクルを実行する。
// ディレクトリと人事システムをメールアドレスで突き合わせ、
// 双方に存在するアカウントをアップサートし、今回のサイクルで
// 同期されなかった既存マッピングを無効化する。
func (s *Syncer) RunOnce(ctx context.Context) error {
	start := time.Now()

	entries, err := s.directory.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("ディレクトリの取得に失敗しました: %w", err)
	}

	employees, err := s.employees.ListActiveEmployees(ctx)
	if err != nil {
		return fmt.Errorf("人事システムの取得に失敗しました: %w", err)
	}

	// 人事システム側をメールアドレスで索引。重複メールは信頼できないため除外する
	byEmail := indexByEmail(employees)

	synced := 0
	for _, entry := range entries {
		email := normalizeEmail(entry.Email)
		if email == "" || entry.AccountName == "" {
			continue
		}
		employee, ok := byEmail[email]
		if !ok {
			continue
		}

		mapping := &model.UserMapping{
			ID:           uuid.New().String(),
			AccountName:  entry.AccountName,
			Email:        email,
			DisplayName:  entry.DisplayName,
			EmployeeID:   employee.EmployeeID,
			IsActive:     true,
			LastSyncedAt: start,
		}
		if err := s.mappings.Upsert(ctx, mapping); err != nil {
			return fmt.Errorf("ユーザー対応の保存に失敗しました (%s): %w", entry.AccountName, err)
		}
		synced++
	}

	// 今回のサイクルで同期されなかったマッピングは退職・異動とみなして無効化
	deactivated, err := s.mappings.DeactivateNotSyncedSince(ctx, start)
	if err != nil {
		return fmt.Errorf("未同期ユーザーの無効化に失敗しました: %w", err)
	}

	s.logger.Info("ユーザー同期が完了しました",
		slog.Int("directory_accounts", len(entries)),
		slog.Int("hr_employees", len(employees)),
		slog.Int("synced", synced),
		slog.Int("deactivated", deactivated),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// indexByEmail は社員一覧をメールアドレスで索引する。
// 同一メールアドレスが複数の社員に紐付く場合はどちらも登録しない。
func indexByEmail(employees []HREmployee) map[string]HREmployee {
	byEmail := make(map[string]HREmployee, len(employees))
	duplicates := make(map[string]bool)

	for _, e := range employees {
		email := normalizeEmail(e.Email)
		if email == "" {
			continue
		}
		if _, exists := byEmail[email]; exists {
			duplicates[email] = true
			continue
		}
		byEmail[email] = e
	}

	for email := range duplicates {
		delete(byEmail, email)
	}
	return byEmail
}

// normalizeEmail はメールアドレスを比較用に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
