package identsync

import (
	"context"
	"database/sql"
	"fmt"
)

// HREmployee は人事データベース上の1社員を表す。
type HREmployee struct {
	EmployeeID string
	Email      string
}

// EmployeeSource は人事データベースからの社員取得インターフェース。
type EmployeeSource interface {
	// ListActiveEmployees は在籍中の全社員を返す。
	ListActiveEmployees(ctx context.Context) ([]HREmployee, error)
}

// HRReader は人事データベース（PostgreSQL）から社員一覧を読み取る。
type HRReader struct {
	db *sql.DB
}

// NewHRReader はHRReaderを生成する。
func NewHRReader(db *sql.DB) *HRReader {
	return &HRReader{db: db}
}

// ListActiveEmployees は在籍中の社員を返す。
func (r *HRReader) ListActiveEmployees(ctx context.Context) ([]HREmployee, error) {
	query := `
		SELECT employee_id, email
		FROM employees
		WHERE is_active = true AND email IS NOT NULL AND email <> ''
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("人事データベースの照会に失敗しました: %w", err)
	}
	defer rows.Close()

	var employees []HREmployee
	for rows.Next() {
		var e HREmployee
		if err := rows.Scan(&e.EmployeeID, &e.Email); err != nil {
			return nil, fmt.Errorf("社員レコードの読み取りに失敗しました: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

// compile-time check
var _ EmployeeSource = (*HRReader)(nil)
