package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rollcall/internal/model"
)

// AttendanceFilter selects a date range (inclusive, YYYY-MM-DD) and optionally
// one student.
type AttendanceFilter struct {
	From  string
	To    string
	RegNo string
	Limit int
}

// AttendanceRepository persists attendance rows.
type AttendanceRepository struct {
	db *DB
}

func NewAttendanceRepository(db *DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Exists reports whether any row exists for regNo on date, regardless of method.
func (r *AttendanceRepository) Exists(ctx context.Context, regNo, date string) (bool, error) {
	var n int
	err := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT COUNT(*) FROM attendance WHERE reg_no = ? AND att_date = ?`), regNo, date).Scan(&n)
	return n > 0, err
}

// Insert writes a new row. A second row for the same (reg_no, date) is
// refused by the unique index and reported as ErrDuplicate.
func (r *AttendanceRepository) Insert(ctx context.Context, rec *model.AttendanceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO attendance (id, reg_no, att_date, marked_at, method, status, proof_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.RegNo, rec.Date, rec.Timestamp.UTC(), string(rec.Method), rec.Status, rec.ProofPath)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s on %s: %w", rec.RegNo, rec.Date, ErrDuplicate)
		}
		return err
	}
	return nil
}

// List returns rows joined with the student's name and department, newest first.
func (r *AttendanceRepository) List(ctx context.Context, f AttendanceFilter) ([]model.AttendanceRecord, error) {
	query := `
		SELECT a.id, a.reg_no, COALESCE(s.name, ''), COALESCE(s.department, ''), a.att_date, a.marked_at, a.method, a.status, a.proof_path
		FROM attendance a
		LEFT JOIN students s ON s.reg_no = a.reg_no`
	var (
		clauses []string
		args    []any
	)
	if f.From != "" {
		clauses = append(clauses, "a.att_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "a.att_date <= ?")
		args = append(args, f.To)
	}
	if f.RegNo != "" {
		clauses = append(clauses, "a.reg_no = ?")
		args = append(args, f.RegNo)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.att_date DESC, a.marked_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.Client.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRecord
	for rows.Next() {
		var (
			rec    model.AttendanceRecord
			method string
		)
		if err := rows.Scan(&rec.ID, &rec.RegNo, &rec.Name, &rec.Department, &rec.Date, &rec.Timestamp, &method, &rec.Status, &rec.ProofPath); err != nil {
			return nil, err
		}
		rec.Method = model.Method(method)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *AttendanceRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`).Scan(&n)
	return n, err
}
