package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollcall/internal/model"
)

// StudentFilter narrows ListStudents. Zero values match everything.
type StudentFilter struct {
	Department string
	Search     string
}

// StudentRepository handles persistence for students.
type StudentRepository struct {
	db *DB
}

func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `reg_no, name, department, year, email, phone, password_hash, embedding, image_path, qr_token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (model.Student, error) {
	var (
		s   model.Student
		emb sql.NullString
	)
	if err := row.Scan(&s.RegNo, &s.Name, &s.Department, &s.Year, &s.Email, &s.Phone,
		&s.PasswordHash, &emb, &s.ImagePath, &s.QRToken, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Student{}, err
	}
	vec, err := decodeEmbedding(emb)
	if err != nil {
		return model.Student{}, err
	}
	s.Embedding = vec
	return s, nil
}

func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.RegNo, s.Name, s.Department, s.Year, s.Email, s.Phone, s.PasswordHash,
		encodeEmbedding(s.Embedding), s.ImagePath, s.QRToken, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("student %s: %w", s.RegNo, ErrConflict)
		}
		return err
	}
	return nil
}

func (r *StudentRepository) Get(ctx context.Context, regNo string) (model.Student, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT `+studentColumns+` FROM students WHERE reg_no = ?`), regNo)
	s, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Student{}, ErrNotFound
		}
		return model.Student{}, err
	}
	return s, nil
}

func (r *StudentRepository) Exists(ctx context.Context, regNo string) (bool, error) {
	var n int
	err := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT COUNT(*) FROM students WHERE reg_no = ?`), regNo).Scan(&n)
	return n > 0, err
}

func (r *StudentRepository) List(ctx context.Context, f StudentFilter) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	var (
		clauses []string
		args    []any
	)
	if f.Department != "" {
		clauses = append(clauses, "department = ?")
		args = append(args, f.Department)
	}
	if f.Search != "" {
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(reg_no) LIKE ?)")
		like := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, like, like)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY reg_no"

	rows, err := r.db.Client.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	return n, err
}

// Update writes the editable profile fields.
func (r *StudentRepository) Update(ctx context.Context, s model.Student) error {
	return r.exec(ctx, s.RegNo, `
		UPDATE students SET name = ?, department = ?, year = ?, email = ?, phone = ?, updated_at = ?
		WHERE reg_no = ?`,
		s.Name, s.Department, s.Year, s.Email, s.Phone, time.Now().UTC(), s.RegNo)
}

// SetFace overwrites the stored descriptor and enrolment image.
func (r *StudentRepository) SetFace(ctx context.Context, regNo string, embedding []float32, imagePath string) error {
	return r.exec(ctx, regNo, `UPDATE students SET embedding = ?, image_path = ?, updated_at = ? WHERE reg_no = ?`,
		encodeEmbedding(embedding), imagePath, time.Now().UTC(), regNo)
}

func (r *StudentRepository) SetPassword(ctx context.Context, regNo, hash string) error {
	return r.exec(ctx, regNo, `UPDATE students SET password_hash = ?, updated_at = ? WHERE reg_no = ?`,
		hash, time.Now().UTC(), regNo)
}

func (r *StudentRepository) SetQRToken(ctx context.Context, regNo, token string) error {
	return r.exec(ctx, regNo, `UPDATE students SET qr_token = ?, updated_at = ? WHERE reg_no = ?`,
		token, time.Now().UTC(), regNo)
}

// Delete removes a student without attendance history. Students with history
// are kept and ErrConflict is returned.
func (r *StudentRepository) Delete(ctx context.Context, regNo string) error {
	var n int
	if err := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT COUNT(*) FROM attendance WHERE reg_no = ?`), regNo).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("student %s has %d attendance records: %w", regNo, n, ErrConflict)
	}
	err := r.exec(ctx, regNo, `DELETE FROM students WHERE reg_no = ?`, regNo)
	if err != nil && isForeignKeyViolation(err) {
		return fmt.Errorf("student %s: %w", regNo, ErrConflict)
	}
	return err
}

// Gallery returns every student with a stored descriptor.
func (r *StudentRepository) Gallery(ctx context.Context) ([]model.GalleryEntry, error) {
	rows, err := r.db.Client.QueryContext(ctx, `SELECT reg_no, name, embedding FROM students WHERE embedding IS NOT NULL ORDER BY created_at, reg_no`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGallery(rows)
}

func (r *StudentRepository) exec(ctx context.Context, regNo, query string, args ...any) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("student %s: %w", regNo, ErrNotFound)
	}
	return nil
}

func scanGallery(rows *sql.Rows) ([]model.GalleryEntry, error) {
	var out []model.GalleryEntry
	for rows.Next() {
		var (
			e   model.GalleryEntry
			emb sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &emb); err != nil {
			return nil, err
		}
		vec, err := decodeEmbedding(emb)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			continue
		}
		e.Descriptor = vec
		out = append(out, e)
	}
	return out, rows.Err()
}
