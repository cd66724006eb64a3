package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/model"
)

// AdminRepository handles persistence for admin accounts.
type AdminRepository struct {
	db *DB
}

func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminColumns = `username, password_hash, role, email, status, embedding, created_at, updated_at`

func scanAdmin(row rowScanner) (model.Admin, error) {
	var (
		a   model.Admin
		emb sql.NullString
	)
	if err := row.Scan(&a.Username, &a.PasswordHash, &a.Role, &a.Email, &a.Status, &emb, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Admin{}, err
	}
	vec, err := decodeEmbedding(emb)
	if err != nil {
		return model.Admin{}, err
	}
	a.Embedding = vec
	return a, nil
}

func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = model.AdminActive
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO admins (`+adminColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.Username, a.PasswordHash, a.Role, a.Email, a.Status, encodeEmbedding(a.Embedding), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("admin %s: %w", a.Username, ErrConflict)
		}
		return err
	}
	return nil
}

func (r *AdminRepository) Get(ctx context.Context, username string) (model.Admin, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT `+adminColumns+` FROM admins WHERE username = ?`), username)
	a, err := scanAdmin(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Admin{}, ErrNotFound
		}
		return model.Admin{}, err
	}
	return a, nil
}

func (r *AdminRepository) List(ctx context.Context) ([]model.Admin, error) {
	rows, err := r.db.Client.QueryContext(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY created_at, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Client.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

func (r *AdminRepository) SetRole(ctx context.Context, username, role string) error {
	return r.exec(ctx, username, `UPDATE admins SET role = ?, updated_at = ? WHERE username = ?`, role, time.Now().UTC(), username)
}

func (r *AdminRepository) SetStatus(ctx context.Context, username, status string) error {
	return r.exec(ctx, username, `UPDATE admins SET status = ?, updated_at = ? WHERE username = ?`, status, time.Now().UTC(), username)
}

func (r *AdminRepository) SetPassword(ctx context.Context, username, hash string) error {
	return r.exec(ctx, username, `UPDATE admins SET password_hash = ?, updated_at = ? WHERE username = ?`, hash, time.Now().UTC(), username)
}

func (r *AdminRepository) SetFace(ctx context.Context, username string, embedding []float32) error {
	return r.exec(ctx, username, `UPDATE admins SET embedding = ?, updated_at = ? WHERE username = ?`,
		encodeEmbedding(embedding), time.Now().UTC(), username)
}

// Gallery returns active admins with an enrolled face.
func (r *AdminRepository) Gallery(ctx context.Context) ([]model.GalleryEntry, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.rebind(`
		SELECT username, username, embedding FROM admins
		WHERE embedding IS NOT NULL AND status = ?
		ORDER BY created_at, username`), model.AdminActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGallery(rows)
}

func (r *AdminRepository) exec(ctx context.Context, username, query string, args ...any) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("admin %s: %w", username, ErrNotFound)
	}
	return nil
}
