package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/model"
)

// TicketRepository persists support tickets.
type TicketRepository struct {
	db *DB
}

func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, student_name, reg_no, email, subject, message, status, admin_notes, created_at, resolved_at`

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t        model.Ticket
		resolved sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.StudentName, &t.RegNo, &t.Email, &t.Subject, &t.Message, &t.Status, &t.AdminNotes, &t.CreatedAt, &resolved); err != nil {
		return model.Ticket{}, err
	}
	if resolved.Valid {
		ts := resolved.Time
		t.ResolvedAt = &ts
	}
	return t, nil
}

func (r *TicketRepository) Create(ctx context.Context, t *model.Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = model.TicketOpen
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		INSERT INTO support_tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.StudentName, t.RegNo, t.Email, t.Subject, t.Message, t.Status, t.AdminNotes, t.CreatedAt, nullTime(t.ResolvedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ticket %s: %w", t.ID, ErrConflict)
		}
		return err
	}
	return nil
}

func (r *TicketRepository) Get(ctx context.Context, id string) (model.Ticket, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.rebind(`SELECT `+ticketColumns+` FROM support_tickets WHERE id = ?`), id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Ticket{}, ErrNotFound
		}
		return model.Ticket{}, err
	}
	return t, nil
}

// List returns tickets newest first, optionally restricted to one status.
func (r *TicketRepository) List(ctx context.Context, status string) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Client.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update stores the new status, notes and resolution time.
func (r *TicketRepository) Update(ctx context.Context, t model.Ticket) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.rebind(`
		UPDATE support_tickets SET status = ?, admin_notes = ?, resolved_at = ? WHERE id = ?`),
		t.Status, t.AdminNotes, nullTime(t.ResolvedAt), t.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ticket %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// CountByStatus returns the number of tickets per status.
func (r *TicketRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Client.QueryContext(ctx, `SELECT status, COUNT(*) FROM support_tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
