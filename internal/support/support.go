// Package support handles student help-desk tickets.
package support

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/model"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidStatus = errors.New("invalid ticket status")
)

type Repository interface {
	Create(ctx context.Context, t *model.Ticket) error
	Get(ctx context.Context, id string) (model.Ticket, error)
	List(ctx context.Context, status string) ([]model.Ticket, error)
	Update(ctx context.Context, t model.Ticket) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewTicketID returns TKT<yyyymmddhhmmss>-<4 hex>.
func NewTicketID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("TKT%s-%s", at.Format("20060102150405"), suffix)
}

type NewTicket struct {
	StudentName string `json:"student_name" binding:"required"`
	RegNo       string `json:"registration_number"`
	Email       string `json:"email" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	Message     string `json:"message" binding:"required"`
}

func (s *Service) Create(ctx context.Context, in NewTicket) (model.Ticket, error) {
	if strings.TrimSpace(in.StudentName) == "" || strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.Message) == "" {
		return model.Ticket{}, fmt.Errorf("%w: name, subject and message are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return model.Ticket{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	now := s.now()
	t := model.Ticket{
		ID:          NewTicketID(now),
		StudentName: strings.TrimSpace(in.StudentName),
		RegNo:       strings.TrimSpace(in.RegNo),
		Email:       in.Email,
		Subject:     strings.TrimSpace(in.Subject),
		Message:     in.Message,
		Status:      model.TicketOpen,
		CreatedAt:   now.UTC(),
	}
	if err := s.repo.Create(ctx, &t); err != nil {
		return model.Ticket{}, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, status string) ([]model.Ticket, error) {
	if status != "" && !model.ValidTicketStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.List(ctx, status)
}

func (s *Service) Get(ctx context.Context, id string) (model.Ticket, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus sets the status and notes. Moving to resolved stamps
// resolved_at; moving away from resolved clears it.
func (s *Service) UpdateStatus(ctx context.Context, id, status, notes string) (model.Ticket, error) {
	if !model.ValidTicketStatus(status) {
		return model.Ticket{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Ticket{}, err
	}
	t.Status = status
	if notes != "" {
		t.AdminNotes = notes
	}
	switch {
	case status == model.TicketResolved && t.ResolvedAt == nil:
		now := s.now().UTC()
		t.ResolvedAt = &now
	case status != model.TicketResolved:
		t.ResolvedAt = nil
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return model.Ticket{}, err
	}
	return t, nil
}

type Stats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Open:       counts[model.TicketOpen],
		InProgress: counts[model.TicketInProgress],
		Resolved:   counts[model.TicketResolved],
	}
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}
