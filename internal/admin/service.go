// Package admin manages admin accounts, their roles and their sessions.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"rollcall/internal/auth"
	"rollcall/internal/intake"
	"rollcall/internal/matcher"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactive           = errors.New("admin account is inactive")
	ErrInvalidRole        = errors.New("invalid role")
	ErrProtected          = errors.New("the bootstrap admin cannot be deactivated")
	ErrFaceNotRecognized  = errors.New("face not recognized")
	ErrInvalidInput       = errors.New("invalid input")
)

type Repository interface {
	Create(ctx context.Context, a *model.Admin) error
	Get(ctx context.Context, username string) (model.Admin, error)
	List(ctx context.Context) ([]model.Admin, error)
	Count(ctx context.Context) (int, error)
	SetRole(ctx context.Context, username, role string) error
	SetStatus(ctx context.Context, username, status string) error
	SetPassword(ctx context.Context, username, hash string) error
	SetFace(ctx context.Context, username string, embedding []float32) error
}

// Recognizer describes enrolment frames and identifies admins by face.
type Recognizer interface {
	Describe(ctx context.Context, frame intake.Frame) ([]float32, error)
	Identify(ctx context.Context, frame intake.Frame, category model.Category) (matcher.Result, error)
}

type Service struct {
	repo       Repository
	sessions   session.Store
	roles      *auth.Roles
	recognizer Recognizer
	metrics    *metrics.Metrics
	bootstrap  string
}

// NewService wires the account store. bootstrap is the username created by
// Bootstrap; that account can never be deactivated.
func NewService(repo Repository, sessions session.Store, roles *auth.Roles, recognizer Recognizer, m *metrics.Metrics, bootstrap string) *Service {
	return &Service{
		repo:       repo,
		sessions:   sessions,
		roles:      roles,
		recognizer: recognizer,
		metrics:    m,
		bootstrap:  bootstrap,
	}
}

// Bootstrap creates the initial super admin when no admin exists yet.
func (s *Service) Bootstrap(ctx context.Context, username, password, email string) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if password == "" {
		return errors.New("no admin exists and ADMIN_PASSWORD is not set")
	}
	if _, err := s.Add(ctx, username, password, auth.RoleSuperAdmin, email); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Printf("admin: created bootstrap super admin %q", username)
	return nil
}

// Add creates an active admin account.
func (s *Service) Add(ctx context.Context, username, password, role, email string) (model.Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.Admin{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if !s.roles.Valid(role) {
		return model.Admin{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return model.Admin{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	a := model.Admin{Username: username, PasswordHash: hash, Role: role, Email: email, Status: model.AdminActive}
	if err := s.repo.Create(ctx, &a); err != nil {
		return model.Admin{}, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context) ([]model.Admin, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, username string) (model.Admin, error) {
	return s.repo.Get(ctx, username)
}

func (s *Service) Roles() *auth.Roles { return s.roles }

func (s *Service) UpdateRole(ctx context.Context, username, role string) error {
	if !s.roles.Valid(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.repo.SetRole(ctx, username, role)
}

func (s *Service) Deactivate(ctx context.Context, username string) error {
	if username == s.bootstrap {
		return ErrProtected
	}
	return s.repo.SetStatus(ctx, username, model.AdminInactive)
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	a, err := s.repo.Get(ctx, username)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(a.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	return s.ResetPassword(ctx, username, newPassword)
}

// ResetPassword sets a new password without checking the old one.
func (s *Service) ResetPassword(ctx context.Context, username, newPassword string) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.repo.SetPassword(ctx, username, hash)
}

// Verify checks credentials and account status.
func (s *Service) Verify(ctx context.Context, username, password string) (model.Admin, error) {
	a, err := s.repo.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Admin{}, ErrInvalidCredentials
		}
		return model.Admin{}, err
	}
	if !auth.CheckPassword(a.PasswordHash, password) {
		return model.Admin{}, ErrInvalidCredentials
	}
	if !a.Active() {
		return model.Admin{}, ErrInactive
	}
	return a, nil
}

// Login verifies a password and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (session.Session, model.Admin, error) {
	a, err := s.Verify(ctx, username, password)
	if err != nil {
		return session.Session{}, model.Admin{}, err
	}
	sess, err := s.sessions.Create(ctx, a.Username, a.Role)
	return sess, a, err
}

// FaceLogin matches the frame against the admin gallery and opens a session.
func (s *Service) FaceLogin(ctx context.Context, frame intake.Frame) (session.Session, model.Admin, matcher.Result, error) {
	res, err := s.recognizer.Identify(ctx, frame, model.CategoryAdmin)
	if err != nil {
		return session.Session{}, model.Admin{}, res, err
	}
	if !res.Matched {
		return session.Session{}, model.Admin{}, res, ErrFaceNotRecognized
	}
	a, err := s.repo.Get(ctx, res.ID)
	if err != nil {
		return session.Session{}, model.Admin{}, res, err
	}
	if !a.Active() {
		return session.Session{}, model.Admin{}, res, ErrInactive
	}
	sess, err := s.sessions.Create(ctx, a.Username, a.Role)
	return sess, a, res, err
}

// EnrollFace stores the admin's descriptor; the frame must hold exactly one
// face. The photo itself is not kept.
func (s *Service) EnrollFace(ctx context.Context, username string, frame intake.Frame) error {
	if _, err := s.repo.Get(ctx, username); err != nil {
		return err
	}
	desc, err := s.recognizer.Describe(ctx, frame)
	if err != nil {
		s.metrics.Enrollment(string(model.CategoryAdmin), "rejected")
		return err
	}
	if err := s.repo.SetFace(ctx, username, desc); err != nil {
		return err
	}
	s.metrics.Enrollment(string(model.CategoryAdmin), "ok")
	return nil
}

// HasFace reports whether the admin has an enrolled descriptor.
func (s *Service) HasFace(ctx context.Context, username string) (bool, error) {
	a, err := s.repo.Get(ctx, username)
	if err != nil {
		return false, err
	}
	return len(a.Embedding) > 0, nil
}

func (s *Service) Session(ctx context.Context, token string) (session.Session, error) {
	return s.sessions.Verify(ctx, token)
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}
