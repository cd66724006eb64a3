// Package students owns the student directory: enrolment with exactly one
// face, profile edits, student portal accounts and QR tokens.
package students

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"rollcall/internal/auth"
	"rollcall/internal/imagestore"
	"rollcall/internal/intake"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/qr"
	"rollcall/internal/store"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid registration number or password")
)

type Repository interface {
	Create(ctx context.Context, s *model.Student) error
	Get(ctx context.Context, regNo string) (model.Student, error)
	Exists(ctx context.Context, regNo string) (bool, error)
	List(ctx context.Context, f store.StudentFilter) ([]model.Student, error)
	Update(ctx context.Context, s model.Student) error
	SetFace(ctx context.Context, regNo string, embedding []float32, imagePath string) error
	SetPassword(ctx context.Context, regNo, hash string) error
	SetQRToken(ctx context.Context, regNo, token string) error
	Delete(ctx context.Context, regNo string) error
}

// Describer turns an enrolment frame with exactly one face into a descriptor.
type Describer interface {
	Describe(ctx context.Context, frame intake.Frame) ([]float32, error)
}

type Service struct {
	repo      Repository
	describer Describer
	images    imagestore.Store
	tokens    *auth.Tokens
	metrics   *metrics.Metrics
}

func NewService(repo Repository, describer Describer, images imagestore.Store, tokens *auth.Tokens, m *metrics.Metrics) *Service {
	return &Service{repo: repo, describer: describer, images: images, tokens: tokens, metrics: m}
}

// Profile is the editable part of a student record.
type Profile struct {
	Name       string `json:"name"`
	Department string `json:"department"`
	Year       string `json:"year"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type EnrollRequest struct {
	RegNo    string
	Profile  Profile
	Password string
	Frame    intake.Frame
}

func validate(regNo, name string) error {
	if strings.TrimSpace(regNo) == "" {
		return fmt.Errorf("%w: registration number is required", ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return nil
}

// Enroll registers a new student from a photo that must contain exactly one
// face. An existing registration number is a conflict and is never overwritten.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (model.Student, error) {
	regNo := strings.TrimSpace(req.RegNo)
	if err := validate(regNo, req.Profile.Name); err != nil {
		return model.Student{}, err
	}
	exists, err := s.repo.Exists(ctx, regNo)
	if err != nil {
		return model.Student{}, err
	}
	if exists {
		return model.Student{}, fmt.Errorf("student %s already registered: %w", regNo, store.ErrConflict)
	}

	desc, err := s.describer.Describe(ctx, req.Frame)
	if err != nil {
		s.metrics.Enrollment(string(model.CategoryStudent), "rejected")
		return model.Student{}, err
	}

	st := model.Student{
		RegNo:      regNo,
		Name:       strings.TrimSpace(req.Profile.Name),
		Department: strings.TrimSpace(req.Profile.Department),
		Year:       req.Profile.Year,
		Email:      req.Profile.Email,
		Phone:      req.Profile.Phone,
		Embedding:  desc,
	}
	if req.Password != "" {
		if st.PasswordHash, err = auth.HashPassword(req.Password); err != nil {
			return model.Student{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if st.QRToken, err = qr.NewToken(); err != nil {
		return model.Student{}, err
	}
	// Create claims regNo before the photo is written; a conflicting racer stops here.
	if err := s.repo.Create(ctx, &st); err != nil {
		return model.Student{}, err
	}
	loc, err := s.images.Put(ctx, imagestore.EnrollmentKey(regNo, req.Frame.Extension()), req.Frame.Raw, req.Frame.ContentType)
	if err == nil {
		err = s.repo.SetFace(ctx, regNo, desc, loc)
	}
	if err != nil {
		if derr := s.repo.Delete(ctx, regNo); derr != nil {
			log.Printf("students: roll back enrolment of %s: %v", regNo, derr)
		}
		return model.Student{}, fmt.Errorf("store enrolment image: %w", err)
	}
	st.ImagePath = loc
	s.metrics.Enrollment(string(model.CategoryStudent), "ok")
	return st, nil
}

// Reenroll replaces the stored descriptor and photo of an existing student.
func (s *Service) Reenroll(ctx context.Context, regNo string, frame intake.Frame) (model.Student, error) {
	if _, err := s.repo.Get(ctx, regNo); err != nil {
		return model.Student{}, err
	}
	desc, err := s.describer.Describe(ctx, frame)
	if err != nil {
		s.metrics.Enrollment(string(model.CategoryStudent), "rejected")
		return model.Student{}, err
	}
	loc, err := s.images.Put(ctx, imagestore.EnrollmentKey(regNo, frame.Extension()), frame.Raw, frame.ContentType)
	if err != nil {
		return model.Student{}, fmt.Errorf("store enrolment image: %w", err)
	}
	if err := s.repo.SetFace(ctx, regNo, desc, loc); err != nil {
		return model.Student{}, err
	}
	s.metrics.Enrollment(string(model.CategoryStudent), "ok")
	return s.repo.Get(ctx, regNo)
}

// Register creates a portal account without a face; the face can be added
// later by an admin.
func (s *Service) Register(ctx context.Context, regNo string, p Profile, password string) (model.Student, error) {
	regNo = strings.TrimSpace(regNo)
	if err := validate(regNo, p.Name); err != nil {
		return model.Student{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return model.Student{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	token, err := qr.NewToken()
	if err != nil {
		return model.Student{}, err
	}
	st := model.Student{
		RegNo:        regNo,
		Name:         strings.TrimSpace(p.Name),
		Department:   strings.TrimSpace(p.Department),
		Year:         p.Year,
		Email:        p.Email,
		Phone:        p.Phone,
		PasswordHash: hash,
		QRToken:      token,
	}
	if err := s.repo.Create(ctx, &st); err != nil {
		return model.Student{}, err
	}
	return st, nil
}

// LoginResult carries the portal token and the freshly rotated QR payload.
type LoginResult struct {
	Token     auth.Token    `json:"token"`
	Student   model.Student `json:"student"`
	QRPayload string        `json:"qr_payload"`
}

// Login checks the password, rotates the student's QR token and issues an
// access token.
func (s *Service) Login(ctx context.Context, regNo, password string) (LoginResult, error) {
	st, err := s.repo.Get(ctx, strings.TrimSpace(regNo))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !auth.CheckPassword(st.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	token, err := qr.NewToken()
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.repo.SetQRToken(ctx, st.RegNo, token); err != nil {
		return LoginResult{}, err
	}
	st.QRToken = token
	access, err := s.tokens.Issue(st.RegNo, auth.RoleStudent)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: access, Student: st, QRPayload: qr.Payload(st.RegNo, token)}, nil
}

// QRPayload returns the student's current payload, issuing a token if none exists.
func (s *Service) QRPayload(ctx context.Context, regNo string) (string, error) {
	st, err := s.repo.Get(ctx, regNo)
	if err != nil {
		return "", err
	}
	if st.QRToken == "" {
		if st.QRToken, err = qr.NewToken(); err != nil {
			return "", err
		}
		if err := s.repo.SetQRToken(ctx, regNo, st.QRToken); err != nil {
			return "", err
		}
	}
	return qr.Payload(st.RegNo, st.QRToken), nil
}

func (s *Service) Get(ctx context.Context, regNo string) (model.Student, error) {
	return s.repo.Get(ctx, regNo)
}

func (s *Service) List(ctx context.Context, f store.StudentFilter) ([]model.Student, error) {
	return s.repo.List(ctx, f)
}

// Update applies non-empty profile fields.
func (s *Service) Update(ctx context.Context, regNo string, p Profile) (model.Student, error) {
	st, err := s.repo.Get(ctx, regNo)
	if err != nil {
		return model.Student{}, err
	}
	if v := strings.TrimSpace(p.Name); v != "" {
		st.Name = v
	}
	if v := strings.TrimSpace(p.Department); v != "" {
		st.Department = v
	}
	if p.Year != "" {
		st.Year = p.Year
	}
	if p.Email != "" {
		st.Email = p.Email
	}
	if p.Phone != "" {
		st.Phone = p.Phone
	}
	if err := s.repo.Update(ctx, st); err != nil {
		return model.Student{}, err
	}
	return s.repo.Get(ctx, regNo)
}

func (s *Service) SetPassword(ctx context.Context, regNo, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.repo.SetPassword(ctx, regNo, hash)
}

// Delete removes a student; students with attendance history are kept.
func (s *Service) Delete(ctx context.Context, regNo string) error {
	return s.repo.Delete(ctx, regNo)
}
