package students

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"rollcall/internal/auth"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

// ResetRole marks tokens in the reset store as password reset grants.
const ResetRole = "password_reset"

// ResetTTL is how long a reset code stays valid.
const ResetTTL = 30 * time.Minute

var ErrInvalidResetToken = errors.New("invalid or expired reset code")

type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Resets issues single-use password reset codes and mails them to the
// address already on file.
type Resets struct {
	svc       *Service
	tokens    session.Store
	publisher Publisher
}

// NewResets uses tokens for reset codes only; its TTL bounds their lifetime.
func NewResets(svc *Service, tokens session.Store, publisher Publisher) *Resets {
	return &Resets{svc: svc, tokens: tokens, publisher: publisher}
}

// Request queues a reset mail when regNo exists and email matches its stored
// address. Unknown students and mismatched addresses succeed silently.
func (r *Resets) Request(ctx context.Context, regNo, email string) error {
	st, err := r.svc.repo.Get(ctx, strings.TrimSpace(regNo))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if st.Email == "" || !strings.EqualFold(st.Email, strings.TrimSpace(email)) {
		log.Printf("students: password reset for %s refused, address mismatch", st.RegNo)
		return nil
	}

	grant, err := r.tokens.Create(ctx, st.RegNo, ResetRole)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}
	msg, err := notify.PasswordResetMessage(notify.PasswordReset{
		RegNo:     st.RegNo,
		Name:      st.Name,
		Email:     st.Email,
		Token:     grant.Token,
		ExpiresAt: grant.ExpiresAt,
	})
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.tokens.Delete(ctx, grant.Token)
		return fmt.Errorf("queue reset mail: %w", err)
	}
	return nil
}

// Reset sets a new password with a code from Request. A code works once.
func (r *Resets) Reset(ctx context.Context, code, password string) error {
	grant, err := r.tokens.Verify(ctx, code)
	if err != nil || grant.Role != ResetRole {
		if err != nil && !errors.Is(err, session.ErrInvalid) {
			return err
		}
		return ErrInvalidResetToken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := r.tokens.Delete(ctx, code); err != nil {
		return err
	}
	return r.svc.repo.SetPassword(ctx, grant.Username, hash)
}
