package students

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rollcall/internal/face"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/session"
)

type outbox struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (o *outbox) Publish(_ context.Context, msg queue.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) resets(t *testing.T) []notify.PasswordReset {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.PasswordReset
	for _, m := range o.msgs {
		if m.Type != notify.TypePasswordReset {
			continue
		}
		var e notify.PasswordReset
		if err := m.Decode(&e); err != nil {
			t.Fatal(err)
		}
		out = append(out, e)
	}
	return out
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, "S001", Profile{Name: "Alice", Email: "alice@example.com"}, "first-pass"); err != nil {
		t.Fatal(err)
	}
	box := &outbox{}
	resets := NewResets(f.svc, session.NewMemory(ResetTTL), box)

	for _, tc := range []struct{ regNo, email string }{
		{"S404", "alice@example.com"},
		{"S001", "mallory@example.com"},
		{"S001", ""},
	} {
		if err := resets.Request(ctx, tc.regNo, tc.email); err != nil {
			t.Errorf("Request(%s, %s) = %v, want silent success", tc.regNo, tc.email, err)
		}
	}
	if got := box.resets(t); len(got) != 0 {
		t.Fatalf("mismatched requests queued mail: %+v", got)
	}

	if err := resets.Request(ctx, " S001 ", "Alice@Example.com"); err != nil {
		t.Fatal(err)
	}
	sent := box.resets(t)
	if len(sent) != 1 || sent[0].Email != "alice@example.com" || sent[0].Token == "" {
		t.Fatalf("queued = %+v", sent)
	}
	code := sent[0].Token

	if err := resets.Reset(ctx, code, "123"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("weak password = %v, want ErrInvalidInput", err)
	}
	if err := resets.Reset(ctx, "not-a-code", "second-pass"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("unknown code = %v", err)
	}
	if err := resets.Reset(ctx, code, "second-pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Login(ctx, "S001", "second-pass"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := f.svc.Login(ctx, "S001", "first-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still works: %v", err)
	}
	if err := resets.Reset(ctx, code, "third-pass"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("reused code = %v, want ErrInvalidResetToken", err)
	}
}

func TestResetRejectsOtherTokens(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, "S001", Profile{Name: "Alice", Email: "alice@example.com"}, "first-pass"); err != nil {
		t.Fatal(err)
	}
	tokens := session.NewMemory(ResetTTL)
	resets := NewResets(f.svc, tokens, &outbox{})

	other, _ := tokens.Create(ctx, "S001", "admin")
	if err := resets.Reset(ctx, other.Token, "second-pass"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("non-reset token = %v", err)
	}
}
