package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/model"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

type accounts map[string]model.Admin

func (a accounts) Get(_ context.Context, username string) (model.Admin, error) {
	adm, ok := a[username]
	if !ok {
		return model.Admin{}, store.ErrNotFound
	}
	return adm, nil
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", "rollcall", time.Hour)
	tok, err := tokens.Issue("S001", RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := tokens.Parse(tok.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "S001" || claims.Role != RoleStudent {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewTokens("other", "rollcall", time.Hour).Parse(tok.AccessToken); err == nil {
		t.Error("token signed with a different key should fail")
	}
	if _, err := NewTokens("secret", "someone-else", time.Hour).Parse(tok.AccessToken); err == nil {
		t.Error("issuer mismatch should fail")
	}
	expired, _ := NewTokens("secret", "rollcall", -time.Minute).Issue("S001", RoleStudent)
	if _, err := tokens.Parse(expired.AccessToken); err == nil {
		t.Error("expired token should fail")
	}
}

func TestPasswords(t *testing.T) {
	if _, err := HashPassword("123"); err != ErrWeakPassword {
		t.Errorf("short password err = %v", err)
	}
	h, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(h, "correct horse") || CheckPassword(h, "wrong") || CheckPassword("", "") {
		t.Error("CheckPassword results wrong")
	}
}

func TestRoles(t *testing.T) {
	roles, err := LoadRoles()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		role, perm string
		want       bool
	}{
		{"super_admin", PermManageAdmins, true},
		{"admin", PermDelete, true},
		{"admin", PermManageAdmins, false},
		{"viewer", PermView, true},
		{"viewer", PermEdit, false},
		{"ghost", PermView, false},
	}
	for _, tt := range tests {
		if got := roles.Allowed(tt.role, tt.perm); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v", tt.role, tt.perm, got)
		}
	}
	if !roles.Valid("viewer") || roles.Valid("root") {
		t.Error("Valid results wrong")
	}
	if got := roles.Names(); len(got) != 3 || got[0] != "admin" {
		t.Errorf("Names = %v", got)
	}
	if _, err := ParseRoles([]byte("roles: {}")); err == nil {
		t.Error("empty role table should fail")
	}
}

func TestAdminSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := session.NewMemory(time.Hour)
	roles, _ := LoadRoles()
	viewer, _ := sessions.Create(context.Background(), "vic", "viewer")
	known := accounts{"vic": {Username: "vic", Role: "viewer", Status: model.AdminActive}}

	r := gin.New()
	r.GET("/read", AdminSession(sessions, known), Require(roles, PermView), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/write", AdminSession(sessions, known), Require(roles, PermEdit), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		path   string
		token  string
		header string
		want   int
	}{
		{"no token", "/read", "", "", http.StatusUnauthorized},
		{"bad token", "/read", "nope", "X-Session-Token", http.StatusUnauthorized},
		{"viewer reads", "/read", viewer.Token, "X-Session-Token", http.StatusOK},
		{"viewer via bearer", "/read", "Bearer " + viewer.Token, "Authorization", http.StatusOK},
		{"viewer cannot write", "/write", viewer.Token, "X-Session-Token", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAdminSessionUsesCurrentAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	sessions := session.NewMemory(time.Hour)
	roles, _ := LoadRoles()
	known := accounts{"ed": {Username: "ed", Role: "admin", Status: model.AdminActive}}
	sess, _ := sessions.Create(ctx, "ed", "admin")

	r := gin.New()
	r.GET("/write", AdminSession(sessions, known), Require(roles, PermEdit), func(c *gin.Context) { c.Status(http.StatusOK) })
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/write", nil)
		req.Header.Set("X-Session-Token", sess.Token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if got := call(); got != http.StatusOK {
		t.Fatalf("admin write = %d", got)
	}
	known["ed"] = model.Admin{Username: "ed", Role: "viewer", Status: model.AdminActive}
	if got := call(); got != http.StatusForbidden {
		t.Errorf("demoted write = %d, want 403", got)
	}
	known["ed"] = model.Admin{Username: "ed", Role: "admin", Status: model.AdminInactive}
	if got := call(); got != http.StatusUnauthorized {
		t.Errorf("deactivated write = %d, want 401", got)
	}
	if _, err := sessions.Verify(ctx, sess.Token); err == nil {
		t.Error("session of a deactivated admin should be dropped")
	}
}

func TestStudentAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokens("secret", "rollcall", time.Hour)
	r := gin.New()
	r.GET("/me", StudentAuth(tokens), func(c *gin.Context) {
		cl, _ := CurrentClaims(c)
		c.String(http.StatusOK, cl.Subject)
	})

	good, _ := tokens.Issue("S001", RoleStudent)
	adminish, _ := tokens.Issue("root", "admin")

	for name, tc := range map[string]struct {
		token string
		want  int
	}{
		"student":    {good.AccessToken, http.StatusOK},
		"wrong role": {adminish.AccessToken, http.StatusUnauthorized},
		"missing":    {"", http.StatusUnauthorized},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusOK && w.Body.String() != "S001" {
				t.Errorf("body = %q", w.Body.String())
			}
		})
	}
}
