package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/model"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

const (
	ClaimsKey  = "claims"
	SessionKey = "session"
)

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// StudentAuth enforces bearer JWT tokens carrying the student role.
func StudentAuth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := tokens.Parse(tokenStr)
		if err != nil || claims.Role != RoleStudent {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// SessionToken reads the admin session token from X-Session-Token or a bearer header.
func SessionToken(c *gin.Context) string {
	if tok := c.GetHeader("X-Session-Token"); tok != "" {
		return tok
	}
	return bearerToken(c)
}

// Accounts looks up the current state of an admin account.
type Accounts interface {
	Get(ctx context.Context, username string) (model.Admin, error)
}

// AdminSession verifies the admin session token on every call and reloads the
// account behind it, so role changes and deactivation apply immediately.
func AdminSession(sessions session.Store, accounts Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := SessionToken(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
			return
		}
		ctx := c.Request.Context()
		s, err := sessions.Verify(ctx, tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		a, err := accounts.Get(ctx, s.Username)
		switch {
		case errors.Is(err, store.ErrNotFound) || (err == nil && !a.Active()):
			if err := sessions.Delete(ctx, tok); err != nil {
				log.Printf("auth: drop session of %s: %v", s.Username, err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account is no longer active"})
			return
		case err != nil:
			log.Printf("auth: load admin %s: %v", s.Username, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		s.Role = a.Role
		c.Set(SessionKey, s)
		c.Next()
	}
}

// Require aborts with 403 unless the session's role grants perm.
func Require(roles *Roles, perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok || !roles.Allowed(s.Role, perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied: " + perm})
			return
		}
		c.Next()
	}
}

func CurrentSession(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return session.Session{}, false
	}
	s, ok := v.(session.Session)
	return s, ok
}

func CurrentClaims(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return Claims{}, false
	}
	cl, ok := v.(Claims)
	return cl, ok
}
