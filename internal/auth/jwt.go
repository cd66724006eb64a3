package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleStudent = "student"

// Claims represents the JWT payload of a student portal token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a signed access token and its expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Tokens signs and validates HS256 access tokens.
type Tokens struct {
	Key    string
	Issuer string
	TTL    time.Duration
}

func NewTokens(key, issuer string, ttl time.Duration) *Tokens {
	return &Tokens{Key: key, Issuer: issuer, TTL: ttl}
}

// Issue signs an access token for subject.
func (t *Tokens) Issue(subject, role string) (Token, error) {
	now := time.Now()
	exp := now.Add(t.TTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.Key))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: exp}, nil
}

// Parse validates a token and returns claims.
func (t *Tokens) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(t.Key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if t.Issuer != "" && claims.Issuer != t.Issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
