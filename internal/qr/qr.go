// Package qr issues per-student QR tokens and renders/parses the attendance
// payload "ATTENDANCE:<reg_no>:<token>".
package qr

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	prefix      = "ATTENDANCE"
	TokenLength = 32
	DefaultSize = 256
	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var ErrInvalidPayload = errors.New("invalid QR payload")

// NewToken returns TokenLength random alphanumeric characters.
func NewToken() (string, error) {
	b := make([]byte, TokenLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

func Payload(regNo, token string) string {
	return prefix + ":" + regNo + ":" + token
}

// Parse splits a scanned payload into registration number and token.
func Parse(payload string) (regNo, token string, err error) {
	parts := strings.Split(strings.TrimSpace(payload), ":")
	if len(parts) != 3 || parts[0] != prefix || parts[1] == "" || parts[2] == "" {
		return "", "", ErrInvalidPayload
	}
	return parts[1], parts[2], nil
}

// TokenMatches compares in constant time.
func TokenMatches(stored, presented string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// PNG renders the payload with high error correction.
func PNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.High, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
