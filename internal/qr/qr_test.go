package qr

import (
	"bytes"
	"errors"
	"image/png"
	"regexp"
	"testing"
)

func TestNewToken(t *testing.T) {
	re := regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
	a, err := NewToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewToken()
	if !re.MatchString(a) {
		t.Errorf("token %q has wrong shape", a)
	}
	if a == b {
		t.Error("two tokens should differ")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantReg   string
		wantToken string
		wantErr   bool
	}{
		{"valid", "ATTENDANCE:S001:abc123", "S001", "abc123", false},
		{"whitespace", "  ATTENDANCE:S001:abc123\n", "S001", "abc123", false},
		{"wrong prefix", "PRESENT:S001:abc", "", "", true},
		{"missing token", "ATTENDANCE:S001:", "", "", true},
		{"too many parts", "ATTENDANCE:S:0:1", "", "", true},
		{"garbage", "hello", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, tok, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("err = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil || reg != tt.wantReg || tok != tt.wantToken {
				t.Errorf("Parse = %q, %q, %v", reg, tok, err)
			}
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	reg, tok, err := Parse(Payload("CS21-001", "tok"))
	if err != nil || reg != "CS21-001" || tok != "tok" {
		t.Errorf("round trip = %q %q %v", reg, tok, err)
	}
}

func TestTokenMatches(t *testing.T) {
	if !TokenMatches("abc", "abc") {
		t.Error("equal tokens should match")
	}
	if TokenMatches("abc", "abd") || TokenMatches("", "") {
		t.Error("mismatch or empty stored token should not match")
	}
}

func TestPNG(t *testing.T) {
	data, err := PNG(Payload("S001", "tok"), 0)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a png: %v", err)
	}
	if img.Bounds().Dx() != DefaultSize {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
}
