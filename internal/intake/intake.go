// Package intake turns uploaded bytes, base64 strings and data URLs into
// decoded frames ready for face extraction.
package intake

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
)

// ErrInvalidImage is returned for empty, unsupported or undecodable input.
var ErrInvalidImage = errors.New("invalid image")

// MaxSide bounds the longest edge of a decoded frame.
const MaxSide = 1280

// MaxPixels bounds the declared size of an upload before any pixel is decoded.
const MaxPixels = 25_000_000

type codec struct {
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

var codecs = map[string]codec{
	"image/jpeg": {jpeg.Decode, jpeg.DecodeConfig},
	"image/png":  {png.Decode, png.DecodeConfig},
	"image/gif":  {gif.Decode, gif.DecodeConfig},
	"image/webp": {webp.Decode, webp.DecodeConfig},
}

// Frame is a decoded upload. Raw keeps the original bytes for storage.
type Frame struct {
	Image       image.Image
	Raw         []byte
	ContentType string
}

// Decode sniffs the content type and decodes JPEG, PNG, GIF or WebP.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)

	c, ok := codecs[ct]
	if !ok {
		return Frame{}, fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, ct)
	}
	cfg, err := c.config(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Frame{}, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Frame{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxPixels)
	}
	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Frame{}, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return Frame{Image: Downscale(img, MaxSide, MaxSide), Raw: data, ContentType: ct}, nil
}

// DecodeBase64 accepts plain base64 or a data URL ("data:image/png;base64,...").
func DecodeBase64(s string) (Frame, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return Frame{}, fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: bad base64", ErrInvalidImage)
		}
	}
	return Decode(data)
}

// Extension maps the sniffed content type to a file extension.
func (f Frame) Extension() string {
	switch f.ContentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}

// Downscale keeps aspect ratio and only ever shrinks.
func Downscale(src image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 && maxH <= 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return src
	}
	scale := 1.0
	if maxW > 0 {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
