// Package face locates faces in a frame and turns each into a fixed-length
// descriptor. Exactly one Extractor backend is active per process.
package face

import (
	"context"
	"errors"
	"fmt"
	"image"

	"rollcall/internal/intake"
)

var (
	ErrNoFace        = errors.New("no face detected")
	ErrMultipleFaces = errors.New("multiple faces detected")
)

// Face is one detected region with its descriptor.
type Face struct {
	Box       image.Rectangle
	Score     float64
	Embedding []float32
}

// Area is the bounding box area in pixels.
func (f Face) Area() int { return f.Box.Dx() * f.Box.Dy() }

// Extractor finds faces in a decoded frame.
type Extractor interface {
	Extract(ctx context.Context, frame intake.Frame) ([]Face, error)
}

// Policy decides what attendance does with more than one face in a frame.
type Policy string

const (
	PolicyLargest Policy = "largest"
	PolicyReject  Policy = "reject"
)

// ParsePolicy falls back to PolicyLargest for unknown values.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyReject {
		return PolicyReject
	}
	return PolicyLargest
}

// SelectForRegistration requires exactly one face.
func SelectForRegistration(faces []Face) (Face, error) {
	switch len(faces) {
	case 0:
		return Face{}, ErrNoFace
	case 1:
		return faces[0], nil
	default:
		return Face{}, multiple(len(faces))
	}
}

// SelectForAttendance applies the configured multi-face policy.
func SelectForAttendance(faces []Face, p Policy) (Face, error) {
	if len(faces) == 0 {
		return Face{}, ErrNoFace
	}
	if len(faces) == 1 {
		return faces[0], nil
	}
	if p == PolicyReject {
		return Face{}, multiple(len(faces))
	}
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best, nil
}

func multiple(n int) error {
	return fmt.Errorf("%w (%d)", ErrMultipleFaces, n)
}
