// Package recognition ties the active face extractor to the gallery matcher.
package recognition

import (
	"context"
	"fmt"
	"time"

	"rollcall/internal/face"
	"rollcall/internal/intake"
	"rollcall/internal/matcher"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
)

// GallerySource lists the enrolled descriptors of one category.
type GallerySource interface {
	Gallery(ctx context.Context) ([]model.GalleryEntry, error)
}

type Recognizer struct {
	extractor face.Extractor
	matcher   *matcher.Matcher
	policy    face.Policy
	galleries map[model.Category]GallerySource
	metrics   *metrics.Metrics
}

func New(extractor face.Extractor, m *matcher.Matcher, policy face.Policy, galleries map[model.Category]GallerySource, mt *metrics.Metrics) *Recognizer {
	return &Recognizer{
		extractor: extractor,
		matcher:   m,
		policy:    policy,
		galleries: galleries,
		metrics:   mt,
	}
}

func (r *Recognizer) extract(ctx context.Context, frame intake.Frame) ([]face.Face, error) {
	start := time.Now()
	faces, err := r.extractor.Extract(ctx, frame)
	r.metrics.ObserveExtract(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("extract faces: %w", err)
	}
	return faces, nil
}

// Describe returns the descriptor of the single face in an enrolment frame.
func (r *Recognizer) Describe(ctx context.Context, frame intake.Frame) ([]float32, error) {
	faces, err := r.extract(ctx, frame)
	if err != nil {
		return nil, err
	}
	f, err := face.SelectForRegistration(faces)
	if err != nil {
		return nil, err
	}
	return f.Embedding, nil
}

// Identify extracts the face to use for attendance and scans the gallery of
// the given category.
func (r *Recognizer) Identify(ctx context.Context, frame intake.Frame, category model.Category) (matcher.Result, error) {
	src, ok := r.galleries[category]
	if !ok {
		return matcher.Result{}, fmt.Errorf("no gallery for category %q", category)
	}
	faces, err := r.extract(ctx, frame)
	if err != nil {
		return matcher.Result{}, err
	}
	f, err := face.SelectForAttendance(faces, r.policy)
	if err != nil {
		r.metrics.Recognition(string(category), "rejected")
		return matcher.Result{}, err
	}
	gallery, err := src.Gallery(ctx)
	if err != nil {
		return matcher.Result{}, fmt.Errorf("load %s gallery: %w", category, err)
	}
	res := r.matcher.Match(f.Embedding, gallery)
	if res.Matched {
		r.metrics.Recognition(string(category), "matched")
	} else {
		r.metrics.Recognition(string(category), "unmatched")
	}
	return res, nil
}
