// Package imagestore keeps enrolment photos and attendance proofs.
package imagestore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"rollcall/internal/config"
)

// Store saves an image under key and returns where it can be found again.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// EnrollmentKey is the object key of a student's enrolment photo.
func EnrollmentKey(regNo, ext string) string {
	return path.Join("students", sanitize(regNo)+ext)
}

// ProofKey is the object key of an attendance proof image.
func ProofKey(regNo string, at time.Time, ext string) string {
	return path.Join("attendance", at.Format("2006-01-02"), sanitize(regNo)+"_"+at.Format("150405")+ext)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}

// FromConfig builds the backend selected by IMAGE_STORE.
func FromConfig(ctx context.Context, cfg config.App) (Store, error) {
	switch cfg.ImageStore {
	case "", "disk":
		return NewDisk(cfg.ImageDir, "/images")
	case "minio":
		m, err := NewMinio(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		return m, nil
	case "cloudinary":
		return NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	default:
		return nil, fmt.Errorf("unknown image store %q", cfg.ImageStore)
	}
}
