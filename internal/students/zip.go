package students

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"rollcall/internal/intake"
	"rollcall/internal/store"
)

const (
	zipDepartment   = "General"
	maxZipEntrySize = 20 << 20
)

type ZipFailure struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// ZipResult reports each photo of a bulk enrolment archive.
type ZipResult struct {
	Success []string     `json:"success"`
	Failed  []ZipFailure `json:"failed"`
	Skipped []string     `json:"skipped"`
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// ImportZip enrols every REGNO.<jpg|jpeg|png|webp> in the archive with the
// registration number as display name. Existing students are skipped.
// progress, when set, is called after each photo.
func (s *Service) ImportZip(ctx context.Context, data []byte, progress func(done, total int)) (ZipResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ZipResult{}, fmt.Errorf("%w: not a zip archive", ErrInvalidInput)
	}

	var files []*zip.File
	for _, f := range zr.File {
		name := path.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX") || strings.HasPrefix(name, ".") {
			continue
		}
		if !imageExts[strings.ToLower(path.Ext(name))] {
			continue
		}
		files = append(files, f)
	}

	res := ZipResult{Success: []string{}, Failed: []ZipFailure{}, Skipped: []string{}}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := path.Base(f.Name)
		regNo := strings.TrimSpace(strings.TrimSuffix(name, path.Ext(name)))

		switch err := s.importOne(ctx, f, regNo); {
		case err == nil:
			res.Success = append(res.Success, regNo)
		case errors.Is(err, store.ErrConflict):
			res.Skipped = append(res.Skipped, regNo)
		default:
			res.Failed = append(res.Failed, ZipFailure{File: name, Reason: err.Error()})
		}
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	return res, nil
}

func (s *Service) importOne(ctx context.Context, f *zip.File, regNo string) error {
	if f.UncompressedSize64 > maxZipEntrySize {
		return fmt.Errorf("file too large")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxZipEntrySize))
	if err != nil {
		return err
	}
	frame, err := intake.Decode(raw)
	if err != nil {
		return err
	}
	_, err = s.Enroll(ctx, EnrollRequest{
		RegNo:   regNo,
		Profile: Profile{Name: regNo, Department: zipDepartment},
		Frame:   frame,
	})
	return err
}
