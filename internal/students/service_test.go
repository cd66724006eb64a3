package students

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"rollcall/internal/auth"
	"rollcall/internal/face"
	"rollcall/internal/imagestore"
	"rollcall/internal/intake"
	"rollcall/internal/matcher"
	"rollcall/internal/model"
	"rollcall/internal/qr"
	"rollcall/internal/recognition"
	"rollcall/internal/store"
)

type fixture struct {
	svc        *Service
	repo       *store.StudentRepository
	recognizer *recognition.Recognizer
}

func newFixture(t *testing.T, ext face.Extractor) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(dir, "students.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	repo := store.NewStudentRepository(db)
	images, err := imagestore.NewDisk(filepath.Join(dir, "images"), "/images")
	if err != nil {
		t.Fatal(err)
	}
	rec := recognition.New(ext, matcher.New(matcher.Cosine{}, 0.5), face.PolicyLargest,
		map[model.Category]recognition.GallerySource{model.CategoryStudent: repo}, nil)
	svc := NewService(repo, rec, images, auth.NewTokens("secret", "rollcall", time.Hour), nil)
	return fixture{svc: svc, repo: repo, recognizer: rec}
}

// pattern draws a gradient; vertical and horizontal gradients are unrelated faces.
func pattern(t *testing.T, kind string) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var v int
			switch kind {
			case "horizontal":
				v = x * 4
			case "vertical":
				v = y * 4
			case "blank":
				v = 128
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func frame(t *testing.T, kind string) intake.Frame {
	t.Helper()
	f, err := intake.Decode(pattern(t, kind))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

type multiFace struct{}

func (multiFace) Extract(context.Context, intake.Frame) ([]face.Face, error) {
	return []face.Face{{Embedding: []float32{1, 0}}, {Embedding: []float32{0, 1}}}, nil
}

func TestEnrollStoresDescriptorAndImage(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	st, err := f.svc.Enroll(ctx, EnrollRequest{
		RegNo:    "S001",
		Profile:  Profile{Name: "Alice", Department: "CSE"},
		Password: "secret1",
		Frame:    frame(t, "horizontal"),
	})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if st.ImagePath != "/images/students/S001.png" {
		t.Errorf("image path = %q", st.ImagePath)
	}
	got, err := f.repo.Get(ctx, "S001")
	if err != nil {
		t.Fatal(err)
	}
	if !got.FaceEnrolled() || got.QRToken == "" || got.PasswordHash == "" {
		t.Errorf("stored = %+v", got)
	}

	_, err = f.svc.Enroll(ctx, EnrollRequest{RegNo: "S001", Profile: Profile{Name: "Mallory"}, Frame: frame(t, "vertical")})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("re-register err = %v, want ErrConflict", err)
	}
	got, _ = f.repo.Get(ctx, "S001")
	if got.Name != "Alice" {
		t.Errorf("existing student overwritten: %+v", got)
	}
}

// racingRepo hides existing rows from the pre-check, as a concurrent
// enrolment between Exists and Create would.
type racingRepo struct{ *store.StudentRepository }

func (racingRepo) Exists(context.Context, string) (bool, error) { return false, nil }

type countingImages struct {
	puts int
	err  error
}

func (c *countingImages) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	c.puts++
	if c.err != nil {
		return "", c.err
	}
	return "/images/" + key, nil
}

func TestEnrollConflictLeavesWinnerImage(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	images := &countingImages{}
	svc := NewService(racingRepo{f.repo}, f.recognizer, images, auth.NewTokens("secret", "rollcall", time.Hour), nil)

	if _, err := svc.Enroll(ctx, EnrollRequest{RegNo: "S001", Profile: Profile{Name: "Alice"}, Frame: frame(t, "horizontal")}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Enroll(ctx, EnrollRequest{RegNo: "S001", Profile: Profile{Name: "Mallory"}, Frame: frame(t, "vertical")})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("racing enrol = %v, want ErrConflict", err)
	}
	if images.puts != 1 {
		t.Errorf("image writes = %d, want 1", images.puts)
	}
	got, _ := f.repo.Get(ctx, "S001")
	if got.Name != "Alice" || got.ImagePath != "/images/students/S001.png" {
		t.Errorf("winner = %+v", got)
	}
}

func TestEnrollRollsBackWhenImageFails(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	images := &countingImages{err: errors.New("bucket unavailable")}
	svc := NewService(f.repo, f.recognizer, images, auth.NewTokens("secret", "rollcall", time.Hour), nil)

	if _, err := svc.Enroll(ctx, EnrollRequest{RegNo: "S001", Profile: Profile{Name: "Alice"}, Frame: frame(t, "horizontal")}); err == nil {
		t.Fatal("Enroll succeeded without an image")
	}
	if _, err := f.repo.Get(ctx, "S001"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("row left behind: %v", err)
	}
}

func TestEnrollRejectsZeroFaces(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, EnrollRequest{RegNo: "S002", Profile: Profile{Name: "Bob"}, Frame: frame(t, "blank")})
	if !errors.Is(err, face.ErrNoFace) {
		t.Fatalf("err = %v, want ErrNoFace", err)
	}
	if ok, _ := f.repo.Exists(ctx, "S002"); ok {
		t.Error("rejected registration left a directory entry")
	}
}

func TestEnrollRejectsMultipleFaces(t *testing.T) {
	f := newFixture(t, multiFace{})
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, EnrollRequest{RegNo: "S003", Profile: Profile{Name: "Carol"}, Frame: frame(t, "horizontal")})
	if !errors.Is(err, face.ErrMultipleFaces) {
		t.Fatalf("err = %v, want ErrMultipleFaces", err)
	}
	if ok, _ := f.repo.Exists(ctx, "S003"); ok {
		t.Error("rejected registration left a directory entry")
	}
}

func TestEnrollValidatesInput(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{RegNo: " ", Profile: Profile{Name: "x"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestEnrolledFaceRoundTrip(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	if _, err := f.svc.Enroll(ctx, EnrollRequest{RegNo: "S001", Profile: Profile{Name: "Alice"}, Frame: frame(t, "horizontal")}); err != nil {
		t.Fatal(err)
	}

	same, err := f.recognizer.Identify(ctx, frame(t, "horizontal"), model.CategoryStudent)
	if err != nil {
		t.Fatal(err)
	}
	if !same.Matched || same.ID != "S001" || same.Score < 0.5 {
		t.Errorf("same face = %+v", same)
	}

	other, err := f.recognizer.Identify(ctx, frame(t, "vertical"), model.CategoryStudent)
	if err != nil {
		t.Fatal(err)
	}
	if other.Matched {
		t.Errorf("different face matched: %+v", other)
	}
}

func TestReenrollOverwritesDescriptor(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	f.svc.Enroll(ctx, EnrollRequest{RegNo: "S001", Profile: Profile{Name: "Alice"}, Frame: frame(t, "horizontal")})

	if _, err := f.svc.Reenroll(ctx, "S001", frame(t, "vertical")); err != nil {
		t.Fatal(err)
	}
	res, _ := f.recognizer.Identify(ctx, frame(t, "vertical"), model.CategoryStudent)
	if !res.Matched {
		t.Error("new face should match after re-enrolment")
	}
	if _, err := f.svc.Reenroll(ctx, "S404", frame(t, "vertical")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown student err = %v", err)
	}
}

func TestRegisterAndLoginRotatesQR(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	st, err := f.svc.Register(ctx, "S010", Profile{Name: "Dana"}, "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if st.FaceEnrolled() {
		t.Error("self registration should not enrol a face")
	}

	if _, err := f.svc.Login(ctx, "S010", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password err = %v", err)
	}
	if _, err := f.svc.Login(ctx, "S404", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown student err = %v", err)
	}

	res, err := f.svc.Login(ctx, "S010", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if res.Token.AccessToken == "" {
		t.Error("no access token")
	}
	reg, tok, err := qr.Parse(res.QRPayload)
	if err != nil || reg != "S010" || tok == st.QRToken {
		t.Errorf("payload %q not rotated (old token %q)", res.QRPayload, st.QRToken)
	}
	payload, _ := f.svc.QRPayload(ctx, "S010")
	if payload != res.QRPayload {
		t.Errorf("QRPayload = %q, want %q", payload, res.QRPayload)
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	f.svc.Register(ctx, "S011", Profile{Name: "Eve", Department: "ECE"}, "hunter22")
	st, err := f.svc.Update(ctx, "S011", Profile{Email: "eve@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if st.Name != "Eve" || st.Department != "ECE" || st.Email != "eve@example.com" {
		t.Errorf("updated = %+v", st)
	}
}

func TestImportZip(t *testing.T) {
	f := newFixture(t, face.NewLocalExtractor())
	ctx := context.Background()
	f.svc.Register(ctx, "S001", Profile{Name: "Alice"}, "hunter22")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(data)
	}
	add("photos/S100.png", pattern(t, "horizontal"))
	add("photos/S101.png", pattern(t, "blank"))
	add("photos/S001.png", pattern(t, "vertical"))
	add("photos/readme.txt", []byte("ignore me"))
	add("__MACOSX/photos/._S100.png", []byte("junk"))
	zw.Close()

	var calls int
	res, err := f.svc.ImportZip(ctx, buf.Bytes(), func(done, total int) {
		calls++
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Success) != 1 || res.Success[0] != "S100" {
		t.Errorf("success = %v", res.Success)
	}
	if len(res.Failed) != 1 || res.Failed[0].File != "S101.png" {
		t.Errorf("failed = %v", res.Failed)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "S001" {
		t.Errorf("skipped = %v", res.Skipped)
	}
	if calls != 3 {
		t.Errorf("progress calls = %d", calls)
	}
	st, _ := f.repo.Get(ctx, "S100")
	if st.Department != "General" || st.Name != "S100" {
		t.Errorf("imported student = %+v", st)
	}

	if _, err := f.svc.ImportZip(ctx, []byte("not a zip"), nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad archive err = %v", err)
	}
}
