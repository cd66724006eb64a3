package attendance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rollcall/internal/face"
	"rollcall/internal/imagestore"
	"rollcall/internal/intake"
	"rollcall/internal/matcher"
	"rollcall/internal/model"
	"rollcall/internal/qr"
	"rollcall/internal/queue"
	"rollcall/internal/recognition"
	"rollcall/internal/store"
)

type stubExtractor struct{ embedding []float32 }

func (s stubExtractor) Extract(context.Context, intake.Frame) ([]face.Face, error) {
	if s.embedding == nil {
		return nil, nil
	}
	return []face.Face{{Embedding: s.embedding}}, nil
}

type fixture struct {
	svc      *Service
	students *store.StudentRepository
	records  *store.AttendanceRepository
	queue    *queue.InMemory
}

var newYear = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, query []float32) fixture {
	t.Helper()
	db, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "att.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	students := store.NewStudentRepository(db)
	records := store.NewAttendanceRepository(db)
	rec := recognition.New(stubExtractor{embedding: query}, matcher.New(matcher.Cosine{}, 0.5), face.PolicyLargest,
		map[model.Category]recognition.GallerySource{model.CategoryStudent: students}, nil)
	q := queue.NewInMemory(16)
	svc := NewService(students, records, rec,
		WithClock(func() time.Time { return newYear }),
		WithLocation(time.UTC),
		WithPublisher(q),
	)
	return fixture{svc: svc, students: students, records: records, queue: q}
}

func (f fixture) count(t *testing.T, regNo string) int {
	t.Helper()
	rows, err := f.records.List(context.Background(), store.AttendanceFilter{RegNo: regNo})
	if err != nil {
		t.Fatal(err)
	}
	return len(rows)
}

func TestMarkByFaceScenario(t *testing.T) {
	d := []float32{0.2, 0.4, 0.6, 0.8}
	f := newFixture(t, []float32{0.22, 0.41, 0.58, 0.8})
	ctx := context.Background()
	if err := f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice", Embedding: d}); err != nil {
		t.Fatal(err)
	}

	res, out, err := f.svc.MarkByFace(ctx, intake.Frame{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched || res.ID != "S001" || res.Message != "matched" || res.Score < 0.5 {
		t.Fatalf("match = %+v", res)
	}
	if !out.Written || out.AlreadyMarked {
		t.Fatalf("first outcome = %+v", out)
	}
	if out.Record.Date != "2024-01-01" || out.Record.Name != "Alice" || !out.Record.Timestamp.Equal(newYear) {
		t.Errorf("record = %+v", out.Record)
	}

	_, again, err := f.svc.MarkByFace(ctx, intake.Frame{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Written || !again.AlreadyMarked || again.Message != "already marked" {
		t.Errorf("second outcome = %+v", again)
	}
	if n := f.count(t, "S001"); n != 1 {
		t.Errorf("stored rows = %d, want 1", n)
	}
}

func TestMarkByFaceEmptyGallery(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	res, out, err := f.svc.MarkByFace(context.Background(), intake.Frame{})
	if err != nil {
		t.Fatal(err)
	}
	want := matcher.Result{Matched: false, Score: 0, Message: "not recognized"}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if out.Written || out.AlreadyMarked {
		t.Errorf("outcome = %+v", out)
	}
}

func TestMarkByFaceNoFace(t *testing.T) {
	f := newFixture(t, nil)
	if _, _, err := f.svc.MarkByFace(context.Background(), intake.Frame{}); !errors.Is(err, face.ErrNoFace) {
		t.Errorf("err = %v, want ErrNoFace", err)
	}
}

func TestDuplicateAcrossMethods(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})

	if out, err := f.svc.Mark(ctx, "S001", model.MethodQR, nil); err != nil || !out.Written {
		t.Fatalf("qr mark = %+v, %v", out, err)
	}
	out, err := f.svc.Mark(ctx, "S001", model.MethodManual, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.AlreadyMarked {
		t.Errorf("manual after qr should be a duplicate: %+v", out)
	}
}

func TestMarkUnknownStudent(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Mark(context.Background(), "nobody", model.MethodManual, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkConcurrentWritesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		written int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Mark(ctx, "S001", model.MethodFace, nil)
			if err != nil {
				t.Error(err)
				return
			}
			if out.Written {
				mu.Lock()
				written++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if written != 1 {
		t.Errorf("written = %d, want 1", written)
	}
	if n := f.count(t, "S001"); n != 1 {
		t.Errorf("stored rows = %d", n)
	}
}

func TestMarkByQR(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice", QRToken: "goodtoken"})

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"malformed", "hello", qr.ErrInvalidPayload},
		{"unknown student", qr.Payload("S404", "goodtoken"), store.ErrNotFound},
		{"wrong token", qr.Payload("S001", "stale"), ErrInvalidQRToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.MarkByQR(ctx, tt.payload); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	out, err := f.svc.MarkByQR(ctx, qr.Payload("S001", "goodtoken"))
	if err != nil || !out.Written || out.Record.Method != model.MethodQR {
		t.Fatalf("valid qr = %+v, %v", out, err)
	}
}

func TestMarkBulk(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})
	f.students.Create(ctx, &model.Student{RegNo: "S002", Name: "Bob"})
	f.svc.Mark(ctx, "S002", model.MethodFace, nil)

	res, err := f.svc.MarkBulk(ctx, []string{"S001", " S002 ", "S999", "", "S001"}, model.MethodExcel)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Marked) != 1 || res.Marked[0] != "S001" {
		t.Errorf("marked = %v", res.Marked)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0] != "S002" {
		t.Errorf("duplicates = %v", res.Duplicates)
	}
	if len(res.NotFound) != 1 || res.NotFound[0] != "S999" {
		t.Errorf("not found = %v", res.NotFound)
	}
}

func TestMarkPublishesEvent(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})
	if _, err := f.svc.Mark(ctx, "S001", model.MethodManual, nil); err != nil {
		t.Fatal(err)
	}
	ch, _ := f.queue.Consume(ctx)
	select {
	case msg := <-ch:
		if msg.Type != "attendance.marked" {
			t.Errorf("type = %q", msg.Type)
		}
	case <-ctx.Done():
		t.Fatal("no event published")
	}
}

// stallingPublisher blocks its first Publish until released or cancelled.
type stallingPublisher struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newStallingPublisher() *stallingPublisher {
	return &stallingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *stallingPublisher) Publish(ctx context.Context, _ queue.Message) error {
	if p.calls.Add(1) == 1 {
		close(p.entered)
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func markAsync(svc *Service, regNo string, proof *intake.Frame) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := svc.Mark(context.Background(), regNo, model.MethodManual, proof)
		done <- err
	}()
	return done
}

func TestStalledPublisherDoesNotBlockOtherWrites(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})
	f.students.Create(ctx, &model.Student{RegNo: "S002", Name: "Bob"})

	pub := newStallingPublisher()
	svc := NewService(f.students, f.records, nil,
		WithClock(func() time.Time { return newYear }),
		WithLocation(time.UTC),
		WithPublisher(pub),
		WithPublishTimeout(time.Minute),
	)
	first := markAsync(svc, "S001", nil)
	<-pub.entered

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := svc.Mark(wctx, "S002", model.MethodManual, nil)
	if err != nil || !out.Written {
		t.Fatalf("second write while publish stalled = %+v, %v", out, err)
	}

	close(pub.release)
	if err := <-first; err != nil {
		t.Fatalf("first write: %v", err)
	}
}

func TestPublishTimeoutKeepsWrite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})

	pub := newStallingPublisher()
	svc := NewService(f.students, f.records, nil,
		WithClock(func() time.Time { return newYear }),
		WithLocation(time.UTC),
		WithPublisher(pub),
		WithPublishTimeout(50*time.Millisecond),
	)
	select {
	case err := <-markAsync(svc, "S001", nil):
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("write blocked on a queue nobody consumes")
	}
	if n := f.count(t, "S001"); n != 1 {
		t.Errorf("stored rows = %d, want 1", n)
	}
}

// slowImages blocks every Put until released.
type slowImages struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowImages) Put(ctx context.Context, key string, _ []byte, _ string) (string, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return "/images/" + key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

var _ imagestore.Store = (*slowImages)(nil)

func TestProofUploadRunsOutsideWriterLock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.students.Create(ctx, &model.Student{RegNo: "S001", Name: "Alice"})
	f.students.Create(ctx, &model.Student{RegNo: "S002", Name: "Bob"})

	images := &slowImages{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(f.students, f.records, nil,
		WithClock(func() time.Time { return newYear }),
		WithLocation(time.UTC),
		WithImages(images),
	)
	proof := &intake.Frame{Raw: []byte("jpeg"), ContentType: "image/jpeg"}
	first := markAsync(svc, "S001", proof)
	<-images.entered

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if out, err := svc.Mark(wctx, "S002", model.MethodQR, nil); err != nil || !out.Written {
		t.Fatalf("write during proof upload = %+v, %v", out, err)
	}

	close(images.release)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	rows, _ := f.records.List(ctx, store.AttendanceFilter{RegNo: "S001"})
	if len(rows) != 1 || rows[0].ProofPath == "" {
		t.Errorf("proof not recorded: %+v", rows)
	}
}
