package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"rollcall/internal/imagestore"
	"rollcall/internal/intake"
	"rollcall/internal/matcher"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/notify"
	"rollcall/internal/qr"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

const (
	MsgAlreadyMarked = "already marked"
	dateLayout       = "2006-01-02"

	defaultPublishTimeout = 2 * time.Second
)

var ErrInvalidQRToken = errors.New("invalid QR token")

// Students is the read side of the student directory.
type Students interface {
	Get(ctx context.Context, regNo string) (model.Student, error)
}

// Records persists attendance rows.
type Records interface {
	Exists(ctx context.Context, regNo, date string) (bool, error)
	Insert(ctx context.Context, rec *model.AttendanceRecord) error
}

// Identifier finds the enrolled identity in a frame.
type Identifier interface {
	Identify(ctx context.Context, frame intake.Frame, category model.Category) (matcher.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Outcome is the result of one attendance submission. A duplicate is an
// outcome, not an error.
type Outcome struct {
	Written       bool                   `json:"written"`
	AlreadyMarked bool                   `json:"already_marked"`
	Message       string                 `json:"message"`
	Record        model.AttendanceRecord `json:"record"`
}

// Service coordinates identity checks and the same-day duplicate policy.
type Service struct {
	students   Students
	records    Records
	identifier Identifier
	images     imagestore.Store
	publisher  Publisher
	metrics    *metrics.Metrics
	loc        *time.Location
	now        func() time.Time

	publishTimeout time.Duration

	// mu serializes check-and-insert; the unique (reg_no, date) index backs it up.
	mu sync.Mutex
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithPublishTimeout bounds how long a write waits for the event queue.
func WithPublishTimeout(d time.Duration) Option { return func(s *Service) { s.publishTimeout = d } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithImages stores face frames as proof images.
func WithImages(images imagestore.Store) Option { return func(s *Service) { s.images = images } }

func NewService(students Students, records Records, identifier Identifier, opts ...Option) *Service {
	s := &Service{
		students:   students,
		records:    records,
		identifier: identifier,
		loc:        time.Local,
		now:        time.Now,

		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the attendance date in the service's time zone.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(dateLayout)
}

// Mark writes today's attendance for regNo unless any row for today exists.
// proof, when set, is stored alongside the row. Only the existence check and
// the insert run under the writer lock.
func (s *Service) Mark(ctx context.Context, regNo string, method model.Method, proof *intake.Frame) (Outcome, error) {
	if !method.Valid() {
		return Outcome{}, fmt.Errorf("unknown attendance method %q", method)
	}
	st, err := s.students.Get(ctx, regNo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("student %s: %w", regNo, store.ErrNotFound)
		}
		return Outcome{}, fmt.Errorf("load student: %w", err)
	}

	now := s.now().In(s.loc)
	rec := model.AttendanceRecord{
		RegNo:      st.RegNo,
		Name:       st.Name,
		Department: st.Department,
		Date:       now.Format(dateLayout),
		Timestamp:  now,
		Method:     method,
		Status:     model.StatusPresent,
	}

	if proof != nil && s.images != nil && len(proof.Raw) > 0 {
		exists, err := s.records.Exists(ctx, st.RegNo, rec.Date)
		if err != nil {
			return Outcome{}, fmt.Errorf("check attendance: %w", err)
		}
		if exists {
			s.metrics.AttendanceWrite(string(method), "duplicate")
			return duplicate(rec), nil
		}
		loc, err := s.images.Put(ctx, imagestore.ProofKey(st.RegNo, now, proof.Extension()), proof.Raw, proof.ContentType)
		if err != nil {
			log.Printf("attendance: store proof for %s: %v", st.RegNo, err)
		} else {
			rec.ProofPath = loc
		}
	}

	written, err := s.insertOnce(ctx, &rec)
	if err != nil {
		s.metrics.AttendanceWrite(string(method), "error")
		return Outcome{}, err
	}
	if !written {
		s.metrics.AttendanceWrite(string(method), "duplicate")
		return duplicate(rec), nil
	}
	s.metrics.AttendanceWrite(string(method), "written")
	s.publish(ctx, rec)

	return Outcome{
		Written: true,
		Message: fmt.Sprintf("attendance marked for %s", st.Name),
		Record:  rec,
	}, nil
}

// insertOnce is the check-and-insert critical section.
func (s *Service) insertOnce(ctx context.Context, rec *model.AttendanceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.records.Exists(ctx, rec.RegNo, rec.Date)
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("record attendance: %w", err)
	}
	return true, nil
}

func duplicate(rec model.AttendanceRecord) Outcome {
	return Outcome{AlreadyMarked: true, Message: MsgAlreadyMarked, Record: rec}
}

// publish hands the event to the queue without holding the writer lock. A
// full or stalled queue costs at most publishTimeout and never fails the write.
func (s *Service) publish(ctx context.Context, rec model.AttendanceRecord) {
	if s.publisher == nil {
		return
	}
	msg, err := notify.AttendanceMarkedMessage(notify.AttendanceMarked{
		RegNo:  rec.RegNo,
		Name:   rec.Name,
		Date:   rec.Date,
		Method: string(rec.Method),
		At:     rec.Timestamp,
	})
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		err = s.publisher.Publish(pctx, msg)
		cancel()
	}
	if err != nil {
		log.Printf("attendance: publish event for %s: %v", rec.RegNo, err)
	}
}

// MarkByFace identifies the student in frame and records attendance. An
// unrecognized face returns the unmatched result with a zero Outcome.
func (s *Service) MarkByFace(ctx context.Context, frame intake.Frame) (matcher.Result, Outcome, error) {
	res, err := s.identifier.Identify(ctx, frame, model.CategoryStudent)
	if err != nil {
		return matcher.Result{}, Outcome{}, err
	}
	if !res.Matched {
		return res, Outcome{Message: res.Message}, nil
	}
	out, err := s.Mark(ctx, res.ID, model.MethodFace, &frame)
	return res, out, err
}

// MarkByQR validates the scanned payload against the student's current token.
func (s *Service) MarkByQR(ctx context.Context, payload string) (Outcome, error) {
	regNo, token, err := qr.Parse(payload)
	if err != nil {
		return Outcome{}, err
	}
	st, err := s.students.Get(ctx, regNo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("student %s: %w", regNo, store.ErrNotFound)
		}
		return Outcome{}, err
	}
	if !qr.TokenMatches(st.QRToken, token) {
		return Outcome{}, ErrInvalidQRToken
	}
	return s.Mark(ctx, regNo, model.MethodQR, nil)
}

// BulkResult lists what happened to each registration number.
type BulkResult struct {
	Marked     []string `json:"marked"`
	NotFound   []string `json:"not_found"`
	Duplicates []string `json:"duplicates"`
}

// MarkBulk marks every listed student. Blank and repeated numbers are ignored.
func (s *Service) MarkBulk(ctx context.Context, regNos []string, method model.Method) (BulkResult, error) {
	res := BulkResult{Marked: []string{}, NotFound: []string{}, Duplicates: []string{}}
	seen := map[string]bool{}
	for _, raw := range regNos {
		regNo := strings.TrimSpace(raw)
		if regNo == "" || seen[regNo] {
			continue
		}
		seen[regNo] = true

		out, err := s.Mark(ctx, regNo, method, nil)
		switch {
		case errors.Is(err, store.ErrNotFound):
			res.NotFound = append(res.NotFound, regNo)
		case err != nil:
			return res, err
		case out.AlreadyMarked:
			res.Duplicates = append(res.Duplicates, regNo)
		default:
			res.Marked = append(res.Marked, regNo)
		}
	}
	return res, nil
}
