package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/queue"
	"rollcall/internal/report"
	"rollcall/internal/store"
)

type StudentGetter interface {
	Get(ctx context.Context, regNo string) (model.Student, error)
}

type RecordLister interface {
	List(ctx context.Context, f store.AttendanceFilter) ([]model.AttendanceRecord, error)
}

// Worker turns queued events into mail.
type Worker struct {
	students StudentGetter
	records  RecordLister
	mailer   Mailer
	loc      *time.Location
	now      func() time.Time
}

func NewWorker(students StudentGetter, records RecordLister, mailer Mailer, loc *time.Location) *Worker {
	if loc == nil {
		loc = time.Local
	}
	return &Worker{students: students, records: records, mailer: mailer, loc: loc, now: time.Now}
}

// Run consumes q until ctx is cancelled. Failed messages are logged and dropped.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Println("notify: worker started, waiting for messages...")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			log.Printf("notify: %s failed: %v", msg.Type, err)
		}
	}
	log.Println("notify: worker stopped")
	return nil
}

func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case TypeAttendanceMarked:
		var e AttendanceMarked
		if err := msg.Decode(&e); err != nil {
			return err
		}
		return w.attendanceMarked(ctx, e)
	case TypeReportEmail:
		var e ReportEmail
		if err := msg.Decode(&e); err != nil {
			return err
		}
		return w.reportEmail(ctx, e)
	case TypePasswordReset:
		var e PasswordReset
		if err := msg.Decode(&e); err != nil {
			return err
		}
		return w.passwordReset(ctx, e)
	case TypeSupportRequest:
		var e SupportRequest
		if err := msg.Decode(&e); err != nil {
			return err
		}
		return w.supportRequest(ctx, e)
	default:
		log.Printf("notify: ignoring message type %q", msg.Type)
		return nil
	}
}

func (w *Worker) attendanceMarked(ctx context.Context, e AttendanceMarked) error {
	st, err := w.students.Get(ctx, e.RegNo)
	if err != nil {
		return err
	}
	if st.Email == "" {
		return nil
	}
	if e.Name == "" {
		e.Name = st.Name
	}
	body, err := RenderAttendanceMarked(e, w.loc)
	if err != nil {
		return err
	}
	return w.mailer.Send(ctx, st.Email, "Attendance marked - "+e.Date, body)
}

func (w *Worker) reportEmail(ctx context.Context, e ReportEmail) error {
	if e.Recipient == "" {
		return fmt.Errorf("report email without recipient")
	}
	recs, err := w.records.List(ctx, store.AttendanceFilter{From: e.From, To: e.To})
	if err != nil {
		return err
	}
	body, err := RenderReport(report.Rows(recs, w.loc), e.From, e.To, w.now().In(w.loc))
	if err != nil {
		return err
	}
	subject := "Attendance Report - " + e.From
	if e.To != "" && e.To != e.From {
		subject += " to " + e.To
	}
	return w.mailer.Send(ctx, e.Recipient, subject, body)
}

func (w *Worker) passwordReset(ctx context.Context, e PasswordReset) error {
	if e.Email == "" {
		return fmt.Errorf("password reset for %s without address", e.RegNo)
	}
	body, err := RenderPasswordReset(e, w.loc)
	if err != nil {
		return err
	}
	return w.mailer.Send(ctx, e.Email, "Password reset", body)
}

func (w *Worker) supportRequest(ctx context.Context, e SupportRequest) error {
	if e.Recipient == "" {
		return fmt.Errorf("support request without recipient")
	}
	body, err := RenderSupportRequest(e, w.loc)
	if err != nil {
		return err
	}
	return w.mailer.Send(ctx, e.Recipient, "[ADMIN SUPPORT] "+e.Subject, body)
}
