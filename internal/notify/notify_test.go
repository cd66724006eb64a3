package notify

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/queue"
	"rollcall/internal/report"
	"rollcall/internal/store"
)

type sent struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sent
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{to, subject, html})
	return nil
}

func (m *fakeMailer) all() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

type students map[string]model.Student

func (s students) Get(_ context.Context, regNo string) (model.Student, error) {
	st, ok := s[regNo]
	if !ok {
		return model.Student{}, store.ErrNotFound
	}
	return st, nil
}

type records []model.AttendanceRecord

func (r records) List(_ context.Context, f store.AttendanceFilter) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, rec := range r {
		if (f.From == "" || rec.Date >= f.From) && (f.To == "" || rec.Date <= f.To) {
			out = append(out, rec)
		}
	}
	return out, nil
}

var at = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newWorker(m Mailer) *Worker {
	dir := students{
		"S001": {RegNo: "S001", Name: "Alice", Email: "alice@example.com"},
		"S002": {RegNo: "S002", Name: "Bob"},
	}
	recs := records{
		{RegNo: "S001", Name: "Alice", Date: "2024-01-01", Timestamp: at, Method: model.MethodFace},
		{RegNo: "S002", Name: "Bob <script>", Date: "2024-01-02", Timestamp: at.Add(24 * time.Hour), Method: model.MethodQR},
	}
	w := NewWorker(dir, recs, m, time.UTC)
	w.now = func() time.Time { return at }
	return w
}

func TestAttendanceMarkedMail(t *testing.T) {
	m := &fakeMailer{}
	w := newWorker(m)
	ctx := context.Background()

	for _, reg := range []string{"S001", "S002"} {
		msg, err := AttendanceMarkedMessage(AttendanceMarked{RegNo: reg, Date: "2024-01-01", Method: "face", At: at})
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Handle(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}
	got := m.all()
	if len(got) != 1 {
		t.Fatalf("sent %d mails, want 1 (student without email is skipped)", len(got))
	}
	if got[0].to != "alice@example.com" || !strings.Contains(got[0].body, "Hello Alice") || !strings.Contains(got[0].body, "09:00:00") {
		t.Errorf("mail = %+v", got[0])
	}

	unknown, _ := AttendanceMarkedMessage(AttendanceMarked{RegNo: "S404"})
	if err := w.Handle(ctx, unknown); err == nil {
		t.Error("unknown student should fail")
	}
}

func TestReportEmail(t *testing.T) {
	m := &fakeMailer{}
	w := newWorker(m)
	msg, _ := ReportEmailMessage(ReportEmail{Recipient: "office@example.com", From: "2024-01-01", To: "2024-01-02"})
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	got := m.all()
	if len(got) != 1 {
		t.Fatalf("sent = %d", len(got))
	}
	if got[0].subject != "Attendance Report - 2024-01-01 to 2024-01-02" {
		t.Errorf("subject = %q", got[0].subject)
	}
	if !strings.Contains(got[0].body, "Total Attendance Records:</strong> 2") {
		t.Errorf("body missing count: %s", got[0].body)
	}
	if strings.Contains(got[0].body, "<script>") {
		t.Error("names are not escaped")
	}

	empty, _ := ReportEmailMessage(ReportEmail{From: "2024-01-01"})
	if err := w.Handle(context.Background(), empty); err == nil {
		t.Error("missing recipient should fail")
	}
}

func TestPasswordResetMail(t *testing.T) {
	m := &fakeMailer{}
	w := newWorker(m)
	msg, _ := PasswordResetMessage(PasswordReset{
		RegNo: "S001", Name: "Alice", Email: "alice@example.com", Token: "tok-123", ExpiresAt: at.Add(30 * time.Minute),
	})
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	got := m.all()
	if len(got) != 1 || got[0].to != "alice@example.com" || got[0].subject != "Password reset" {
		t.Fatalf("sent = %+v", got)
	}
	if !strings.Contains(got[0].body, "tok-123") || !strings.Contains(got[0].body, "2024-01-01 09:30") {
		t.Errorf("body = %s", got[0].body)
	}

	blank, _ := PasswordResetMessage(PasswordReset{RegNo: "S002", Token: "x"})
	if err := w.Handle(context.Background(), blank); err == nil {
		t.Error("reset without address should fail")
	}
}

func TestSupportRequestMail(t *testing.T) {
	m := &fakeMailer{}
	w := newWorker(m)
	msg, _ := SupportRequestMessage(SupportRequest{
		Recipient: "sysadmin@example.com", Admin: "ed", Subject: "Camera offline", Message: "lab 2 <b>down</b>", At: at,
	})
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	got := m.all()
	if len(got) != 1 || got[0].to != "sysadmin@example.com" || got[0].subject != "[ADMIN SUPPORT] Camera offline" {
		t.Fatalf("sent = %+v", got)
	}
	for _, want := range []string{"ed", "2024-01-01 09:00:00", "lab 2 &lt;b&gt;down&lt;/b&gt;"} {
		if !strings.Contains(got[0].body, want) {
			t.Errorf("body missing %q: %s", want, got[0].body)
		}
	}
}

func TestRenderReportEmpty(t *testing.T) {
	body, err := RenderReport([]report.Row{}, "2024-01-01", "2024-01-01", at)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "No attendance records found.") || !strings.Contains(body, "<p>2024-01-01</p>") {
		t.Errorf("body = %s", body)
	}
}

func TestRunConsumesQueue(t *testing.T) {
	m := &fakeMailer{}
	w := newWorker(m)
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, q) }()

	msg, _ := ReportEmailMessage(ReportEmail{Recipient: "office@example.com", From: "2024-01-01"})
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(2 * time.Second)
	for len(m.all()) == 0 {
		select {
		case <-deadline:
			t.Fatal("message not handled")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v", err)
	}
}

func TestSMTPMailerSkipsWithoutHost(t *testing.T) {
	if err := (SMTPMailer{}).Send(context.Background(), "a@example.com", "hi", "<p>hi</p>"); err != nil {
		t.Errorf("Send = %v", err)
	}
	msg := string(buildMessage("from@x", "to@x", "line\r\nBcc: evil@x", "<p>x</p>"))
	if strings.Contains(msg, "\r\nBcc:") {
		t.Errorf("header injection: %q", msg)
	}
}

func listen(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return ln, host, p
}

func TestSMTPMailerTimesOutOnSilentServer(t *testing.T) {
	ln, host, port := listen(t)
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	m := SMTPMailer{Host: host, Port: port, From: "rollcall@example.com", Timeout: 200 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- m.Send(context.Background(), "a@example.com", "hi", "<p>hi</p>") }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Send to a server that never greets succeeded")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not honour its timeout")
	}
}

// serveSMTP answers one session with canned replies and returns the DATA payload.
func serveSMTP(ln net.Listener) <-chan string {
	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(out)
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { conn.Write([]byte(s + "\r\n")) }
		reply("220 test ESMTP")
		var data strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(out)
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 test")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 ok")
			case cmd == "DATA":
				reply("354 go ahead")
				for {
					l, err := r.ReadString('\n')
					if err != nil || l == ".\r\n" {
						break
					}
					data.WriteString(l)
				}
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				out <- data.String()
				return
			default:
				reply("502 unsupported")
			}
		}
	}()
	return out
}

func TestSMTPMailerDelivers(t *testing.T) {
	ln, host, port := listen(t)
	got := serveSMTP(ln)

	m := SMTPMailer{Host: host, Port: port, From: "rollcall@example.com", Timeout: 5 * time.Second}
	if err := m.Send(context.Background(), "a@example.com", "Attendance", "<p>present</p>"); err != nil {
		t.Fatal(err)
	}
	body := <-got
	if !strings.Contains(body, "Subject: Attendance") || !strings.Contains(body, "<p>present</p>") {
		t.Errorf("data = %q", body)
	}
}
