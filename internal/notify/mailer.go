package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/report"
)

// Mailer delivers one HTML message.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPMailer sends through an SMTP relay, upgrading to STARTTLS and
// authenticating when the server offers them. With no host configured mail is
// logged and dropped. Every exchange is bounded by Timeout.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

const defaultSMTPTimeout = 30 * time.Second

func (m SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.Host == "" {
		log.Printf("notify: smtp not configured, skipping mail to %s: %q", to, subject)
		return nil
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.send(ctx, to, buildMessage(m.From, to, subject, html)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (m SMTPMailer) send(ctx context.Context, to string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(m.Host, strconv.Itoa(m.Port)))
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return err
		}
	}
	if m.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.NewReplacer("\r", "", "\n", "").Replace(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type reportView struct {
	Period    string
	Rows      []report.Row
	Generated string
}

// RenderReport produces the HTML body of the report mail.
func RenderReport(rows []report.Row, from, to string, generated time.Time) (string, error) {
	period := from
	if to != "" && to != from {
		period = from + " to " + to
	}
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "report.html", reportView{
		Period:    period,
		Rows:      rows,
		Generated: generated.Format("January 02, 2006 at 03:04 PM"),
	})
	return buf.String(), err
}

type markedView struct {
	Name   string
	RegNo  string
	Date   string
	Time   string
	Method string
}

// RenderAttendanceMarked produces the HTML body sent to a student.
func RenderAttendanceMarked(e AttendanceMarked, loc *time.Location) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "attendance_marked.html", markedView{
		Name:   e.Name,
		RegNo:  e.RegNo,
		Date:   e.Date,
		Time:   e.At.In(loc).Format("15:04:05"),
		Method: e.Method,
	})
	return buf.String(), err
}

type resetView struct {
	Name    string
	RegNo   string
	Token   string
	Expires string
}

// RenderPasswordReset produces the mail carrying a student's reset token.
func RenderPasswordReset(e PasswordReset, loc *time.Location) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "password_reset.html", resetView{
		Name:    e.Name,
		RegNo:   e.RegNo,
		Token:   e.Token,
		Expires: e.ExpiresAt.In(loc).Format("2006-01-02 15:04"),
	})
	return buf.String(), err
}

type supportView struct {
	Admin   string
	Subject string
	Message string
	Time    string
}

// RenderSupportRequest produces the help request mail sent to the system administrator.
func RenderSupportRequest(e SupportRequest, loc *time.Location) (string, error) {
	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "support_request.html", supportView{
		Admin:   e.Admin,
		Subject: e.Subject,
		Message: e.Message,
		Time:    e.At.In(loc).Format("2006-01-02 15:04:05"),
	})
	return buf.String(), err
}
