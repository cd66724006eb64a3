package notify

import (
	"time"

	"rollcall/internal/queue"
)

const (
	TypeAttendanceMarked = "attendance.marked"
	TypeReportEmail      = "report.email"
	TypePasswordReset    = "student.password_reset"
	TypeSupportRequest   = "support.request"
)

// AttendanceMarked is published after a new attendance row is written.
type AttendanceMarked struct {
	RegNo  string    `json:"reg_no"`
	Name   string    `json:"name"`
	Date   string    `json:"date"`
	Method string    `json:"method"`
	At     time.Time `json:"at"`
}

// ReportEmail asks the worker to mail the attendance report for a date range.
type ReportEmail struct {
	Recipient string `json:"recipient"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// PasswordReset carries a single-use reset token to the student's address on file.
type PasswordReset struct {
	RegNo     string    `json:"reg_no"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SupportRequest is an admin's help request for the system administrator.
type SupportRequest struct {
	Recipient string    `json:"recipient"`
	Admin     string    `json:"admin"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

func AttendanceMarkedMessage(e AttendanceMarked) (queue.Message, error) {
	return queue.NewMessage(TypeAttendanceMarked, e)
}

func ReportEmailMessage(e ReportEmail) (queue.Message, error) {
	return queue.NewMessage(TypeReportEmail, e)
}

func PasswordResetMessage(e PasswordReset) (queue.Message, error) {
	return queue.NewMessage(TypePasswordReset, e)
}

func SupportRequestMessage(e SupportRequest) (queue.Message, error) {
	return queue.NewMessage(TypeSupportRequest, e)
}
