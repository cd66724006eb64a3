package model

import "time"

// Method records how an attendance row was produced.
type Method string

const (
	MethodFace   Method = "face"
	MethodQR     Method = "qr"
	MethodExcel  Method = "excel"
	MethodManual Method = "manual"
)

func (m Method) Valid() bool {
	switch m {
	case MethodFace, MethodQR, MethodExcel, MethodManual:
		return true
	}
	return false
}

// Category partitions enrolled galleries. Students and admins are never
// compared against each other.
type Category string

const (
	CategoryStudent Category = "student"
	CategoryAdmin   Category = "admin"
)

type Student struct {
	RegNo        string    `json:"registration_number"`
	Name         string    `json:"name"`
	Department   string    `json:"department"`
	Year         string    `json:"year,omitempty"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Embedding    []float32 `json:"-"`
	ImagePath    string    `json:"image_path,omitempty"`
	QRToken      string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FaceEnrolled reports whether the student has a stored descriptor.
func (s Student) FaceEnrolled() bool { return len(s.Embedding) > 0 }

const StatusPresent = "present"

type AttendanceRecord struct {
	ID         string    `json:"id"`
	RegNo      string    `json:"registration_number"`
	Name       string    `json:"name,omitempty"`
	Department string    `json:"department,omitempty"`
	Date       string    `json:"date"`
	Timestamp  time.Time `json:"timestamp"`
	Method     Method    `json:"method"`
	Status     string    `json:"status"`
	ProofPath  string    `json:"proof_path,omitempty"`
}

const (
	AdminActive   = "active"
	AdminInactive = "inactive"
)

type Admin struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Email        string    `json:"email,omitempty"`
	Status       string    `json:"status"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a Admin) Active() bool { return a.Status == AdminActive }

// GalleryEntry is one enrolled identity as seen by the matcher.
type GalleryEntry struct {
	ID         string
	Name       string
	Descriptor []float32
}

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
)

func ValidTicketStatus(s string) bool {
	return s == TicketOpen || s == TicketInProgress || s == TicketResolved
}

type Ticket struct {
	ID          string     `json:"id"`
	StudentName string     `json:"student_name"`
	RegNo       string     `json:"registration_number,omitempty"`
	Email       string     `json:"email"`
	Subject     string     `json:"subject"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	AdminNotes  string     `json:"admin_notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
