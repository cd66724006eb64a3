// Package handler exposes the attendance service over HTTP with gin.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/admin"
	"rollcall/internal/analytics"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/model"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/students"
	"rollcall/internal/support"
)

type RecordLister interface {
	List(ctx context.Context, f store.AttendanceFilter) ([]model.AttendanceRecord, error)
}

// Config carries the services the routes call into.
type Config struct {
	Students   *students.Service
	Resets     *students.Resets
	Attendance *attendance.Service
	Admins     *admin.Service
	Analytics  *analytics.Service
	Support    *support.Service
	Records    RecordLister
	Publisher  attendance.Publisher
	Roles      *auth.Roles
	Tokens     *auth.Tokens
	Sessions   session.Store

	Location        *time.Location
	MaxUploadBytes  int64
	ReportRecipient string
	SupportEmail    string
	// ImageDir, when set, is served under /images to admins with view access.
	ImageDir string
}

type Handler struct {
	students   *students.Service
	resets     *students.Resets
	attendance *attendance.Service
	admins     *admin.Service
	analytics  *analytics.Service
	support    *support.Service
	records    RecordLister
	publisher  attendance.Publisher
	roles      *auth.Roles
	tokens     *auth.Tokens
	sessions   session.Store

	loc             *time.Location
	maxUpload       int64
	reportRecipient string
	supportEmail    string
	imageDir        string
	now             func() time.Time
}

func New(cfg Config) *Handler {
	registerValidators()
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		students:        cfg.Students,
		resets:          cfg.Resets,
		attendance:      cfg.Attendance,
		admins:          cfg.Admins,
		analytics:       cfg.Analytics,
		support:         cfg.Support,
		records:         cfg.Records,
		publisher:       cfg.Publisher,
		roles:           cfg.Roles,
		tokens:          cfg.Tokens,
		sessions:        cfg.Sessions,
		loc:             loc,
		maxUpload:       maxUpload,
		reportRecipient: cfg.ReportRecipient,
		supportEmail:    cfg.SupportEmail,
		imageDir:        cfg.ImageDir,
		now:             time.Now,
	}
}

// Register mounts every API route under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	upload := h.limitBody()
	api.POST("/attendance/face", upload, h.markFace)
	api.POST("/attendance/qr", h.markQR)
	api.POST("/support/tickets", h.createTicket)
	api.POST("/auth/student/register", h.studentRegister)
	api.POST("/auth/student/login", h.studentLogin)
	api.POST("/auth/student/forgot-password", h.studentForgotPassword)
	api.POST("/auth/student/reset-password", h.studentResetPassword)

	portal := api.Group("/student", auth.StudentAuth(h.tokens))
	portal.GET("/me", h.studentMe)
	portal.GET("/attendance", h.studentAttendance)
	portal.GET("/qr", h.studentQR)

	api.POST("/admin/login", upload, h.adminLogin)

	signedIn := auth.AdminSession(h.sessions, h.admins)
	adm := api.Group("/admin", signedIn)
	view := auth.Require(h.roles, auth.PermView)
	edit := auth.Require(h.roles, auth.PermEdit)
	del := auth.Require(h.roles, auth.PermDelete)
	manage := auth.Require(h.roles, auth.PermManageAdmins)

	if h.imageDir != "" {
		r.Group("/images", signedIn, view).Static("/", h.imageDir)
	}

	adm.POST("/logout", h.adminLogout)
	adm.GET("/session", h.adminSession)
	adm.POST("/face", upload, h.enrollAdminFace)
	adm.GET("/face", h.adminFaceStatus)
	adm.POST("/password", h.changePassword)

	adm.GET("/admins", manage, h.listAdmins)
	adm.POST("/admins", manage, h.addAdmin)
	adm.PUT("/admins/:username/role", manage, h.updateAdminRole)
	adm.POST("/admins/:username/deactivate", manage, h.deactivateAdmin)

	adm.GET("/students", view, h.listStudents)
	adm.POST("/students", edit, upload, h.createStudent)
	adm.GET("/students/export.xlsx", view, h.exportStudents)
	adm.POST("/students/bulk", edit, upload, h.bulkEnroll)
	adm.GET("/students/:reg_no", view, h.getStudent)
	adm.PUT("/students/:reg_no", edit, h.updateStudent)
	adm.DELETE("/students/:reg_no", del, h.deleteStudent)
	adm.POST("/students/:reg_no/face", edit, upload, h.reenrollStudent)
	adm.GET("/students/:reg_no/qr", view, h.adminStudentQR)
	adm.GET("/students/:reg_no/report.pdf", view, h.studentReportPDF)

	adm.GET("/attendance", view, h.listAttendance)
	adm.POST("/attendance/manual", edit, h.manualMark)
	adm.POST("/attendance/bulk", edit, upload, h.bulkMark)

	adm.GET("/reports", view, h.dailyReport)
	adm.GET("/reports/xlsx", view, h.reportXLSX)
	adm.GET("/reports/pdf", view, h.reportPDF)
	adm.POST("/reports/email", view, h.emailReport)

	adm.GET("/analytics/summary", view, h.analyticsSummary)
	adm.GET("/analytics/daily", view, h.analyticsDaily)
	adm.GET("/analytics/weekly", view, h.analyticsWeekly)
	adm.GET("/analytics/monthly", view, h.analyticsMonthly)
	adm.GET("/analytics/students", view, h.analyticsStudents)

	adm.GET("/support/tickets", view, h.listTickets)
	adm.GET("/support/tickets/:id", view, h.getTicket)
	adm.PUT("/support/tickets/:id", edit, h.updateTicket)
	adm.GET("/support/stats", view, h.ticketStats)
	adm.POST("/support/request-help", h.requestHelp)
}

// limitBody caps request bodies of upload routes.
func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
		c.Next()
	}
}
