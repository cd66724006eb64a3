package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/admin"
	"rollcall/internal/attendance"
	"rollcall/internal/face"
	"rollcall/internal/intake"
	"rollcall/internal/qr"
	"rollcall/internal/report"
	"rollcall/internal/store"
	"rollcall/internal/students"
	"rollcall/internal/support"
)

// errBadRequest marks malformed requests caught in the handler itself.
var errBadRequest = errors.New("bad request")

var badRequest = []error{
	errBadRequest,
	intake.ErrInvalidImage,
	face.ErrNoFace,
	face.ErrMultipleFaces,
	qr.ErrInvalidPayload,
	attendance.ErrInvalidQRToken,
	students.ErrInvalidInput,
	students.ErrInvalidResetToken,
	admin.ErrInvalidInput,
	admin.ErrInvalidRole,
	support.ErrInvalidInput,
	support.ErrInvalidStatus,
	report.ErrUnreadable,
	report.ErrMissingColumn,
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, students.ErrInvalidCredentials),
		errors.Is(err, admin.ErrInvalidCredentials),
		errors.Is(err, admin.ErrFaceNotRecognized):
		return http.StatusUnauthorized
	case errors.Is(err, admin.ErrInactive), errors.Is(err, admin.ErrProtected):
		return http.StatusForbidden
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondError answers with {"error": msg}. Server faults are logged and
// reported as "internal error".
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// bindErr classifies a binding failure; oversized bodies keep their own status.
func bindErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

func bindError(c *gin.Context, err error) {
	respondError(c, bindErr(err))
}
