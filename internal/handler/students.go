package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/qr"
	"rollcall/internal/report"
	"rollcall/internal/store"
	"rollcall/internal/students"
)

type studentForm struct {
	RegNo      string `form:"registration_number" binding:"required,regno"`
	Name       string `form:"name" binding:"required"`
	Department string `form:"department"`
	Year       string `form:"year"`
	Email      string `form:"email" binding:"omitempty,email"`
	Phone      string `form:"phone"`
	Password   string `form:"password"`
}

// createStudent enrols a student from a multipart form with an "image" file.
func (h *Handler) createStudent(c *gin.Context) {
	var form studentForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, bindErr(err))
		return
	}
	frame, err := readFrame(c)
	if err != nil {
		respondError(c, err)
		return
	}
	st, err := h.students.Enroll(c.Request.Context(), students.EnrollRequest{
		RegNo: form.RegNo,
		Profile: students.Profile{
			Name:       form.Name,
			Department: form.Department,
			Year:       form.Year,
			Email:      form.Email,
			Phone:      form.Phone,
		},
		Password: form.Password,
		Frame:    frame,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": st, "message": "student registered"})
}

func (h *Handler) listStudents(c *gin.Context) {
	list, err := h.students.List(c.Request.Context(), store.StudentFilter{
		Department: c.Query("department"),
		Search:     c.Query("search"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, st := range list {
		out = append(out, gin.H{"student": st, "face_enrolled": st.FaceEnrolled()})
	}
	c.JSON(http.StatusOK, gin.H{"students": out, "count": len(out)})
}

func (h *Handler) getStudent(c *gin.Context) {
	st, err := h.students.Get(c.Request.Context(), c.Param("reg_no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st, "face_enrolled": st.FaceEnrolled()})
}

func (h *Handler) updateStudent(c *gin.Context) {
	var p students.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		bindError(c, err)
		return
	}
	st, err := h.students.Update(c.Request.Context(), c.Param("reg_no"), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st})
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("reg_no")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reenrollStudent(c *gin.Context) {
	frame, err := readFrame(c)
	if err != nil {
		respondError(c, err)
		return
	}
	st, err := h.students.Reenroll(c.Request.Context(), c.Param("reg_no"), frame)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st, "message": "face re-enrolled"})
}

// bulkEnroll enrols every photo in an uploaded ZIP "file".
func (h *Handler) bulkEnroll(c *gin.Context) {
	data, _, err := readFile(c, "file")
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.students.ImportZip(c.Request.Context(), data, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) exportStudents(c *gin.Context) {
	list, err := h.students.List(c.Request.Context(), store.StudentFilter{Department: c.Query("department")})
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := report.StudentsWorkbook(list)
	if err != nil {
		respondError(c, err)
		return
	}
	attachment(c, "students.xlsx", report.ContentTypeXLSX, data)
}

func (h *Handler) adminStudentQR(c *gin.Context) {
	h.qrResponse(c, c.Param("reg_no"))
}

// qrResponse answers with the payload and its PNG as a data URL.
func (h *Handler) qrResponse(c *gin.Context, regNo string) {
	payload, err := h.students.QRPayload(c.Request.Context(), regNo)
	if err != nil {
		respondError(c, err)
		return
	}
	png, err := qr.PNG(payload, qr.DefaultSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"registration_number": regNo,
		"qr_payload":          payload,
		"qr_image":            "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}
