package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/model"
	"rollcall/internal/store"
	"rollcall/internal/students"
)

func (h *Handler) studentRegister(c *gin.Context) {
	var req struct {
		RegNo      string `json:"registration_number" binding:"required,regno"`
		Name       string `json:"name" binding:"required"`
		Department string `json:"department"`
		Year       string `json:"year"`
		Email      string `json:"email" binding:"omitempty,email"`
		Phone      string `json:"phone"`
		Password   string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	st, err := h.students.Register(c.Request.Context(), req.RegNo, students.Profile{
		Name:       req.Name,
		Department: req.Department,
		Year:       req.Year,
		Email:      req.Email,
		Phone:      req.Phone,
	}, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": st, "message": "account created"})
}

func (h *Handler) studentLogin(c *gin.Context) {
	var req struct {
		RegNo    string `json:"registration_number" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.students.Login(c.Request.Context(), req.RegNo, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// studentForgotPassword answers 202 whether or not the student and address
// match, so it does not reveal which accounts exist.
func (h *Handler) studentForgotPassword(c *gin.Context) {
	var req struct {
		RegNo string `json:"registration_number" binding:"required"`
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.resets.Request(c.Request.Context(), req.RegNo, req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "if the details match, a reset code has been mailed"})
}

func (h *Handler) studentResetPassword(c *gin.Context) {
	var req struct {
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.resets.Reset(c.Request.Context(), req.Code, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func currentStudent(c *gin.Context) string {
	cl, _ := auth.CurrentClaims(c)
	return cl.Subject
}

func (h *Handler) studentMe(c *gin.Context) {
	st, err := h.students.Get(c.Request.Context(), currentStudent(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st, "face_enrolled": st.FaceEnrolled()})
}

func (h *Handler) studentAttendance(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	recs, err := h.records.List(c.Request.Context(), store.AttendanceFilter{RegNo: currentStudent(c), From: from, To: to})
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func (h *Handler) studentQR(c *gin.Context) {
	h.qrResponse(c, currentStudent(c))
}
