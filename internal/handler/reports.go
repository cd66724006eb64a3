package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rollcall/internal/notify"
	"rollcall/internal/report"
	"rollcall/internal/store"
)

func (h *Handler) today() string {
	return h.now().In(h.loc).Format(dateLayout)
}

// reportRows loads report rows for the requested range. With no range the
// report covers today.
func (h *Handler) reportRows(c *gin.Context) (rows []report.Row, from, to string, err error) {
	if from, to, err = dateRange(c); err != nil {
		return nil, "", "", err
	}
	if from == "" && to == "" {
		from, to = h.today(), h.today()
	}
	recs, err := h.records.List(c.Request.Context(), store.AttendanceFilter{From: from, To: to, RegNo: c.Query("reg_no")})
	if err != nil {
		return nil, "", "", err
	}
	return report.Rows(recs, h.loc), from, to, nil
}

func (h *Handler) dailyReport(c *gin.Context) {
	rows, from, to, err := h.reportRows(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "rows": rows, "count": len(rows)})
}

func (h *Handler) reportXLSX(c *gin.Context) {
	rows, from, to, err := h.reportRows(c)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := report.AttendanceWorkbook(rows)
	if err != nil {
		respondError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("attendance_%s_%s.xlsx", from, to), report.ContentTypeXLSX, data)
}

func (h *Handler) reportPDF(c *gin.Context) {
	rows, from, to, err := h.reportRows(c)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := report.AttendancePDF(rows, from, to, h.now().In(h.loc))
	if err != nil {
		respondError(c, err)
		return
	}
	attachment(c, fmt.Sprintf("attendance_%s_%s.pdf", from, to), "application/pdf", data)
}

func (h *Handler) studentReportPDF(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.students.Get(ctx, c.Param("reg_no"))
	if err != nil {
		respondError(c, err)
		return
	}
	recs, err := h.records.List(ctx, store.AttendanceFilter{RegNo: st.RegNo})
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := report.StudentPDF(st, recs, h.loc, h.now().In(h.loc))
	if err != nil {
		respondError(c, err)
		return
	}
	attachment(c, "student_report_"+st.RegNo+".pdf", "application/pdf", data)
}

// emailReport queues a report.email job for the worker.
func (h *Handler) emailReport(c *gin.Context) {
	var req struct {
		Recipient string `json:"recipient" binding:"omitempty,email"`
		From      string `json:"from"`
		To        string `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Recipient == "" {
		req.Recipient = h.reportRecipient
	}
	if req.Recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no recipient given and REPORT_RECIPIENT is not set"})
		return
	}
	if req.From == "" {
		req.From = h.today()
	}
	if req.To == "" {
		req.To = req.From
	}
	if err := checkRange(req.From, req.To); err != nil {
		respondError(c, err)
		return
	}
	msg, err := notify.ReportEmailMessage(notify.ReportEmail{Recipient: req.Recipient, From: req.From, To: req.To})
	if err != nil {
		respondError(c, err)
		return
	}
	if h.publisher == nil {
		respondError(c, fmt.Errorf("no queue configured"))
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), msg); err != nil {
		respondError(c, err)
		return
	}
	log.Printf("report email queued for %s (%s to %s)", req.Recipient, req.From, req.To)
	c.JSON(http.StatusAccepted, gin.H{"message": "report queued", "recipient": req.Recipient, "from": req.From, "to": req.To})
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, key)
	}
	return n, nil
}

func (h *Handler) analyticsSummary(c *gin.Context) {
	s, err := h.analytics.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) analyticsDaily(c *gin.Context) {
	days, err := queryInt(c, "days", 7)
	if err != nil {
		respondError(c, err)
		return
	}
	s, err := h.analytics.Daily(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) analyticsWeekly(c *gin.Context) {
	weeks, err := queryInt(c, "weeks", 4)
	if err != nil {
		respondError(c, err)
		return
	}
	s, err := h.analytics.Weekly(c.Request.Context(), weeks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) analyticsMonthly(c *gin.Context) {
	s, err := h.analytics.Monthly(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) analyticsStudents(c *gin.Context) {
	list, err := h.analytics.Students(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}
