package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/model"
	"rollcall/internal/report"
	"rollcall/internal/store"
)

const dateLayout = "2006-01-02"

func outcomeJSON(out attendance.Outcome) gin.H {
	h := gin.H{
		"written":        out.Written,
		"already_marked": out.AlreadyMarked,
		"message":        out.Message,
	}
	if out.Written || out.AlreadyMarked {
		h["registration_number"] = out.Record.RegNo
		h["name"] = out.Record.Name
		h["date"] = out.Record.Date
		h["timestamp"] = out.Record.Timestamp
		h["method"] = out.Record.Method
	}
	return h
}

func (h *Handler) markFace(c *gin.Context) {
	frame, err := readFrame(c)
	if err != nil {
		respondError(c, err)
		return
	}
	res, out, err := h.attendance.MarkByFace(c.Request.Context(), frame)
	if err != nil {
		respondError(c, err)
		return
	}
	body := outcomeJSON(out)
	body["matched"] = res.Matched
	body["score"] = res.Score
	body["match_message"] = res.Message
	if res.Matched {
		body["registration_number"] = res.ID
		body["name"] = res.Name
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) markQR(c *gin.Context) {
	var req struct {
		Payload string `json:"qr_payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	out, err := h.attendance.MarkByQR(c.Request.Context(), req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomeJSON(out))
}

func (h *Handler) manualMark(c *gin.Context) {
	var req struct {
		RegNo string `json:"registration_number" binding:"required,regno"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	out, err := h.attendance.Mark(c.Request.Context(), req.RegNo, model.MethodManual, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomeJSON(out))
}

// bulkMark reads registration numbers from an uploaded xlsx or csv "file".
func (h *Handler) bulkMark(c *gin.Context) {
	data, fh, err := readFile(c, "file")
	if err != nil {
		respondError(c, err)
		return
	}
	regNos, err := report.ReadRegistrationNumbers(data, fh.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.attendance.MarkBulk(c.Request.Context(), regNos, model.MethodExcel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// dateRange reads ?from and ?to (YYYY-MM-DD); a single ?date sets both.
func dateRange(c *gin.Context) (from, to string, err error) {
	from, to = c.Query("from"), c.Query("to")
	if d := c.Query("date"); d != "" {
		from, to = d, d
	}
	if err := checkRange(from, to); err != nil {
		return "", "", err
	}
	return from, to, nil
}

// checkRange validates optional YYYY-MM-DD bounds.
func checkRange(from, to string) error {
	for _, v := range []string{from, to} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			return fmt.Errorf("%w: dates must be YYYY-MM-DD", errBadRequest)
		}
	}
	if from != "" && to != "" && from > to {
		return fmt.Errorf("%w: from is after to", errBadRequest)
	}
	return nil
}

func (h *Handler) listAttendance(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			respondError(c, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
	}
	recs, err := h.records.List(c.Request.Context(), store.AttendanceFilter{From: from, To: to, RegNo: c.Query("reg_no"), Limit: limit})
	if err != nil {
		respondError(c, err)
		return
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}
