package handler

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/model"
	"rollcall/internal/notify"
	"rollcall/internal/support"
)

func (h *Handler) createTicket(c *gin.Context) {
	var req support.NewTicket
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	t, err := h.support.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket_id": t.ID, "message": "ticket created"})
}

func (h *Handler) listTickets(c *gin.Context) {
	list, err := h.support.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []model.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{"tickets": list, "count": len(list)})
}

func (h *Handler) getTicket(c *gin.Context) {
	t, err := h.support.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) updateTicket(c *gin.Context) {
	var req struct {
		Status     string `json:"status" binding:"required"`
		AdminNotes string `json:"admin_notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	t, err := h.support.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.AdminNotes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) ticketStats(c *gin.Context) {
	st, err := h.support.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// requestHelp queues a support.request mail to SUPPORT_EMAIL.
func (h *Handler) requestHelp(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required,max=200"`
		Message string `json:"message" binding:"required,max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if h.supportEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "SUPPORT_EMAIL is not set"})
		return
	}
	if h.publisher == nil {
		respondError(c, fmt.Errorf("no queue configured"))
		return
	}
	s, _ := auth.CurrentSession(c)
	msg, err := notify.SupportRequestMessage(notify.SupportRequest{
		Recipient: h.supportEmail,
		Admin:     s.Username,
		Subject:   strings.TrimSpace(req.Subject),
		Message:   req.Message,
		At:        h.now(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), msg); err != nil {
		respondError(c, err)
		return
	}
	log.Printf("support request from %s queued", s.Username)
	c.JSON(http.StatusAccepted, gin.H{"message": "request sent to the system administrator"})
}
