package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/model"
	"rollcall/internal/session"
)

func sessionJSON(s session.Session, a model.Admin, perms []string) gin.H {
	return gin.H{
		"token":       s.Token,
		"expires_at":  s.ExpiresAt,
		"username":    a.Username,
		"role":        a.Role,
		"permissions": perms,
	}
}

// adminLogin accepts {"type":"password","username","password"} or
// {"type":"face","image":"<base64>"}.
func (h *Handler) adminLogin(c *gin.Context) {
	var req struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Password string `json:"password"`
		Image    string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	switch req.Type {
	case "", "password":
		if req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		s, a, err := h.admins.Login(ctx, req.Username, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionJSON(s, a, h.roles.Permissions(a.Role)))
	case "face":
		frame, err := decodeImage(req.Image)
		if err != nil {
			respondError(c, err)
			return
		}
		s, a, res, err := h.admins.FaceLogin(ctx, frame)
		if err != nil {
			respondError(c, err)
			return
		}
		body := sessionJSON(s, a, h.roles.Permissions(a.Role))
		body["score"] = res.Score
		c.JSON(http.StatusOK, body)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be password or face"})
	}
}

func (h *Handler) adminLogout(c *gin.Context) {
	if err := h.admins.Logout(c.Request.Context(), auth.SessionToken(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) adminSession(c *gin.Context) {
	s, _ := auth.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"username":    s.Username,
		"role":        s.Role,
		"expires_at":  s.ExpiresAt,
		"permissions": h.roles.Permissions(s.Role),
	})
}

func (h *Handler) enrollAdminFace(c *gin.Context) {
	s, _ := auth.CurrentSession(c)
	frame, err := readFrame(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.admins.EnrollFace(c.Request.Context(), s.Username, frame); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "face enrolled", "username": s.Username})
}

func (h *Handler) adminFaceStatus(c *gin.Context) {
	s, _ := auth.CurrentSession(c)
	ok, err := h.admins.HasFace(c.Request.Context(), s.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": s.Username, "face_enrolled": ok})
}

func (h *Handler) changePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	s, _ := auth.CurrentSession(c)
	if err := h.admins.ChangePassword(c.Request.Context(), s.Username, req.OldPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (h *Handler) listAdmins(c *gin.Context) {
	list, err := h.admins.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []model.Admin{}
	}
	c.JSON(http.StatusOK, gin.H{"admins": list, "roles": h.roles.Names()})
}

func (h *Handler) addAdmin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
		Role     string `json:"role" binding:"required"`
		Email    string `json:"email" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	a, err := h.admins.Add(c.Request.Context(), req.Username, req.Password, req.Role, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"admin": a})
}

func (h *Handler) updateAdminRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.admins.UpdateRole(c.Request.Context(), c.Param("username"), req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}

func (h *Handler) deactivateAdmin(c *gin.Context) {
	if err := h.admins.Deactivate(c.Request.Context(), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "admin deactivated"})
}
