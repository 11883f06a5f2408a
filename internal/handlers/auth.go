package handlers

import (
	"net/http"

	"behavior-backend/internal/apperr"
	"behavior-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the password and issues a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.Users.ByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			respondStatus(c, http.StatusUnauthorized, "Invalid username or password", apperr.KindUnauthorized.String())
			return
		}
		respondError(c, err)
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		respondStatus(c, http.StatusUnauthorized, "Invalid username or password", apperr.KindUnauthorized.String())
		return
	}
	if !user.Active {
		respondStatus(c, http.StatusForbidden, "Account is disabled", "forbidden")
		return
	}

	token, err := h.Issuer.Issue(user.Username, user.Role, user.ID)
	if err != nil {
		respondError(c, apperr.Internal("auth.login", err))
		return
	}
	h.logger.Info("user logged in", zap.String("username", user.Username), zap.Uint("user_id", user.ID))

	respondOK(c, "Login successful", gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int64(h.Issuer.Expiry().Seconds()),
		"user":       user,
	})
}

// ValidateToken reports whether the Authorization header carries a valid token.
func (h *Handler) ValidateToken(c *gin.Context) {
	id, ok := h.Gate.Verify(c.GetHeader("Authorization"))
	if !ok {
		respondOK(c, "Token is invalid", gin.H{"valid": false})
		return
	}
	respondOK(c, "Token is valid", gin.H{
		"valid":    true,
		"username": id.Subject,
		"role":     id.Role,
		"user_id":  id.OwnerID,
	})
}
