package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pellet_stove/internal/models"
)

const identityKey = "identity"

// authenticate rejects requests without a valid bearer token and stores the
// caller's identity in the gin context.
func (h *Handler) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
		return
	}

	id, err := h.services.ParseToken(strings.TrimSpace(token))
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(identityKey, id)
	c.Next()
}

// requireOperator guards routes that change the stove. It must run after
// authenticate.
func (h *Handler) requireOperator(c *gin.Context) {
	if !identity(c).CanOperate() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator role required"})
		return
	}
	c.Next()
}

func identity(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(models.Identity)
	return id
}
