package auth

import (
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	"github.com/aura-stream/relay/pkg/response"
)

// Handler serves guest token issuance.
type Handler struct {
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{jwt: jwt, logger: logger}
}

type tokenRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role"`
}

// IssueToken handles POST /auth/token: hands out a signed guest token for
// the websocket endpoint.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "display_name required")
		return
	}
	role := req.Role
	if role != RoleStreamer {
		role = RoleViewer
	}
	token, err := h.jwt.Generate(req.DisplayName, role)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "token generation failed")
		return
	}
	response.OK(c, gin.H{"token": token, "role": role})
}
