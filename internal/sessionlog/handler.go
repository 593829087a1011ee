package sessionlog

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aura-stream/relay/pkg/response"
)

// Handler serves room event history.
type Handler struct {
	repo *Repository
}

// NewHandler creates a session log handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByRoom handles GET /api/rooms/:key/events.
func (h *Handler) ListByRoom(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.repo.ListByRoom(c.Request.Context(), c.Param("key"), limit)
	if err != nil {
		response.Internal(c, "failed to load room events")
		return
	}
	response.OK(c, events)
}
