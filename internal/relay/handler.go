package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-stream/relay/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// TokenValidator checks a signaling token and returns the claims the relay
// cares about. nil disables authentication on the websocket endpoint.
type TokenValidator func(token string) (displayName, role string, err error)

// ServeWs handles the websocket upgrade and runs the client loop. When
// validate is non-nil a valid token is required in the query string.
func ServeWs(engine *Engine, logger *zap.Logger, validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validate != nil {
			if _, _, err := validate(c.Query("token")); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, engine, logger)
		client.Run()
	}
}

// RoomInfo is the REST view of one room.
type RoomInfo struct {
	Key     string `json:"key"`
	Viewers int    `json:"viewers"`
}

// GetRoom returns existence and viewer count for a room key, for operations
// tooling. Room keys are not secrets; media still requires joining the room.
func GetRoom(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		room, ok := registry.Room(key)
		if !ok {
			response.NotFound(c, "room not found")
			return
		}
		response.OK(c, RoomInfo{Key: room.Key(), Viewers: room.ViewerCount()})
	}
}
