package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-stream/relay/pkg/protocol"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	writeWait = 10 * time.Second

	// maxMessageSize bounds inbound frames. Encoded fragments grow 4/3 over
	// the raw fragment size plus envelope overhead, so 1MiB leaves ample
	// headroom for any sane producer fragment size.
	maxMessageSize = 1 << 20

	// sendBuffer is the per-connection outbound queue. When it fills the
	// frame is dropped rather than blocking the sender's read loop.
	sendBuffer = 256
)

// ErrSendBufferFull is returned when a peer's outbound queue is full.
var ErrSendBufferFull = errors.New("relay: send buffer full")

// Client is one websocket connection. It implements Peer: outbound frames go
// through a buffered channel drained by writePump, so the engine never blocks
// on a peer's socket.
type Client struct {
	id     string
	conn   *websocket.Conn
	engine *Engine
	send   chan []byte
	logger *zap.Logger
}

// NewClient wraps an upgraded websocket connection. Run must be called to
// start the pumps.
func NewClient(conn *websocket.Conn, engine *Engine, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		engine: engine,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
	}
}

// ID returns the connection's stable identifier.
func (c *Client) ID() string { return c.id }

// Send serializes and queues one frame for the peer.
func (c *Client) Send(operation, payload string) error {
	frame, err := protocol.EncodeEnvelope(operation, payload)
	if err != nil {
		return err
	}
	return c.SendRaw(frame)
}

// SendRaw queues an already-serialized frame without blocking.
func (c *Client) SendRaw(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Run starts the write pump and blocks in the read loop until the connection
// closes. The caller's goroutine is the read pump, matching one goroutine
// per direction.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.engine.HandleDisconnect(context.Background(), c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.engine.HandleMessage(context.Background(), c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
