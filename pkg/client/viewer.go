package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-stream/relay/pkg/protocol"
	"github.com/aura-stream/relay/pkg/segment"
)

// ViewerOptions tunes a Viewer. Consumer is required: it receives complete,
// reassembled segments one at a time, in completion order.
type ViewerOptions struct {
	Consumer segment.Consumer
	// OnRoomDeleted is called when the streamer deletes the room.
	OnRoomDeleted func()
	Logger        *zap.Logger
}

// Viewer joins a room and feeds reassembled segments into its consumer
// through a single-slot sink buffer.
type Viewer struct {
	conn   *websocket.Conn
	key    string
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	err    error
	done   chan struct{}
}

// DialViewer connects to the relay at url and joins the room identified by
// key under displayName. Join failures (unknown key) are reported
// asynchronously: the relay answers with an Error frame, the connection ends,
// and Err returns the cause after Done is closed.
func DialViewer(ctx context.Context, url, key, displayName string, opts ViewerOptions) (*Viewer, error) {
	if opts.Consumer == nil {
		return nil, fmt.Errorf("viewer: Consumer is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	v := &Viewer{
		conn:   conn,
		key:    key,
		logger: opts.Logger,
		done:   make(chan struct{}),
	}

	payload, err := protocol.EncodeJoinPayload(key, displayName)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	frame, err := protocol.EncodeEnvelope(protocol.OpJoinRoom, payload)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join room: %w", err)
	}

	go v.readLoop(opts)
	return v, nil
}

// Done is closed when the viewer stops receiving, for any reason.
func (v *Viewer) Done() <-chan struct{} { return v.done }

// Err reports why the viewer stopped. It is meaningful after Done is closed;
// nil means a clean close (Leave, Close, or room deletion).
func (v *Viewer) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Leave notifies the relay and closes the connection.
func (v *Viewer) Leave() error {
	frame, err := protocol.EncodeEnvelope(protocol.OpLeaveRoom, v.key)
	if err == nil {
		err = v.conn.WriteMessage(websocket.TextMessage, frame)
	}
	if closeErr := v.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close closes the connection without notifying the relay; the relay prunes
// the membership on disconnect.
func (v *Viewer) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()
	return v.conn.Close()
}

func (v *Viewer) fail(err error) {
	v.mu.Lock()
	if v.err == nil && !v.closed {
		v.err = err
	}
	v.mu.Unlock()
}

func (v *Viewer) readLoop(opts ViewerOptions) {
	defer func() {
		_ = v.Close()
		close(v.done)
	}()

	sink := segment.NewSinkBuffer(opts.Consumer)
	reassembler := segment.NewReassembler(sink.Offer)

	for {
		_, frame, err := v.conn.ReadMessage()
		if err != nil {
			v.fail(fmt.Errorf("read: %w", err))
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			v.logger.Debug("ignoring undecodable frame", zap.Error(err))
			continue
		}

		switch env.Operation {
		case protocol.OpStreamData:
			var stream protocol.StreamPayload
			if err := json.Unmarshal([]byte(env.Payload), &stream); err != nil {
				v.logger.Warn("malformed stream payload", zap.Error(err))
				continue
			}
			if err := reassembler.Push(stream.VideoData, stream.Last); err != nil {
				// The reassembler already dropped the broken segment; playback
				// resumes at the next one.
				v.logger.Warn("corrupt fragment", zap.String("room", v.key), zap.Error(err))
			}
		case protocol.OpDeletedRoom:
			v.logger.Info("room deleted by streamer", zap.String("room", v.key))
			if opts.OnRoomDeleted != nil {
				opts.OnRoomDeleted()
			}
			return
		case protocol.OpError:
			v.fail(fmt.Errorf("relay: %s", env.Payload))
			return
		default:
			v.logger.Debug("ignoring operation", zap.String("operation", env.Operation))
		}
	}
}
