package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-stream/relay/internal/metrics"
	"github.com/aura-stream/relay/pkg/protocol"
)

// Room lifecycle events recorded through EventRecorder.
const (
	EventRoomCreated          = "room_created"
	EventRoomDeleted          = "room_deleted"
	EventViewerJoined         = "viewer_joined"
	EventViewerLeft           = "viewer_left"
	EventStreamerDisconnected = "streamer_disconnected"
)

// EventRecorder persists room lifecycle events. Implementations must not
// block on failure paths; errors are theirs to log.
type EventRecorder interface {
	Record(ctx context.Context, roomKey, event, detail string)
}

// StreamTap observes relayed stream fragments, e.g. the segment archiver.
// Append is called on the relay hot path and must return quickly.
type StreamTap interface {
	Append(roomKey, videoData string, last bool)
	CloseRoom(roomKey string)
}

// Engine is the signaling protocol state machine. It decodes inbound frames,
// drives the Registry, and fans stream data out to viewers. One Engine
// serves all connections; per-connection read loops call into it
// concurrently.
type Engine struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	events   EventRecorder // optional
	tap      StreamTap     // optional
}

// NewEngine creates a protocol engine over registry. events and tap may be
// nil.
func NewEngine(registry *Registry, m *metrics.Metrics, events EventRecorder, tap StreamTap, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{registry: registry, logger: logger, metrics: m, events: events, tap: tap}
}

// Registry returns the engine's room registry.
func (e *Engine) Registry() *Registry { return e.registry }

// HandleMessage processes one inbound frame from p. Malformed frames and
// unknown operations never fail the connection: the relay must stay
// available across any single client's misbehavior.
func (e *Engine) HandleMessage(ctx context.Context, p Peer, frame []byte) {
	msg, err := protocol.DecodeMessage(frame)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownOperation) {
			e.logger.Debug("ignoring unknown operation", zap.Error(err), zap.String("conn", p.ID()))
			return
		}
		e.logger.Warn("malformed frame", zap.Error(err), zap.String("conn", p.ID()))
		if e.metrics != nil {
			e.metrics.IncProtocolErrors()
		}
		return
	}

	switch msg.Op {
	case protocol.OpCreateRoom:
		e.createRoom(ctx, p)
	case protocol.OpDeleteRoom:
		e.deleteRoom(ctx, msg.Key)
	case protocol.OpJoinRoom:
		e.joinRoom(ctx, p, msg.Join)
	case protocol.OpLeaveRoom:
		e.leaveRoom(ctx, p, msg.Key)
	case protocol.OpStreamData:
		e.streamData(msg)
	}
}

// HandleDisconnect removes p from every room it streams or watches. Rooms
// whose streamer was p are discarded without notifying their viewers; the
// viewers' own connections will observe the silence and time out client-side.
func (e *Engine) HandleDisconnect(ctx context.Context, p Peer) {
	deleted := e.registry.DropPeer(p)
	for _, key := range deleted {
		e.logger.Info("room closed by streamer disconnect", zap.String("room", key))
		if e.tap != nil {
			e.tap.CloseRoom(key)
		}
		if e.events != nil {
			e.events.Record(ctx, key, EventStreamerDisconnected, "")
		}
		if e.metrics != nil {
			e.metrics.IncRoomsDeleted()
		}
	}
}

func (e *Engine) createRoom(ctx context.Context, p Peer) {
	key, err := e.registry.CreateRoom(p)
	if err != nil {
		e.logger.Error("create room", zap.Error(err))
		e.send(p, protocol.OpError, "room creation failed")
		return
	}
	e.send(p, protocol.OpCreatedRoom, key)
	if e.events != nil {
		e.events.Record(ctx, key, EventRoomCreated, "")
	}
	if e.metrics != nil {
		e.metrics.IncRoomsCreated()
	}
}

func (e *Engine) deleteRoom(ctx context.Context, key string) {
	viewers, ok := e.registry.RemoveRoom(key)
	if !ok {
		// Double-delete is tolerated.
		e.logger.Debug("delete of unknown room", zap.String("room", key))
		return
	}
	for _, viewer := range viewers {
		e.send(viewer, protocol.OpDeletedRoom, key)
	}
	if e.tap != nil {
		e.tap.CloseRoom(key)
	}
	if e.events != nil {
		e.events.Record(ctx, key, EventRoomDeleted, "")
	}
	if e.metrics != nil {
		e.metrics.IncRoomsDeleted()
	}
}

func (e *Engine) joinRoom(ctx context.Context, p Peer, join *protocol.JoinPayload) {
	streamer, ok := e.registry.JoinRoom(join.Key, p)
	if !ok {
		e.send(p, protocol.OpError, fmt.Sprintf("Room %s doesn't exists.", join.Key))
		if e.metrics != nil {
			e.metrics.IncProtocolErrors()
		}
		return
	}
	e.send(streamer, protocol.OpJoinedRoom, join.DisplayName)
	if e.events != nil {
		e.events.Record(ctx, join.Key, EventViewerJoined, join.DisplayName)
	}
}

func (e *Engine) leaveRoom(ctx context.Context, p Peer, key string) {
	e.registry.LeaveRoom(key, p)
	if e.events != nil {
		e.events.Record(ctx, key, EventViewerLeft, "")
	}
}

// streamData forwards the original frame, byte for byte, to every current
// viewer of the room. Viewers must receive exactly the bytes the streamer
// sent, so the frame is never re-serialized.
func (e *Engine) streamData(msg *protocol.Message) {
	room, ok := e.registry.Room(msg.Stream.RoomKey)
	if !ok {
		// The streamer may still be flushing after its room was deleted.
		e.logger.Debug("stream data for unknown room", zap.String("room", msg.Stream.RoomKey))
		if e.metrics != nil {
			e.metrics.IncProtocolErrors()
		}
		return
	}
	viewers := room.Viewers()
	for _, viewer := range viewers {
		if err := viewer.SendRaw(msg.Raw); err != nil {
			// A dead or slow viewer must not starve the rest of the room.
			e.logger.Warn("drop fragment for viewer",
				zap.String("room", msg.Stream.RoomKey),
				zap.String("viewer", viewer.ID()),
				zap.Error(err))
			if e.metrics != nil {
				e.metrics.IncDroppedSends()
			}
		}
	}
	if e.tap != nil {
		e.tap.Append(msg.Stream.RoomKey, msg.Stream.VideoData, msg.Stream.Last)
	}
	if e.metrics != nil {
		e.metrics.AddFragment(len(msg.Stream.VideoData), len(viewers))
	}
}

// send queues one frame for p, logging per-recipient failures without
// affecting other deliveries.
func (e *Engine) send(p Peer, operation, payload string) {
	if err := p.Send(operation, payload); err != nil {
		e.logger.Warn("send failed",
			zap.String("operation", operation),
			zap.String("conn", p.ID()),
			zap.Error(err))
		if e.metrics != nil {
			e.metrics.IncDroppedSends()
		}
	}
}
