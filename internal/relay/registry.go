// Package relay implements the room broker for live stream relaying: the
// registry of rooms, the signaling protocol engine, and the websocket client
// plumbing that connects them.
package relay

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// Peer is one connected client as seen by the relay core. Implementations
// must be safe for concurrent use; Send and SendRaw must never block the
// caller on the peer's socket.
type Peer interface {
	// ID uniquely identifies the connection for the lifetime of the process.
	ID() string
	// Send encodes and queues one operation frame for the peer.
	Send(operation, payload string) error
	// SendRaw queues an already-serialized frame for the peer.
	SendRaw(frame []byte) error
}

// keyAttempts bounds how often room key generation retries on collision.
const keyAttempts = 16

// Room is a single streamer's broadcast session. The streamer reference is
// fixed at creation; the viewer set grows and shrinks concurrently with
// streaming.
type Room struct {
	key      string
	streamer Peer

	mu      sync.Mutex
	viewers map[string]Peer
}

func newRoom(key string, streamer Peer) *Room {
	return &Room{key: key, streamer: streamer, viewers: make(map[string]Peer)}
}

// Key returns the room key.
func (r *Room) Key() string { return r.key }

// Streamer returns the room's streamer connection.
func (r *Room) Streamer() Peer { return r.streamer }

// Viewers returns a snapshot of the current viewer set. Fan-out iterates the
// snapshot so sends never happen under the room lock.
func (r *Room) Viewers() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Peer, 0, len(r.viewers))
	for _, v := range r.viewers {
		out = append(out, v)
	}
	return out
}

// ViewerCount returns the current number of viewers.
func (r *Room) ViewerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

func (r *Room) addViewer(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[p.ID()] = p
}

func (r *Room) removeViewer(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.viewers, p.ID())
}

// Registry owns the process-wide key→room mapping. It is an injected
// dependency of the engine, never package state, so tests can run isolated
// instances. All methods are safe for concurrent use; rooms are independent
// and no method holds a lock across a network send.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger *zap.Logger
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{rooms: make(map[string]*Room), logger: logger}
}

// CreateRoom allocates an unused key, inserts a room with streamer as its
// owner, and returns the key. Keys are at most four decimal digits drawn
// from crypto/rand; generation retries on collision a bounded number of
// times rather than silently overwriting a live room.
func (g *Registry) CreateRoom(streamer Peer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < keyAttempts; i++ {
		key, err := newKey()
		if err != nil {
			return "", fmt.Errorf("generate room key: %w", err)
		}
		if _, taken := g.rooms[key]; taken {
			continue
		}
		g.rooms[key] = newRoom(key, streamer)
		g.logger.Debug("room created", zap.String("room", key), zap.String("streamer", streamer.ID()))
		return key, nil
	}
	return "", fmt.Errorf("no free room key after %d attempts", keyAttempts)
}

// Room looks up a room by key.
func (g *Registry) Room(key string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[key]
	return room, ok
}

// RemoveRoom deletes the room and returns a snapshot of its former viewers
// so the caller can notify them. Removing an absent key is a no-op: a
// double-delete is tolerated, not an error.
func (g *Registry) RemoveRoom(key string) ([]Peer, bool) {
	g.mu.Lock()
	room, ok := g.rooms[key]
	if ok {
		delete(g.rooms, key)
	}
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	g.logger.Debug("room removed", zap.String("room", key))
	return room.Viewers(), true
}

// JoinRoom registers viewer in the room and returns the room's streamer for
// the join notification. ok is false when the key names no live room; the
// registry is left untouched in that case.
func (g *Registry) JoinRoom(key string, viewer Peer) (streamer Peer, ok bool) {
	g.mu.RLock()
	room, ok := g.rooms[key]
	g.mu.RUnlock()
	if !ok {
		return nil, false
	}
	room.addViewer(viewer)
	g.logger.Debug("viewer joined", zap.String("room", key), zap.String("viewer", viewer.ID()))
	return room.streamer, true
}

// LeaveRoom removes viewer from the room if it exists; no-op otherwise.
func (g *Registry) LeaveRoom(key string, viewer Peer) {
	g.mu.RLock()
	room, ok := g.rooms[key]
	g.mu.RUnlock()
	if !ok {
		return
	}
	room.removeViewer(viewer)
	g.logger.Debug("viewer left", zap.String("room", key), zap.String("viewer", viewer.ID()))
}

// DropPeer removes every room streamed by p and removes p from the viewer
// set of every remaining room. It returns the keys of the rooms that were
// deleted. Called exactly once when p's connection closes; afterwards no
// message is delivered to or forwarded from p.
func (g *Registry) DropPeer(p Peer) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var deleted []string
	for key, room := range g.rooms {
		if room.streamer.ID() == p.ID() {
			delete(g.rooms, key)
			deleted = append(deleted, key)
		}
	}
	for _, room := range g.rooms {
		room.removeViewer(p)
	}
	return deleted
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// ViewerCount returns the number of viewer memberships across all rooms.
func (g *Registry) ViewerCount() int {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()
	total := 0
	for _, room := range rooms {
		total += room.ViewerCount()
	}
	return total
}

// newKey renders a crypto-strong non-negative integer as decimal digits,
// truncated to at most four leading digits.
func newKey() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt32))
	if err != nil {
		return "", err
	}
	key := n.String()
	if len(key) > 4 {
		key = key[:4]
	}
	return key, nil
}
