package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/aura-stream/relay/pkg/protocol"
)

// fakePeer records frames the engine sends to it.
type fakePeer struct {
	id   string
	fail bool

	mu     sync.Mutex
	frames [][]byte
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(operation, payload string) error {
	frame, err := protocol.EncodeEnvelope(operation, payload)
	if err != nil {
		return err
	}
	return p.SendRaw(frame)
}

func (p *fakePeer) SendRaw(frame []byte) error {
	if p.fail {
		return ErrSendBufferFull
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) received(t *testing.T) []protocol.Envelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(p.frames))
	for _, f := range p.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("peer %s received undecodable frame %q: %v", p.id, f, err)
		}
		out = append(out, env)
	}
	return out
}

func TestRegistry_createRoomKeyShape(t *testing.T) {
	reg := NewRegistry(nil)
	for i := 0; i < 50; i++ {
		key, err := reg.CreateRoom(newFakePeer("s"))
		if err != nil {
			t.Fatalf("CreateRoom: %v", err)
		}
		if len(key) == 0 || len(key) > 4 {
			t.Fatalf("key %q: want 1-4 digits", key)
		}
		for _, r := range key {
			if r < '0' || r > '9' {
				t.Fatalf("key %q: non-decimal rune %q", key, r)
			}
		}
		room, ok := reg.Room(key)
		if !ok {
			t.Fatalf("room %q not registered", key)
		}
		if room.Key() != key {
			t.Errorf("room.Key() = %q, want %q", room.Key(), key)
		}
	}
}

func TestRegistry_joinUnknownRoomLeavesRegistryUntouched(t *testing.T) {
	reg := NewRegistry(nil)
	if _, ok := reg.JoinRoom("9999", newFakePeer("v")); ok {
		t.Fatal("JoinRoom on unknown key reported ok")
	}
	if reg.RoomCount() != 0 {
		t.Errorf("RoomCount = %d, want 0", reg.RoomCount())
	}
}

func TestRegistry_joinAndLeave(t *testing.T) {
	reg := NewRegistry(nil)
	streamer := newFakePeer("s")
	key, err := reg.CreateRoom(streamer)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	viewer := newFakePeer("v")
	got, ok := reg.JoinRoom(key, viewer)
	if !ok || got.ID() != streamer.ID() {
		t.Fatalf("JoinRoom = (%v, %v), want streamer", got, ok)
	}
	room, _ := reg.Room(key)
	if room.ViewerCount() != 1 {
		t.Fatalf("ViewerCount = %d, want 1", room.ViewerCount())
	}

	reg.LeaveRoom(key, viewer)
	if room.ViewerCount() != 0 {
		t.Errorf("ViewerCount after leave = %d, want 0", room.ViewerCount())
	}

	// Leaving an unknown room is a no-op.
	reg.LeaveRoom("0000", viewer)
}

func TestRegistry_removeRoomReturnsViewersOnce(t *testing.T) {
	reg := NewRegistry(nil)
	key, _ := reg.CreateRoom(newFakePeer("s"))
	v1, v2 := newFakePeer("v1"), newFakePeer("v2")
	reg.JoinRoom(key, v1)
	reg.JoinRoom(key, v2)

	viewers, ok := reg.RemoveRoom(key)
	if !ok || len(viewers) != 2 {
		t.Fatalf("RemoveRoom = (%d viewers, %v), want 2, true", len(viewers), ok)
	}
	if _, ok := reg.Room(key); ok {
		t.Error("room still present after RemoveRoom")
	}
	if _, ok := reg.RemoveRoom(key); ok {
		t.Error("second RemoveRoom reported ok")
	}
}

func TestRegistry_dropPeer(t *testing.T) {
	reg := NewRegistry(nil)
	streamer := newFakePeer("s")
	keyA, _ := reg.CreateRoom(streamer)
	keyB, _ := reg.CreateRoom(newFakePeer("other"))

	viewer := newFakePeer("v")
	reg.JoinRoom(keyA, viewer)
	reg.JoinRoom(keyB, viewer)

	// Dropping a viewer removes its memberships but keeps the rooms.
	if deleted := reg.DropPeer(viewer); len(deleted) != 0 {
		t.Fatalf("DropPeer(viewer) deleted rooms %v", deleted)
	}
	roomB, _ := reg.Room(keyB)
	if roomB.ViewerCount() != 0 {
		t.Errorf("viewer still member of %s", keyB)
	}

	// Dropping the streamer removes its room.
	deleted := reg.DropPeer(streamer)
	if len(deleted) != 1 || deleted[0] != keyA {
		t.Fatalf("DropPeer(streamer) = %v, want [%s]", deleted, keyA)
	}
	if _, ok := reg.Room(keyA); ok {
		t.Error("room outlived its streamer")
	}
	if _, ok := reg.Room(keyB); !ok {
		t.Error("unrelated room removed")
	}
}

func TestRegistry_concurrentMembershipChurn(t *testing.T) {
	reg := NewRegistry(nil)
	key, _ := reg.CreateRoom(newFakePeer("s"))
	room, _ := reg.Room(key)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := newFakePeer(string(rune('a' + i)))
			for j := 0; j < 100; j++ {
				reg.JoinRoom(key, p)
				_ = room.Viewers()
				reg.LeaveRoom(key, p)
			}
		}(i)
	}
	wg.Wait()

	if room.ViewerCount() != 0 {
		t.Errorf("ViewerCount = %d, want 0 after churn", room.ViewerCount())
	}
}
