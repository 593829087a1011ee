package client

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-stream/relay/internal/relay"
	"github.com/aura-stream/relay/pkg/segment"
)

func newTestRelay(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := relay.NewEngine(relay.NewRegistry(nil), nil, nil, nil, nil)
	router := gin.New()
	router.GET("/api/signal", relay.ServeWs(engine, zap.NewNop(), nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/signal"
}

func waitSegment(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case seg := <-ch:
		return seg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for segment")
		return nil
	}
}

func TestStreamerToViewers_endToEnd(t *testing.T) {
	url := newTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	joined := make(chan string, 2)
	streamer, err := DialStreamer(ctx, url, StreamerOptions{
		FragmentSize:   8,
		OnViewerJoined: func(name string) { joined <- name },
	})
	if err != nil {
		t.Fatalf("DialStreamer: %v", err)
	}
	defer streamer.Close()

	if key := streamer.RoomKey(); key == "" || len(key) > 4 {
		t.Fatalf("RoomKey = %q", key)
	}

	type viewerEnd struct {
		viewer   *Viewer
		segments chan []byte
	}
	var ends []viewerEnd
	for _, name := range []string{"alice", "bob"} {
		segments := make(chan []byte, 16)
		viewer, err := DialViewer(ctx, url, streamer.RoomKey(), name, ViewerOptions{
			Consumer: segment.ConsumerFunc(func(seg []byte, done func()) {
				segments <- seg
				done()
			}),
		})
		if err != nil {
			t.Fatalf("DialViewer(%s): %v", name, err)
		}
		defer viewer.Close()
		ends = append(ends, viewerEnd{viewer, segments})

		// The streamer is told about each join; this also sequences the
		// sends after the memberships are registered.
		select {
		case got := <-joined:
			if got != name {
				t.Fatalf("joined = %q, want %q", got, name)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("no join notification for %s", name)
		}
	}

	first := bytes.Repeat([]byte{0xAB, 0x01, 0xFF}, 100) // several fragments
	second := []byte("tiny")
	if err := streamer.SendSegment(first); err != nil {
		t.Fatalf("SendSegment: %v", err)
	}
	if err := streamer.SendSegment(second); err != nil {
		t.Fatalf("SendSegment: %v", err)
	}

	for i, end := range ends {
		if got := waitSegment(t, end.segments); !bytes.Equal(got, first) {
			t.Errorf("viewer %d segment 1: %d bytes, want %d", i, len(got), len(first))
		}
		if got := waitSegment(t, end.segments); !bytes.Equal(got, second) {
			t.Errorf("viewer %d segment 2 = %q, want %q", i, got, second)
		}
	}
}

func TestViewer_joinUnknownRoomFails(t *testing.T) {
	url := newTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	viewer, err := DialViewer(ctx, url, "8888", "alice", ViewerOptions{
		Consumer: segment.ConsumerFunc(func(seg []byte, done func()) { done() }),
	})
	if err != nil {
		t.Fatalf("DialViewer: %v", err)
	}
	defer viewer.Close()

	select {
	case <-viewer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not stop after join failure")
	}
	if viewer.Err() == nil {
		t.Fatal("Err() = nil, want relay error for unknown room")
	}
}

func TestViewer_roomDeletion(t *testing.T) {
	url := newTestRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	joined := make(chan string, 1)
	streamer, err := DialStreamer(ctx, url, StreamerOptions{
		OnViewerJoined: func(name string) { joined <- name },
	})
	if err != nil {
		t.Fatalf("DialStreamer: %v", err)
	}
	defer streamer.Close()

	deleted := make(chan struct{}, 1)
	viewer, err := DialViewer(ctx, url, streamer.RoomKey(), "alice", ViewerOptions{
		Consumer:      segment.ConsumerFunc(func(seg []byte, done func()) { done() }),
		OnRoomDeleted: func() { deleted <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("DialViewer: %v", err)
	}
	defer viewer.Close()

	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		t.Fatal("no join notification")
	}

	if err := streamer.DeleteRoom(); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}

	select {
	case <-deleted:
	case <-time.After(5 * time.Second):
		t.Fatal("OnRoomDeleted not called")
	}
	select {
	case <-viewer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("viewer did not stop after room deletion")
	}
	if err := viewer.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after clean room deletion", err)
	}
}
