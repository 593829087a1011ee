// Package client provides Go endpoints for the relay signaling channel: a
// Streamer that publishes media segments into a room and a Viewer that
// receives them reassembled. Capture and playback stay with the caller; this
// package only moves bytes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-stream/relay/pkg/chunkcodec"
	"github.com/aura-stream/relay/pkg/protocol"
	"github.com/aura-stream/relay/pkg/segment"
)

// ErrClosed is returned by operations on a closed endpoint.
var ErrClosed = errors.New("client: connection closed")

// StreamerOptions tunes a Streamer. The zero value is usable.
type StreamerOptions struct {
	// FragmentSize is the raw fragment size; DefaultFragmentSize when 0.
	FragmentSize int
	// OnViewerJoined is called with the display name of each joining viewer.
	OnViewerJoined func(displayName string)
	Logger         *zap.Logger
}

// Streamer owns one room on the relay and publishes segments to it. Segments
// are split, encoded, and flushed strictly in order; two segments' fragments
// never interleave.
type Streamer struct {
	conn         *websocket.Conn
	key          string
	fragmentSize int
	logger       *zap.Logger

	writeMu sync.Mutex // one writer on the socket

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// DialStreamer connects to the relay at url (ws:// or wss://), creates a
// room, and returns once the room key is known.
func DialStreamer(ctx context.Context, url string, opts StreamerOptions) (*Streamer, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FragmentSize <= 0 {
		opts.FragmentSize = segment.DefaultFragmentSize
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	s := &Streamer{
		conn:         conn,
		fragmentSize: opts.FragmentSize,
		logger:       opts.Logger,
		done:         make(chan struct{}),
	}

	created := make(chan string, 1)
	errs := make(chan error, 1)
	go s.readLoop(created, errs, opts.OnViewerJoined)

	if err := s.write(protocol.OpCreateRoom, ""); err != nil {
		_ = conn.Close()
		return nil, err
	}

	select {
	case key := <-created:
		s.key = key
		return s, nil
	case err := <-errs:
		_ = conn.Close()
		return nil, err
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}

// RoomKey returns the key viewers use to join.
func (s *Streamer) RoomKey() string { return s.key }

// Done is closed when the connection ends.
func (s *Streamer) Done() <-chan struct{} { return s.done }

// SendSegment splits one media segment into encoded fragments and writes
// them to the relay in order. It blocks until the whole segment is flushed.
func (s *Streamer) SendSegment(data []byte) error {
	for _, f := range segment.Split(data, s.fragmentSize) {
		payload, err := protocol.EncodeStreamPayload(s.key, chunkcodec.Encode(f.Data), f.Last)
		if err != nil {
			return fmt.Errorf("encode fragment: %w", err)
		}
		if err := s.write(protocol.OpStreamData, payload); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRoom tells the relay to delete the room, notifying all viewers.
func (s *Streamer) DeleteRoom() error {
	return s.write(protocol.OpDeleteRoom, s.key)
}

// Close closes the connection. The relay removes the room on disconnect.
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *Streamer) write(operation, payload string) error {
	frame, err := protocol.EncodeEnvelope(operation, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Streamer) readLoop(created chan<- string, errs chan<- error, onJoined func(string)) {
	defer close(s.done)
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case errs <- fmt.Errorf("read: %w", err):
			default:
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			s.logger.Debug("ignoring undecodable frame", zap.Error(err))
			continue
		}
		switch env.Operation {
		case protocol.OpCreatedRoom:
			select {
			case created <- env.Payload:
			default:
			}
		case protocol.OpJoinedRoom:
			if onJoined != nil {
				onJoined(env.Payload)
			}
		case protocol.OpError:
			s.logger.Warn("relay error", zap.String("message", env.Payload))
		}
	}
}
