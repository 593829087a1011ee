// Package archive taps the relayed stream and records it: fragments are
// reassembled per room, completed segments spooled to disk, and an upload job
// enqueued for the worker process.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-stream/relay/pkg/queue"
	"github.com/aura-stream/relay/pkg/segment"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer hands completed segments to the upload worker.
type Enqueuer interface {
	EnqueueArchiveUpload(ctx context.Context, payload queue.ArchiveUploadPayload) error
}

// Archiver implements the engine's StreamTap. One reassembler runs per live
// room; fragments for a room arrive from its streamer's single read loop, so
// per-room ordering is already guaranteed.
type Archiver struct {
	spoolDir string
	jobs     Enqueuer
	logger   *zap.Logger

	mu    sync.Mutex
	rooms map[string]*roomArchive
}

type roomArchive struct {
	mu          sync.Mutex
	reassembler *segment.Reassembler
	sequence    int
}

// NewArchiver creates an archiver spooling segments under spoolDir (the OS
// temp dir when empty).
func NewArchiver(spoolDir string, jobs Enqueuer, logger *zap.Logger) *Archiver {
	if spoolDir == "" {
		spoolDir = filepath.Join(os.TempDir(), "relay-archive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		spoolDir: spoolDir,
		jobs:     jobs,
		logger:   logger,
		rooms:    make(map[string]*roomArchive),
	}
}

// Append feeds one relayed fragment into the room's reassembler.
func (a *Archiver) Append(roomKey, videoData string, last bool) {
	room := a.room(roomKey)
	room.mu.Lock()
	defer room.mu.Unlock()
	if err := room.reassembler.Push(videoData, last); err != nil {
		// The reassembler dropped the broken segment; archiving resumes at
		// the next one.
		a.logger.Warn("archive fragment", zap.String("room", roomKey), zap.Error(err))
	}
}

// CloseRoom discards any partial segment and forgets the room.
func (a *Archiver) CloseRoom(roomKey string) {
	a.mu.Lock()
	room, ok := a.rooms[roomKey]
	if ok {
		delete(a.rooms, roomKey)
	}
	a.mu.Unlock()
	if ok {
		room.mu.Lock()
		room.reassembler.Reset()
		room.mu.Unlock()
	}
}

func (a *Archiver) room(roomKey string) *roomArchive {
	a.mu.Lock()
	defer a.mu.Unlock()
	room, ok := a.rooms[roomKey]
	if !ok {
		room = &roomArchive{}
		room.reassembler = segment.NewReassembler(func(seg []byte) {
			a.spool(roomKey, room, seg)
		})
		a.rooms[roomKey] = room
	}
	return room
}

// spool writes one completed segment to disk and enqueues its upload. Called
// from the reassembler with room.mu held.
func (a *Archiver) spool(roomKey string, room *roomArchive, seg []byte) {
	sequence := room.sequence
	room.sequence++

	dir := filepath.Join(a.spoolDir, roomKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Error("create spool dir", zap.String("room", roomKey), zap.Error(err))
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%06d.webm", sequence))
	if err := os.WriteFile(path, seg, 0o644); err != nil {
		a.logger.Error("spool segment", zap.String("room", roomKey), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	err := a.jobs.EnqueueArchiveUpload(ctx, queue.ArchiveUploadPayload{
		RoomKey:  roomKey,
		Sequence: sequence,
		Path:     path,
		Size:     int64(len(seg)),
	})
	if err != nil {
		a.logger.Error("enqueue archive upload",
			zap.String("room", roomKey),
			zap.Int("sequence", sequence),
			zap.Error(err))
		return
	}
	a.logger.Debug("segment spooled",
		zap.String("room", roomKey),
		zap.Int("sequence", sequence),
		zap.Int("bytes", len(seg)))
}
