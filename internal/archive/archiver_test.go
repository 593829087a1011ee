package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aura-stream/relay/pkg/chunkcodec"
	"github.com/aura-stream/relay/pkg/queue"
	"github.com/aura-stream/relay/pkg/segment"
)

type fakeEnqueuer struct {
	jobs []queue.ArchiveUploadPayload
}

func (f *fakeEnqueuer) EnqueueArchiveUpload(_ context.Context, p queue.ArchiveUploadPayload) error {
	f.jobs = append(f.jobs, p)
	return nil
}

func feedSegment(a *Archiver, roomKey string, data []byte, fragmentSize int) {
	for _, f := range segment.Split(data, fragmentSize) {
		a.Append(roomKey, chunkcodec.Encode(f.Data), f.Last)
	}
}

func TestArchiver_spoolsCompletedSegments(t *testing.T) {
	jobs := &fakeEnqueuer{}
	a := NewArchiver(t.TempDir(), jobs, nil)

	first := bytes.Repeat([]byte{0x42}, 100)
	second := []byte("next")
	feedSegment(a, "1234", first, 16)
	feedSegment(a, "1234", second, 16)

	if len(jobs.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(jobs.jobs))
	}
	for i, want := range [][]byte{first, second} {
		job := jobs.jobs[i]
		if job.RoomKey != "1234" || job.Sequence != i {
			t.Errorf("job %d = %+v", i, job)
		}
		got, err := os.ReadFile(job.Path)
		if err != nil {
			t.Fatalf("read spooled segment: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("job %d spooled %d bytes, want %d", i, len(got), len(want))
		}
		if job.Size != int64(len(want)) {
			t.Errorf("job %d Size = %d, want %d", i, job.Size, len(want))
		}
	}
}

func TestArchiver_roomsAreIndependent(t *testing.T) {
	jobs := &fakeEnqueuer{}
	a := NewArchiver(t.TempDir(), jobs, nil)

	feedSegment(a, "1111", []byte("room one"), 4)
	feedSegment(a, "2222", []byte("room two"), 4)

	if len(jobs.jobs) != 2 {
		t.Fatalf("enqueued %d jobs, want 2", len(jobs.jobs))
	}
	if jobs.jobs[0].RoomKey == jobs.jobs[1].RoomKey {
		t.Errorf("both jobs for room %s", jobs.jobs[0].RoomKey)
	}
	if jobs.jobs[0].Sequence != 0 || jobs.jobs[1].Sequence != 0 {
		t.Errorf("sequences = %d, %d; rooms must count independently",
			jobs.jobs[0].Sequence, jobs.jobs[1].Sequence)
	}
}

func TestArchiver_corruptFragmentDropsSegmentOnly(t *testing.T) {
	jobs := &fakeEnqueuer{}
	dir := t.TempDir()
	a := NewArchiver(dir, jobs, nil)

	a.Append("1234", chunkcodec.Encode([]byte("good start")), false)
	a.Append("1234", "!!!corrupt!!!", false)
	a.Append("1234", chunkcodec.Encode([]byte("tail")), true)

	want := []byte("clean segment")
	feedSegment(a, "1234", want, 8)

	if len(jobs.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(jobs.jobs))
	}
	got, err := os.ReadFile(jobs.jobs[0].Path)
	if err != nil {
		t.Fatalf("read spooled segment: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("spooled %q, want %q", got, want)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "1234"))
	if err != nil {
		t.Fatalf("read spool dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("%d spooled files, want 1", len(entries))
	}
}

func TestArchiver_closeRoomDiscardsPartialSegment(t *testing.T) {
	jobs := &fakeEnqueuer{}
	a := NewArchiver(t.TempDir(), jobs, nil)

	a.Append("1234", chunkcodec.Encode([]byte("partial")), false)
	a.CloseRoom("1234")

	// A new room under the same key starts fresh.
	feedSegment(a, "1234", []byte("fresh"), 4)
	if len(jobs.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(jobs.jobs))
	}
	got, err := os.ReadFile(jobs.jobs[0].Path)
	if err != nil {
		t.Fatalf("read spooled segment: %v", err)
	}
	if string(got) != "fresh" {
		t.Errorf("spooled %q, want %q", got, "fresh")
	}
}
