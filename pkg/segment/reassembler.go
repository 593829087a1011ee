package segment

import (
	"fmt"

	"github.com/aura-stream/relay/pkg/chunkcodec"
)

// Reassembler collects encoded fragments for one stream and emits complete
// segments. Fragments must arrive in production order over a reliable,
// ordered connection; the reassembler keeps no sequence numbers. It is not
// safe for concurrent use; each connection runs its own instance.
type Reassembler struct {
	parts   [][]byte
	skip    bool
	deliver func([]byte)
}

// NewReassembler creates a reassembler that calls deliver with each complete
// segment. Typically deliver is SinkBuffer.Offer.
func NewReassembler(deliver func([]byte)) *Reassembler {
	return &Reassembler{deliver: deliver}
}

// Push decodes one inbound fragment payload and appends it to the current
// accumulation buffer. When last is set the buffered pieces are concatenated
// into one segment, the buffer is cleared, and the segment is delivered.
//
// On a decode error the in-progress segment is unrecoverable: the buffer is
// reset and every following fragment is discarded until after the next
// last-flagged one, so corrupt bytes never reach the consumer.
func (r *Reassembler) Push(encoded string, last bool) error {
	if r.skip {
		if last {
			r.skip = false
		}
		return nil
	}

	data, err := chunkcodec.Decode(encoded)
	if err != nil {
		r.parts = nil
		r.skip = !last
		return fmt.Errorf("decode fragment: %w", err)
	}

	r.parts = append(r.parts, data)
	if !last {
		return nil
	}

	total := 0
	for _, p := range r.parts {
		total += len(p)
	}
	seg := make([]byte, 0, total)
	for _, p := range r.parts {
		seg = append(seg, p...)
	}
	r.parts = nil
	r.deliver(seg)
	return nil
}

// Reset discards any partially accumulated segment, e.g. when the stream
// restarts or the room is deleted mid-segment.
func (r *Reassembler) Reset() {
	r.parts = nil
	r.skip = false
}
