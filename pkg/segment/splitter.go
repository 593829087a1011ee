// Package segment handles the slicing of recorded media segments into
// transport-sized fragments and their in-order reassembly on the receiving
// side. A segment is one self-contained unit of recorded media; websocket
// text frames cap how much of it can travel at once, so the producer splits
// and the consumer collects until the fragment flagged last.
package segment

// Fragment is one transport-sized piece of a segment. Data holds raw bytes;
// encoding for the wire happens at the transport layer.
type Fragment struct {
	Data []byte
	Last bool
}

// DefaultFragmentSize is the raw fragment size used by producers when none is
// configured. Encoded payloads grow by 4/3, so this stays well under common
// websocket frame limits.
const DefaultFragmentSize = 48 * 1024

// Split slices data into fragments of at most size raw bytes, in order. Every
// fragment has Last=false except the final one. An empty segment still yields
// a single empty fragment with Last=true so the receiver always sees a
// terminator. Split panics if size < 1.
func Split(data []byte, size int) []Fragment {
	if size < 1 {
		panic("segment: fragment size must be >= 1")
	}
	if len(data) == 0 {
		return []Fragment{{Data: []byte{}, Last: true}}
	}
	fragments := make([]Fragment, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		fragments = append(fragments, Fragment{
			Data: data[start:end],
			Last: end == len(data),
		})
	}
	return fragments
}
