// Package chunkcodec implements the text-safe binary codec used on the
// signaling channel. Media fragments are encoded into the standard 64-symbol
// alphabet (A-Z, a-z, 0-9, +, /) with '=' padding, 4 output symbols per 3
// input bytes, so they can travel inside JSON text frames. The encoding is
// byte-compatible with any peer using standard base64.
package chunkcodec

import (
	"errors"
	"fmt"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	padding  = '='
)

var (
	// ErrLength reports an encoded string whose length is not a multiple of 4.
	ErrLength = errors.New("chunkcodec: encoded length not a multiple of 4")
	// ErrSymbol reports a byte outside the codec alphabet.
	ErrSymbol = errors.New("chunkcodec: invalid symbol")
	// ErrPadding reports padding anywhere but the final one or two positions.
	ErrPadding = errors.New("chunkcodec: misplaced padding")
)

// reverse maps an alphabet byte to its 6-bit value; 0xFF marks invalid bytes.
var reverse = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xFF
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = byte(i)
	}
	return t
}()

// EncodedLen returns the encoded length of n source bytes.
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}

// Encode encodes src into the transport alphabet. Encode(nil) is "".
func Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	dst := make([]byte, 0, EncodedLen(len(src)))
	i := 0
	for ; i+3 <= len(src); i += 3 {
		v := uint32(src[i])<<16 | uint32(src[i+1])<<8 | uint32(src[i+2])
		dst = append(dst,
			alphabet[v>>18&0x3F],
			alphabet[v>>12&0x3F],
			alphabet[v>>6&0x3F],
			alphabet[v&0x3F],
		)
	}
	switch len(src) - i {
	case 1:
		v := uint32(src[i]) << 16
		dst = append(dst, alphabet[v>>18&0x3F], alphabet[v>>12&0x3F], padding, padding)
	case 2:
		v := uint32(src[i])<<16 | uint32(src[i+1])<<8
		dst = append(dst, alphabet[v>>18&0x3F], alphabet[v>>12&0x3F], alphabet[v>>6&0x3F], padding)
	}
	return string(dst)
}

// Decode reverses Encode. It accepts zero, one or two trailing padding
// symbols and returns a typed error for malformed input so the receiver can
// discard the surrounding segment instead of propagating corrupt bytes.
func Decode(s string) ([]byte, error) {
	if len(s) == 0 {
		return []byte{}, nil
	}
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("%w: len %d", ErrLength, len(s))
	}

	pad := 0
	if s[len(s)-1] == padding {
		pad++
		if s[len(s)-2] == padding {
			pad++
		}
	}

	dst := make([]byte, 0, len(s)/4*3)
	for i := 0; i < len(s); i += 4 {
		var v uint32
		quantumPad := 0
		for j := 0; j < 4; j++ {
			c := s[i+j]
			if c == padding {
				// Padding is only valid in the last quantum, after data symbols.
				if i+4 != len(s) || j < 4-pad {
					return nil, fmt.Errorf("%w: position %d", ErrPadding, i+j)
				}
				quantumPad++
				v <<= 6
				continue
			}
			b := reverse[c]
			if b == 0xFF {
				return nil, fmt.Errorf("%w: %q at position %d", ErrSymbol, c, i+j)
			}
			v = v<<6 | uint32(b)
		}
		dst = append(dst, byte(v>>16), byte(v>>8), byte(v))
		dst = dst[:len(dst)-quantumPad]
	}
	return dst, nil
}
