package chunkcodec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestEncode_knownVectors(t *testing.T) {
	// RFC 4648 test vectors; peers use the standard alphabet so these must
	// match byte for byte.
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"f", "Zg=="},
		{"fo", "Zm8="},
		{"foo", "Zm9v"},
		{"foob", "Zm9vYg=="},
		{"fooba", "Zm9vYmE="},
		{"foobar", "Zm9vYmFy"},
	}
	for _, c := range cases {
		if got := Encode([]byte(c.in)); got != c.want {
			t.Errorf("Encode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecode_knownVectors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Zg==", "f"},
		{"Zm8=", "fo"},
		{"Zm9v", "foo"},
		{"Zm9vYg==", "foob"},
		{"Zm9vYmE=", "fooba"},
		{"Zm9vYmFy", "foobar"},
	}
	for _, c := range cases {
		got, err := Decode(c.in)
		if err != nil {
			t.Fatalf("Decode(%q): %v", c.in, err)
		}
		if string(got) != c.want {
			t.Errorf("Decode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRoundTrip_lengths(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	lengths := []int{0, 1, 2, 3, 4, 5, 6, 30, 31, 32, 3 * 1024, 3*1024 + 1, 3*1024 + 2}
	for _, n := range lengths {
		in := make([]byte, n)
		rng.Read(in)
		out, err := Decode(Encode(in))
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if !bytes.Equal(in, out) {
			t.Errorf("len %d: round trip mismatch", n)
		}
	}
}

func TestDecode_malformed(t *testing.T) {
	cases := []struct {
		in      string
		wantErr error
	}{
		{"Zm9", ErrLength},
		{"Zm9vY", ErrLength},
		{"Zm9 ", ErrSymbol},
		{"Zm\n9", ErrSymbol},
		{"Z=9v", ErrPadding},
		{"====", ErrPadding},
		{"Zg==Zm9v", ErrPadding},
	}
	for _, c := range cases {
		_, err := Decode(c.in)
		if !errors.Is(err, c.wantErr) {
			t.Errorf("Decode(%q) err = %v, want %v", c.in, err, c.wantErr)
		}
	}
}

func TestEncodedLen(t *testing.T) {
	for n := 0; n < 100; n++ {
		if got, want := EncodedLen(n), len(Encode(make([]byte, n))); got != want {
			t.Errorf("EncodedLen(%d) = %d, want %d", n, got, want)
		}
	}
}
