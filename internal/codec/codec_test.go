package codec

import (
	"bytes"
	"testing"

	"gamechain/internal/chainerr"
)

func TestCompactRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 63, 64, 16383, 16384, 1 << 29, 1 << 30, 1 << 40, ^uint64(0)}
	for _, v := range cases {
		e := NewEncoder()
		e.PutCompact(v)
		d := NewDecoder(e.Bytes())
		got, err := d.Compact()
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: put %d got %d", v, got)
		}
		if d.Remaining() != 0 {
			t.Fatalf("leftover bytes for %d", v)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	in := []byte("Chronos Glaive")
	e := NewEncoder()
	e.PutBytes(in)
	d := NewDecoder(e.Bytes())
	out, err := d.Bytes(64)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("mismatch: %q != %q", in, out)
	}
}

func TestBytesBoundExceeded(t *testing.T) {
	e := NewEncoder()
	e.PutBytes(make([]byte, 300))
	d := NewDecoder(e.Bytes())
	_, err := d.Bytes(256)
	if !chainerr.Is(err, chainerr.DecodeBound) {
		t.Fatalf("expected DecodeBound, got %v", err)
	}
}

func TestReencodeStable(t *testing.T) {
	e := NewEncoder()
	e.PutUint64(123456789)
	e.PutBytes([]byte("hello"))
	e.PutBool(true)
	e.PutFixed(bytes.Repeat([]byte{0xAB}, 32))
	orig := e.Bytes()

	d := NewDecoder(orig)
	n, _ := d.Uint64()
	s, _ := d.Bytes(0)
	b, _ := d.Bool()
	f, _ := d.Fixed(32)

	e2 := NewEncoder()
	e2.PutUint64(n)
	e2.PutBytes(s)
	e2.PutBool(b)
	e2.PutFixed(f)

	if !bytes.Equal(orig, e2.Bytes()) {
		t.Fatalf("re-encode mismatch")
	}
}

func TestMalformedTruncated(t *testing.T) {
	d := NewDecoder([]byte{3, 1, 2, 3})
	_, err := d.Compact()
	if !chainerr.Is(err, chainerr.DecodeMalformed) {
		t.Fatalf("expected DecodeMalformed, got %v", err)
	}
}
