// Package wire frames a captured response (status, headers, body) for the
// byte stores. Decoding is strict: wrong magic/version, truncation, and
// trailing bytes are all ErrCorrupt, so foreign or damaged entries are
// detected and self-healed on read.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/http"

	"github.com/unkn0wn-root/offcache/codec"
)

const (
	version   byte = 1
	kindEntry byte = 1
)

var (
	ErrCorrupt = errors.New("offcache: corrupt entry")
	magic4     = [...]byte{'O', 'F', 'F', 'C'}
)

// Entry: magic(4) | ver(1) | kind(1=entry) | status(u16 be) |
// hlen(u32 be) | header block (codec) | blen(u32 be) | body block (codec)
type Entry struct {
	Status int
	Header http.Header
	Body   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames e. The header block goes through hc, the body block through
// bc (identity for plain bytes; a wrapping codec can compress or cap it).
func Encode(e Entry, hc codec.Codec[http.Header], bc codec.Codec[[]byte]) ([]byte, error) {
	if e.Status < 0 || e.Status > 0xFFFF {
		return nil, ErrCorrupt
	}
	hdr, err := hc.Encode(e.Header)
	if err != nil {
		return nil, err
	}
	body, err := bc.Encode(e.Body)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + 4 + len(hdr) + 4 + len(body))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u2 [2]byte
	var u4 [4]byte

	binary.BigEndian.PutUint16(u2[:], uint16(e.Status))
	buf.Write(u2[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(hdr)))
	buf.Write(u4[:])
	buf.Write(hdr)

	binary.BigEndian.PutUint32(u4[:], uint32(len(body)))
	buf.Write(u4[:])
	buf.Write(body)

	return buf.Bytes(), nil
}

func Decode(b []byte, hc codec.Codec[http.Header], bc codec.Codec[[]byte]) (Entry, error) {
	const hdr = 4 + 1 + 1 + 2 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}

	off := 6

	status := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	hlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if hlen < 0 || hlen > len(b)-off { // overflow-safe bound check
		return Entry{}, ErrCorrupt
	}
	hblock := b[off : off+hlen]
	off += hlen

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	blen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if blen < 0 || blen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	bblock := b[off : off+blen]
	off += blen

	// strict framing: no trailing bytes
	if off != len(b) {
		return Entry{}, ErrCorrupt
	}

	header, err := hc.Decode(hblock)
	if err != nil {
		return Entry{}, ErrCorrupt
	}
	body, err := bc.Decode(bblock)
	if err != nil {
		return Entry{}, ErrCorrupt
	}
	return Entry{Status: status, Header: header, Body: body}, nil
}
