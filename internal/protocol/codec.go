package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/arcadelink/relay/internal/model"
)

// reader is a cursor over a frame payload. Reads never panic; running
// past the end yields ErrMalformedFrame.
type reader struct {
	buf []byte
	off int
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, model.ErrMalformedFrame
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// rest consumes and returns everything left in the payload.
func (r *reader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func (r *reader) token() (Token, error) {
	b, err := r.bytes(TokenSize)
	if err != nil {
		return Token{}, err
	}
	var t Token
	copy(t[:], b)
	return t, nil
}

// fixedString reads a zero-padded UTF-8 field of the declared width and
// strips the trailing zero bytes.
func (r *reader) fixedString(width int) (string, error) {
	b, err := r.bytes(width)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

// lenString reads a u16 byte count followed by that many UTF-8 bytes.
// A declared length exceeding the remaining buffer is a malformed frame.
func (r *reader) lenString() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeFixedString appends s as UTF-8 right-padded with zero bytes to
// width. Longer strings are truncated at the byte level; callers that
// care about multi-byte boundaries must enforce limits beforehand.
func writeFixedString(buf *bytes.Buffer, s string, width int) {
	b := []byte(s)
	if len(b) > width {
		b = b[:width]
	}
	buf.Write(b)
	for i := len(b); i < width; i++ {
		buf.WriteByte(0)
	}
}

func writeLenString(buf *bytes.Buffer, s string) {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
