// Package metaspec implements the immutable run description (SyncerSpec),
// the per-file header record (ActionSpec), and the length-prefixed binary
// encoding shared by every serialized field in a .csync file.
package metaspec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFieldLen guards against a corrupt or hostile length prefix causing an
// unbounded allocation; every field csyncgo ever writes is far smaller.
const maxFieldLen = 16 << 20

// Encoder writes length-prefixed fields to an underlying writer, in the
// same order on every call site so the discipline can't drift between the
// on-disk header and any other serialized record.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteBytes writes a 4-byte little-endian length prefix followed by b.
func (e *Encoder) WriteBytes(b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := e.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := e.w.Write(b)
	return err
}

// WriteString writes s as length-prefixed UTF-8 bytes.
func (e *Encoder) WriteString(s string) error {
	return e.WriteBytes([]byte(s))
}

// WriteUint8 writes a single byte.
func (e *Encoder) WriteUint8(v uint8) error {
	_, err := e.w.Write([]byte{v})
	return err
}

// WriteUint32 writes v as 4 little-endian bytes.
func (e *Encoder) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := e.w.Write(buf[:])
	return err
}

// WriteBool writes v as a single byte.
func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteUint8(1)
	}
	return e.WriteUint8(0)
}

// WriteOptionalUint32 writes a presence byte followed by v if present.
func (e *Encoder) WriteOptionalUint32(v *uint32) error {
	if v == nil {
		return e.WriteBool(false)
	}
	if err := e.WriteBool(true); err != nil {
		return err
	}
	return e.WriteUint32(*v)
}

// Decoder reads length-prefixed fields from an underlying reader, leaving it
// positioned at the start of the next record after each call.
type Decoder struct {
	r io.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// ReadBytes reads a 4-byte little-endian length prefix and that many bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFieldLen {
		return nil, fmt.Errorf("metaspec: field length %d exceeds maximum %d", n, maxFieldLen)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	return string(b), err
}

// ReadUint8 reads a single byte.
func (d *Decoder) ReadUint8() (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 reads 4 little-endian bytes.
func (d *Decoder) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadBool reads a single byte as a boolean.
func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadUint8()
	return v != 0, err
}

// ReadOptionalUint32 reads a presence byte and, if set, a uint32.
func (d *Decoder) ReadOptionalUint32() (*uint32, error) {
	present, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	v, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
