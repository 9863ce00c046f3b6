package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/lithdew/bytesutil"
)

// --------------------------------------------------------------------------
// Field encoding (append style, the destination grows as needed)
// --------------------------------------------------------------------------

func appendOctet(dst []byte, v uint8) []byte { return append(dst, v) }
func appendShort(dst []byte, v uint16) []byte { return bytesutil.AppendUint16BE(dst, v) }
func appendLong(dst []byte, v uint32) []byte { return bytesutil.AppendUint32BE(dst, v) }
func appendLongLong(dst []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(dst, v) }

func appendShortStr(dst []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint8 {
		return dst, fmt.Errorf("short string of %d bytes exceeds 255 bytes", len(s))
	}
	dst = append(dst, uint8(len(s)))
	return append(dst, s...), nil
}

func appendLongStr(dst []byte, s []byte) []byte {
	dst = bytesutil.AppendUint32BE(dst, uint32(len(s)))
	return append(dst, s...)
}

// appendBits packs consecutive bit fields into one octet, least significant bit first
func appendBits(dst []byte, bits ...bool) []byte {
	var b uint8
	for i, set := range bits {
		if set {
			b |= 1 << uint(i)
		}
	}
	return append(dst, b)
}

// --------------------------------------------------------------------------
// Field decoding
// --------------------------------------------------------------------------

// reader decodes fields from a byte slice. The first error sticks, later reads
// return zero values so that decoders can read all fields and check err once.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) octet() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) short() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return bytesutil.Uint16BE(b)
}

func (r *reader) long() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return bytesutil.Uint32BE(b)
}

func (r *reader) longLong() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) shortStr() string {
	n := r.octet()
	return string(r.take(int(n)))
}

func (r *reader) longStr() []byte {
	n := r.long()
	if r.err == nil && uint64(n) > uint64(len(r.buf)) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	// decoded values outlive the receive buffer
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// bits unpacks up to 8 bit fields from one octet
func (r *reader) bits(fields ...*bool) {
	b := r.octet()
	for i, f := range fields {
		*f = b&(1<<uint(i)) != 0
	}
}
