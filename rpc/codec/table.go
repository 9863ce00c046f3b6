package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
)

// Table is an AMQP field table
type Table map[string]interface{}

// Decimal is the AMQP decimal type: Value / 10^Scale
type Decimal struct {
	Scale uint8
	Value int32
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func appendTable(dst []byte, t Table) ([]byte, error) {
	// the size prefix is patched once the entries are written
	start := len(dst)
	dst = appendLong(dst, 0)

	// sorted keys keep the encoding deterministic
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var err error
	for _, k := range keys {
		if dst, err = appendShortStr(dst, k); err != nil {
			return dst, fmt.Errorf("table key %q: %w", k, err)
		}
		if dst, err = appendFieldValue(dst, t[k]); err != nil {
			return dst, fmt.Errorf("table key %q: %w", k, err)
		}
	}

	binary.BigEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))
	return dst, nil
}

func appendFieldValue(dst []byte, v interface{}) ([]byte, error) {
	var err error
	switch v := v.(type) {
	case nil:
		dst = append(dst, 'V')
	case bool:
		dst = append(dst, 't')
		if v {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case int8:
		dst = append(dst, 'b', uint8(v))
	case uint8:
		dst = append(dst, 'B', v)
	case int16:
		dst = appendShort(append(dst, 's'), uint16(v))
	case uint16:
		dst = appendShort(append(dst, 'u'), v)
	case int32:
		dst = appendLong(append(dst, 'I'), uint32(v))
	case uint32:
		dst = appendLong(append(dst, 'i'), v)
	case int:
		dst = appendLongLong(append(dst, 'l'), uint64(v))
	case int64:
		dst = appendLongLong(append(dst, 'l'), uint64(v))
	case float32:
		dst = appendLong(append(dst, 'f'), math.Float32bits(v))
	case float64:
		dst = appendLongLong(append(dst, 'd'), math.Float64bits(v))
	case Decimal:
		dst = appendLong(append(dst, 'D', v.Scale), uint32(v.Value))
	case string:
		dst = appendLongStr(append(dst, 'S'), []byte(v))
	case []byte:
		dst = appendLongStr(append(dst, 'x'), v)
	case time.Time:
		dst = appendLongLong(append(dst, 'T'), uint64(v.Unix()))
	case Table:
		dst, err = appendTable(append(dst, 'F'), v)
	case []interface{}:
		dst = append(dst, 'A')
		start := len(dst)
		dst = appendLong(dst, 0)
		for _, item := range v {
			if dst, err = appendFieldValue(dst, item); err != nil {
				return dst, err
			}
		}
		binary.BigEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))
	default:
		return dst, fmt.Errorf("unsupported field value type %T", v)
	}
	return dst, err
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func (r *reader) table() Table {
	size := r.long()
	raw := r.take(int(size))
	if raw == nil {
		return nil
	}

	t := Table{}
	sub := &reader{buf: raw}
	for len(sub.buf) > 0 && sub.err == nil {
		key := sub.shortStr()
		t[key] = sub.fieldValue()
	}
	if sub.err != nil {
		r.err = sub.err
		return nil
	}
	return t
}

func (r *reader) array() []interface{} {
	size := r.long()
	raw := r.take(int(size))
	if raw == nil {
		return nil
	}

	var out []interface{}
	sub := &reader{buf: raw}
	for len(sub.buf) > 0 && sub.err == nil {
		out = append(out, sub.fieldValue())
	}
	if sub.err != nil {
		r.err = sub.err
		return nil
	}
	return out
}

func (r *reader) fieldValue() interface{} {
	kind := r.octet()
	if r.err != nil {
		return nil
	}

	switch kind {
	case 't':
		return r.octet() != 0
	case 'b':
		return int8(r.octet())
	case 'B':
		return r.octet()
	case 's':
		return int16(r.short())
	case 'u':
		return r.short()
	case 'I':
		return int32(r.long())
	case 'i':
		return r.long()
	case 'l':
		return int64(r.longLong())
	case 'L':
		return r.longLong()
	case 'f':
		return math.Float32frombits(r.long())
	case 'd':
		return math.Float64frombits(r.longLong())
	case 'D':
		scale := r.octet()
		return Decimal{Scale: scale, Value: int32(r.long())}
	case 'S':
		return string(r.longStr())
	case 'x':
		return r.longStr()
	case 'T':
		return time.Unix(int64(r.longLong()), 0)
	case 'F':
		return r.table()
	case 'A':
		return r.array()
	case 'V':
		return nil
	default:
		r.err = fmt.Errorf("unknown field value type %q", kind)
		return nil
	}
}
