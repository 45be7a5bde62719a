package payload

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/gogo/protobuf/proto"

	"github.com/tradelayer/tradelayer/types"
)

// Version is the only payload version this node understands.
const Version uint64 = 0

var (
	// ErrMalformedPayload is returned for any payload that does not decode
	// into exactly one known message.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidField is returned by Encode for values the wire format
	// cannot carry.
	ErrInvalidField = errors.New("invalid payload field")
)

// Encode serializes m as [version][type][fields].
func Encode(m Msg) ([]byte, error) {
	e := &encoder{}
	e.uvarint(Version)
	e.uvarint(uint64(m.Type()))
	m.encode(e)
	if e.err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), e.err)
	}
	return e.buf.Bytes(), nil
}

// MustEncode is Encode that panics on error.
func MustEncode(m Msg) []byte {
	bz, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return bz
}

// Decode parses a payload. Unknown versions and types, truncated data and
// trailing bytes all yield ErrMalformedPayload.
func Decode(bz []byte) (Msg, error) {
	d := &decoder{buf: bz}
	version := d.uvarint()
	typ := d.uvarint()
	if d.err != nil {
		return nil, d.err
	}
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedPayload, version)
	}

	m := newMsg(MsgType(typ))
	if m == nil {
		return nil, fmt.Errorf("%w: unknown type %d", ErrMalformedPayload, typ)
	}
	m.decode(d)
	if d.err != nil {
		return nil, fmt.Errorf("%s: %w", MsgType(typ), d.err)
	}
	if d.pos != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, len(d.buf)-d.pos)
	}
	return m, nil
}

type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) uvarint(v uint64) {
	e.buf.Write(proto.EncodeVarint(v))
}

func (e *encoder) int64(v int64) {
	if v < 0 {
		e.setErr(fmt.Errorf("%w: negative value %d", ErrInvalidField, v))
		return
	}
	e.uvarint(uint64(v))
}

func (e *encoder) property(id types.PropertyID) { e.uvarint(uint64(id)) }

func (e *encoder) bool(b bool) {
	if b {
		e.uvarint(1)
	} else {
		e.uvarint(0)
	}
}

func (e *encoder) string(s string) {
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		e.setErr(fmt.Errorf("%w: string contains NUL", ErrInvalidField))
		return
	}
	e.buf.WriteString(s)
	e.buf.WriteByte(0)
}

func (e *encoder) int64s(vs []int64) {
	e.uvarint(uint64(len(vs)))
	for _, v := range vs {
		e.int64(v)
	}
}

func (e *encoder) setErr(err error) {
	if e.err == nil {
		e.err = err
	}
}

type decoder struct {
	buf []byte
	pos int
	err error
}

func (d *decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := proto.DecodeVarint(d.buf[d.pos:])
	if n == 0 {
		d.fail("bad varint at offset %d", d.pos)
		return 0
	}
	// only the minimal encoding is accepted so that re-encoding is
	// bit-exact
	if len(proto.EncodeVarint(v)) != n {
		d.fail("non-minimal varint at offset %d", d.pos)
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) int64() int64 {
	v := d.uvarint()
	if v > math.MaxInt64 {
		d.fail("value %d out of range", v)
		return 0
	}
	return int64(v)
}

func (d *decoder) property() types.PropertyID {
	v := d.uvarint()
	if v > math.MaxUint32 {
		d.fail("property id %d out of range", v)
		return 0
	}
	return types.PropertyID(v)
}

func (d *decoder) bool() bool {
	switch d.uvarint() {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("bad boolean at offset %d", d.pos)
		return false
	}
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	i := bytes.IndexByte(d.buf[d.pos:], 0)
	if i < 0 {
		d.fail("unterminated string at offset %d", d.pos)
		return ""
	}
	s := string(d.buf[d.pos : d.pos+i])
	d.pos += i + 1
	return s
}

// int64s decodes a counted list. Every item takes at least one byte, which
// bounds the count by the remaining payload.
func (d *decoder) int64s() []int64 {
	n := d.uvarint()
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.buf)-d.pos) {
		d.fail("list length %d exceeds payload", n)
		return nil
	}
	if n == 0 {
		return nil
	}
	vs := make([]int64, n)
	for i := range vs {
		vs[i] = d.int64()
	}
	return vs
}
