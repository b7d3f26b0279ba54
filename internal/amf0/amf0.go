// Package amf0 implements Action Message Format v0 encoding and
// decoding for RTMP command and data payloads. Marker bytes and wire
// layout follow Adobe's AMF0 specification. It is grounded on the
// teacher's amf0.go, reworked so Object/EcmaArray preserve key
// insertion order (the teacher serializes a bare Go map sorted by key,
// which does not round-trip order) as spec.md §4.1/§9 require.
package amf0

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nullkey-live/rtmpbroker/internal/rtmperr"
)

// Type is the AMF0 marker byte identifying a value's wire type.
type Type byte

const (
	TypeNumber      Type = 0x00
	TypeBoolean     Type = 0x01
	TypeString      Type = 0x02
	TypeObject      Type = 0x03
	TypeNull        Type = 0x05
	TypeUndefined   Type = 0x06
	TypeReference   Type = 0x07
	TypeEcmaArray   Type = 0x08
	typeObjectEnd   Type = 0x09
	TypeStrictArray Type = 0x0A
	TypeDate        Type = 0x0B
	TypeLongString  Type = 0x0C
)

// Object is an insertion-ordered string-keyed map, used for both AMF0
// Object and EcmaArray values (EcmaArray differs only in that it
// carries an associative-count prefix on the wire).
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty ordered object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set inserts or updates key, preserving the position of the first
// insertion on update.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
	return o
}

// Get returns the value at key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string { return o.keys }

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// Equal reports whether two objects have the same keys, in the same
// order, with equal values.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if len(o.keys) != len(other.keys) {
		return false
	}
	for i, k := range o.keys {
		if other.keys[i] != k {
			return false
		}
		a, _ := o.Get(k)
		b, _ := other.Get(k)
		if !a.Equal(b) {
			return false
		}
	}
	return true
}

// Value is a tagged AMF0 value.
type Value struct {
	typ  Type
	num  float64
	b    bool
	str  string
	obj  *Object
	arr  []Value
	ref  uint16
	date float64
}

// Type returns the value's AMF0 marker type.
func (v Value) Type() Type { return v.typ }

func Number(n float64) Value    { return Value{typ: TypeNumber, num: n} }
func Boolean(b bool) Value      { return Value{typ: TypeBoolean, b: b} }
func String(s string) Value     { return Value{typ: TypeString, str: s} }
func LongString(s string) Value { return Value{typ: TypeLongString, str: s} }
func Null() Value               { return Value{typ: TypeNull} }
func Undefined() Value          { return Value{typ: TypeUndefined} }
func Ref(idx uint16) Value      { return Value{typ: TypeReference, ref: idx} }
func DateMillis(ms float64) Value {
	return Value{typ: TypeDate, date: ms}
}
func FromObject(o *Object) Value      { return Value{typ: TypeObject, obj: o} }
func FromEcmaArray(o *Object) Value   { return Value{typ: TypeEcmaArray, obj: o} }
func StrictArray(items []Value) Value { return Value{typ: TypeStrictArray, arr: items} }

// Equal reports deep equality, used by round-trip tests.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeNumber:
		return v.num == o.num
	case TypeBoolean:
		return v.b == o.b
	case TypeString, TypeLongString:
		return v.str == o.str
	case TypeObject, TypeEcmaArray:
		return v.obj.Equal(o.obj)
	case TypeStrictArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case TypeReference:
		return v.ref == o.ref
	case TypeDate:
		return v.date == o.date
	default:
		return true
	}
}

// AsString casts v to a string, failing with ErrMalformedCommand if v
// is not a String or LongString.
func AsString(v Value) (string, error) {
	if v.typ != TypeString && v.typ != TypeLongString {
		return "", fmt.Errorf("%w: expected string, got type 0x%02x", rtmperr.ErrMalformedCommand, v.typ)
	}
	return v.str, nil
}

// AsNumber casts v to a float64, failing with ErrMalformedCommand if v
// is not a Number.
func AsNumber(v Value) (float64, error) {
	if v.typ != TypeNumber {
		return 0, fmt.Errorf("%w: expected number, got type 0x%02x", rtmperr.ErrMalformedCommand, v.typ)
	}
	return v.num, nil
}

// AsBoolean casts v to a bool, failing with ErrMalformedCommand if v is
// not a Boolean.
func AsBoolean(v Value) (bool, error) {
	if v.typ != TypeBoolean {
		return false, fmt.Errorf("%w: expected boolean, got type 0x%02x", rtmperr.ErrMalformedCommand, v.typ)
	}
	return v.b, nil
}

// AsObject casts v to its ordered object, failing with
// ErrMalformedCommand if v is neither an Object nor an EcmaArray.
func AsObject(v Value) (*Object, error) {
	if v.typ != TypeObject && v.typ != TypeEcmaArray {
		return nil, fmt.Errorf("%w: expected object, got type 0x%02x", rtmperr.ErrMalformedCommand, v.typ)
	}
	return v.obj, nil
}

/* Encoding */

// Encode appends the canonical on-wire form of v to dst and returns the
// extended slice.
func Encode(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.typ))
	switch v.typ {
	case TypeNumber:
		dst = encodeFloat64(dst, v.num)
	case TypeBoolean:
		if v.b {
			dst = append(dst, 0x01)
		} else {
			dst = append(dst, 0x00)
		}
	case TypeString:
		dst = encodeShortString(dst, v.str)
	case TypeLongString:
		dst = encodeLongString(dst, v.str)
	case TypeObject:
		dst = encodeObjectBody(dst, v.obj)
	case TypeEcmaArray:
		count := make([]byte, 4)
		binary.BigEndian.PutUint32(count, uint32(v.obj.Len()))
		dst = append(dst, count...)
		dst = encodeObjectBody(dst, v.obj)
	case TypeStrictArray:
		count := make([]byte, 4)
		binary.BigEndian.PutUint32(count, uint32(len(v.arr)))
		dst = append(dst, count...)
		for _, item := range v.arr {
			dst = Encode(dst, item)
		}
	case TypeDate:
		dst = encodeFloat64(dst, v.date)
		dst = append(dst, 0x00, 0x00) // timezone, ignored
	case TypeReference:
		idx := make([]byte, 2)
		binary.BigEndian.PutUint16(idx, v.ref)
		dst = append(dst, idx...)
	case TypeNull, TypeUndefined:
		// marker only
	}
	return dst
}

// EncodeAll encodes a sequence of values in order.
func EncodeAll(values ...Value) []byte {
	var out []byte
	for _, v := range values {
		out = Encode(out, v)
	}
	return out
}

func encodeFloat64(dst []byte, f float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(f))
	return append(dst, b...)
}

func encodeShortString(dst []byte, s string) []byte {
	b := []byte(s)
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(b)))
	dst = append(dst, l...)
	return append(dst, b...)
}

func encodeLongString(dst []byte, s string) []byte {
	b := []byte(s)
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(b)))
	dst = append(dst, l...)
	return append(dst, b...)
}

func encodeObjectBody(dst []byte, o *Object) []byte {
	if o == nil {
		o = NewObject()
	}
	for _, k := range o.keys {
		dst = encodeShortString(dst, k)
		v, _ := o.Get(k)
		dst = Encode(dst, v)
	}
	dst = encodeShortString(dst, "")
	return append(dst, byte(typeObjectEnd))
}

/* Decoding */

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) need(n int) error {
	if d.remaining() < n {
		return fmt.Errorf("%w: unexpected end of AMF0 buffer", rtmperr.ErrMalformedCommand)
	}
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) readN(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readFloat64() (float64, error) {
	b, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *decoder) readShortString() (string, error) {
	lb, err := d.readN(2)
	if err != nil {
		return "", err
	}
	l := binary.BigEndian.Uint16(lb)
	b, err := d.readN(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readLongString() (string, error) {
	lb, err := d.readN(4)
	if err != nil {
		return "", err
	}
	l := binary.BigEndian.Uint32(lb)
	b, err := d.readN(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readObjectBody() (*Object, error) {
	o := NewObject()
	for {
		if d.remaining() < 2 {
			return nil, fmt.Errorf("%w: truncated object", rtmperr.ErrMalformedCommand)
		}
		// Peek for the sentinel: empty key followed by ObjectEnd.
		if d.buf[d.pos] == 0 && d.buf[d.pos+1] == 0 {
			if d.remaining() < 3 || Type(d.buf[d.pos+2]) != typeObjectEnd {
				return nil, fmt.Errorf("%w: malformed object terminator", rtmperr.ErrMalformedCommand)
			}
			d.pos += 3
			return o, nil
		}
		key, err := d.readShortString()
		if err != nil {
			return nil, err
		}
		val, err := d.readOne()
		if err != nil {
			return nil, err
		}
		o.Set(key, val)
	}
}

func (d *decoder) readOne() (Value, error) {
	marker, err := d.readByte()
	if err != nil {
		return Value{}, err
	}
	switch Type(marker) {
	case TypeNumber:
		n, err := d.readFloat64()
		return Number(n), err
	case TypeBoolean:
		b, err := d.readByte()
		return Boolean(b != 0), err
	case TypeString:
		s, err := d.readShortString()
		return String(s), err
	case TypeLongString:
		s, err := d.readLongString()
		return LongString(s), err
	case TypeObject:
		o, err := d.readObjectBody()
		return FromObject(o), err
	case TypeNull:
		return Null(), nil
	case TypeUndefined:
		return Undefined(), nil
	case TypeReference:
		b, err := d.readN(2)
		if err != nil {
			return Value{}, err
		}
		return Ref(binary.BigEndian.Uint16(b)), nil
	case TypeEcmaArray:
		if _, err := d.readN(4); err != nil { // associative count, ignored
			return Value{}, err
		}
		o, err := d.readObjectBody()
		return FromEcmaArray(o), err
	case TypeStrictArray:
		lb, err := d.readN(4)
		if err != nil {
			return Value{}, err
		}
		l := binary.BigEndian.Uint32(lb)
		items := make([]Value, 0, l)
		for i := uint32(0); i < l; i++ {
			v, err := d.readOne()
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return StrictArray(items), nil
	case TypeDate:
		ms, err := d.readFloat64()
		if err != nil {
			return Value{}, err
		}
		if _, err := d.readN(2); err != nil { // timezone, ignored
			return Value{}, err
		}
		return DateMillis(ms), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown AMF0 marker 0x%02x", rtmperr.ErrMalformedCommand, marker)
	}
}

// DecodeAll decodes a sequence of AMF0 values from buf, consuming
// exactly len(buf) bytes or failing with ErrMalformedCommand.
func DecodeAll(buf []byte) ([]Value, error) {
	d := &decoder{buf: buf}
	var values []Value
	for d.remaining() > 0 {
		v, err := d.readOne()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
