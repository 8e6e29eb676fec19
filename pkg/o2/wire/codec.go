// Package wire implements the O2 message layout: typed, 32-bit-aligned
// argument packing, the address/type-string header, endian conversion, and
// bundle framing.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// Builder accumulates a single outgoing message's type string and argument
// bytes. Construction is not reentrant — a single build must complete (via
// Finish) before another begins with the same Builder. A Builder is not
// safe for concurrent use; callers that need one per goroutine should keep
// a per-goroutine Builder rather than share a package-level singleton.
type Builder struct {
	types []byte
	data  []byte
}

// NewBuilder returns a ready-to-use Builder. Reset is implicit: a Builder
// must not be reused to build a second message without calling Reset.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Reset()
	return b
}

// Reset clears the Builder's scratch buffers so it can build the next
// message.
func (b *Builder) Reset() {
	b.types = append(b.types[:0], ',')
	b.data = b.data[:0]
}

func (b *Builder) AddInt32(v int32) {
	b.types = append(b.types, byte(types.TypeInt32))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	b.data = append(b.data, buf[:]...)
}

func (b *Builder) AddInt64(v int64) {
	b.types = append(b.types, byte(types.TypeInt64))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	b.data = append(b.data, buf[:]...)
}

func (b *Builder) AddFloat32(v float32) {
	b.types = append(b.types, byte(types.TypeFloat32))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
	b.data = append(b.data, buf[:]...)
}

func (b *Builder) AddFloat64(v float64) {
	b.types = append(b.types, byte(types.TypeFloat64))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	b.data = append(b.data, buf[:]...)
}

func (b *Builder) AddTime(v float64) {
	b.types = append(b.types, byte(types.TypeTime))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	b.data = append(b.data, buf[:]...)
}

func (b *Builder) AddString(v string) {
	b.types = append(b.types, byte(types.TypeString))
	b.data = padString(b.data, v)
}

func (b *Builder) AddSymbol(v string) {
	b.types = append(b.types, byte(types.TypeSymbol))
	b.data = padString(b.data, v)
}

func (b *Builder) AddBool(v bool) {
	if v {
		b.types = append(b.types, byte(types.TypeTrue))
	} else {
		b.types = append(b.types, byte(types.TypeFalse))
	}
}

func (b *Builder) AddMidi(v [4]byte) {
	b.types = append(b.types, byte(types.TypeMidi))
	b.data = append(b.data, v[:]...)
}

func (b *Builder) AddChar(v int32) {
	b.types = append(b.types, byte(types.TypeChar))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	b.data = append(b.data, buf[:]...)
}

func (b *Builder) AddBoolValue(v bool) {
	b.types = append(b.types, byte(types.TypeBool))
	var n uint32
	if v {
		n = 1
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	b.data = append(b.data, buf[:]...)
}

// AddVector appends a homogeneous numeric vector: a single element-type
// code in the type string followed by a 4-byte byte-length header and the
// packed element values, with no per-element type tags. elemType must be
// one of i, h, f, d.
func (b *Builder) AddVector(elemType types.TypeTag, elems []types.Argument) error {
	elemSize, ok := vectorElemSize(elemType)
	if !ok {
		return types.ErrBadType
	}
	b.types = append(b.types, byte(types.TypeVector), byte(elemType))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(elemSize*len(elems)))
	b.data = append(b.data, lenBuf[:]...)
	for _, e := range elems {
		switch elemType {
		case types.TypeInt32:
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], uint32(e.Int32))
			b.data = append(b.data, buf[:]...)
		case types.TypeInt64:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(e.Int64))
			b.data = append(b.data, buf[:]...)
		case types.TypeFloat32:
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], math.Float32bits(e.Float))
			b.data = append(b.data, buf[:]...)
		case types.TypeFloat64:
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(e.Double))
			b.data = append(b.data, buf[:]...)
		}
	}
	return nil
}

func vectorElemSize(elemType types.TypeTag) (int, bool) {
	switch elemType {
	case types.TypeInt32, types.TypeFloat32:
		return 4, true
	case types.TypeInt64, types.TypeFloat64:
		return 8, true
	default:
		return 0, false
	}
}

func (b *Builder) AddBlob(v []byte) {
	b.types = append(b.types, byte(types.TypeBlob))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	b.data = append(b.data, lenBuf[:]...)
	b.data = append(b.data, v...)
	for i := align4(len(v)) - len(v); i > 0; i-- {
		b.data = append(b.data, 0)
	}
}

// Finish copies the accumulated type string and argument bytes into the
// full wire layout and returns the encoded frame (length prefix included).
func (b *Builder) Finish(address string, timestamp float64, flags types.MessageFlags) []byte {
	body := make([]byte, 0, 16+stringSize(address)+stringSize(string(b.types))+len(b.data))
	body = appendUint32(body, uint32(flags))
	body = appendFloat64(body, timestamp)
	body = padString(body, address)
	typeStr := append([]byte(nil), b.types...)
	body = padString(body, string(typeStr))
	body = append(body, b.data...)

	out := make([]byte, 0, 4+len(body))
	out = appendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

func appendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendFloat64(dst []byte, v float64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	return append(dst, buf[:]...)
}

// EncodeMessage encodes a fully-populated Message (as produced by the
// dispatcher or decoded off the wire) back into wire bytes, for forwarding
// or resending.
func EncodeMessage(msg *types.Message) ([]byte, error) {
	b := NewBuilder()
	b.types = append(b.types[:0], ',')
	for _, arg := range msg.Args {
		if err := appendArgument(b, arg); err != nil {
			return nil, err
		}
	}
	return b.Finish(msg.Address, msg.Timestamp, msg.Flags), nil
}

func appendArgument(b *Builder, arg types.Argument) error {
	switch arg.Tag {
	case types.TypeInt32:
		b.AddInt32(arg.Int32)
	case types.TypeInt64:
		b.AddInt64(arg.Int64)
	case types.TypeFloat32:
		b.AddFloat32(arg.Float)
	case types.TypeFloat64:
		b.AddFloat64(arg.Double)
	case types.TypeTime:
		b.AddTime(arg.Double)
	case types.TypeString:
		b.AddString(arg.Str)
	case types.TypeSymbol:
		b.AddSymbol(arg.Str)
	case types.TypeTrue:
		b.AddBool(true)
	case types.TypeFalse:
		b.AddBool(false)
	case types.TypeBlob:
		b.AddBlob(arg.Blob)
	case types.TypeMidi:
		b.AddMidi(arg.Midi)
	case types.TypeChar:
		b.AddChar(arg.Int32)
	case types.TypeBool:
		b.AddBoolValue(arg.Int32 != 0)
	case types.TypeArrayOn:
		b.types = append(b.types, byte(types.TypeArrayOn))
		for _, elem := range arg.Vector {
			if err := appendArgument(b, elem); err != nil {
				return err
			}
		}
		b.types = append(b.types, byte(types.TypeArrayOff))
	case types.TypeVector:
		elemType := types.TypeInt32
		if len(arg.Vector) > 0 {
			elemType = arg.Vector[0].Tag
		}
		return b.AddVector(elemType, arg.Vector)
	default:
		return types.ErrBadType
	}
	return nil
}
