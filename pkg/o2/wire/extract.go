package wire

import (
	"encoding/binary"
	"math"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// DecodeMessage parses a full wire frame (length prefix included) into a
// Message. Any out-of-bounds read returns errInvalidMsg rather than
// panicking, so callers can close the offending socket.
func DecodeMessage(frame []byte) (*types.Message, error) {
	if len(frame) < 4 {
		return nil, errInvalidMsg
	}
	length := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if uint32(len(body)) < length {
		return nil, errInvalidMsg
	}
	body = body[:length]
	return decodeBody(body)
}

func decodeBody(body []byte) (*types.Message, error) {
	if len(body) < 12 {
		return nil, errInvalidMsg
	}
	flags := types.MessageFlags(binary.BigEndian.Uint32(body[0:4]))
	ts := math.Float64frombits(binary.BigEndian.Uint64(body[4:12]))
	off := 12

	address, off, err := readString(body, off)
	if err != nil {
		return nil, err
	}
	typeStr, off, err := readString(body, off)
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		Header: types.Header{Flags: flags, Timestamp: ts},
		Address: address,
		Types: typeStr,
	}

	if address == "#bundle" {
		return decodeBundle(msg, body, off)
	}

	codes := typeStr
	if len(codes) > 0 && codes[0] == ',' {
		codes = codes[1:]
	}
	codeBytes := []byte(codes)
	for i := 0; i < len(codeBytes); {
		switch types.TypeTag(codeBytes[i]) {
		case types.TypeArrayOn:
			elems, newOff, consumed, err := decodeArray(codeBytes[i+1:], body, off)
			if err != nil {
				return nil, err
			}
			msg.Args = append(msg.Args, types.Argument{Tag: types.TypeArrayOn, Vector: elems})
			off = newOff
			i += 1 + consumed
		case types.TypeVector:
			if i+1 >= len(codeBytes) {
				return nil, errInvalidMsg
			}
			elemType := types.TypeTag(codeBytes[i+1])
			vec, newOff, err := decodeVector(elemType, body, off)
			if err != nil {
				return nil, err
			}
			msg.Args = append(msg.Args, types.Argument{Tag: types.TypeVector, Vector: vec})
			off = newOff
			i += 2
		default:
			arg, next, err := decodeArg(types.TypeTag(codeBytes[i]), body, off)
			if err != nil {
				return nil, err
			}
			msg.Args = append(msg.Args, arg)
			off = next
			i++
		}
	}
	return msg, nil
}

// decodeArray decodes the elements of an O2 array ('[' ... ']'), where
// codes is the type-string slice starting just after the opening '['. It
// returns the decoded elements, the new body offset, and how many bytes of
// codes were consumed including the closing ']'.
func decodeArray(codes []byte, body []byte, off int) ([]types.Argument, int, int, error) {
	var elems []types.Argument
	i := 0
	for i < len(codes) && types.TypeTag(codes[i]) != types.TypeArrayOff {
		arg, next, err := decodeArg(types.TypeTag(codes[i]), body, off)
		if err != nil {
			return nil, 0, 0, err
		}
		elems = append(elems, arg)
		off = next
		i++
	}
	if i >= len(codes) {
		return nil, 0, 0, errInvalidMsg
	}
	return elems, off, i + 1, nil
}

// decodeVector decodes an O2 vector ('v' followed by a single homogeneous
// element-type code): a 4-byte byte-length header followed by packed
// elements of elemType with no per-element type tags.
func decodeVector(elemType types.TypeTag, body []byte, off int) ([]types.Argument, int, error) {
	if off+4 > len(body) {
		return nil, 0, errInvalidMsg
	}
	byteLen := int(binary.BigEndian.Uint32(body[off : off+4]))
	off += 4
	var elemSize int
	switch elemType {
	case types.TypeInt32, types.TypeFloat32:
		elemSize = 4
	case types.TypeInt64, types.TypeFloat64:
		elemSize = 8
	default:
		return nil, 0, types.ErrBadType
	}
	if byteLen < 0 || off+byteLen > len(body) || byteLen%elemSize != 0 {
		return nil, 0, errInvalidMsg
	}
	count := byteLen / elemSize
	elems := make([]types.Argument, 0, count)
	for i := 0; i < count; i++ {
		arg, next, err := decodeArg(elemType, body, off)
		if err != nil {
			return nil, 0, err
		}
		elems = append(elems, arg)
		off = next
	}
	return elems, off, nil
}

func decodeArg(tag types.TypeTag, body []byte, off int) (types.Argument, int, error) {
	need := func(n int) error {
		if off+n > len(body) {
			return errInvalidMsg
		}
		return nil
	}
	switch tag {
	case types.TypeInt32:
		if err := need(4); err != nil {
			return types.Argument{}, 0, err
		}
		v := int32(binary.BigEndian.Uint32(body[off : off+4]))
		return types.Argument{Tag: tag, Int32: v}, off + 4, nil
	case types.TypeChar, types.TypeBool:
		if err := need(4); err != nil {
			return types.Argument{}, 0, err
		}
		v := int32(binary.BigEndian.Uint32(body[off : off+4]))
		return types.Argument{Tag: tag, Int32: v}, off + 4, nil
	case types.TypeMidi:
		if err := need(4); err != nil {
			return types.Argument{}, 0, err
		}
		var m [4]byte
		copy(m[:], body[off:off+4])
		return types.Argument{Tag: tag, Midi: m}, off + 4, nil
	case types.TypeInt64, types.TypeTime:
		if err := need(8); err != nil {
			return types.Argument{}, 0, err
		}
		v := binary.BigEndian.Uint64(body[off : off+8])
		if tag == types.TypeTime {
			return types.Argument{Tag: tag, Double: math.Float64frombits(v)}, off + 8, nil
		}
		return types.Argument{Tag: tag, Int64: int64(v)}, off + 8, nil
	case types.TypeFloat32:
		if err := need(4); err != nil {
			return types.Argument{}, 0, err
		}
		v := math.Float32frombits(binary.BigEndian.Uint32(body[off : off+4]))
		return types.Argument{Tag: tag, Float: v}, off + 4, nil
	case types.TypeFloat64:
		if err := need(8); err != nil {
			return types.Argument{}, 0, err
		}
		v := math.Float64frombits(binary.BigEndian.Uint64(body[off : off+8]))
		return types.Argument{Tag: tag, Double: v}, off + 8, nil
	case types.TypeString, types.TypeSymbol:
		s, next, err := readString(body, off)
		if err != nil {
			return types.Argument{}, 0, err
		}
		return types.Argument{Tag: tag, Str: s}, next, nil
	case types.TypeTrue:
		return types.Argument{Tag: tag}, off, nil
	case types.TypeFalse:
		return types.Argument{Tag: tag}, off, nil
	case types.TypeNil, types.TypeInfinity:
		return types.Argument{Tag: tag}, off, nil
	case types.TypeBlob:
		if err := need(4); err != nil {
			return types.Argument{}, 0, err
		}
		n := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if n < 0 || off+n > len(body) {
			return types.Argument{}, 0, errInvalidMsg
		}
		blob := append([]byte(nil), body[off:off+n]...)
		return types.Argument{Tag: tag, Blob: blob}, off + align4(n), nil
	default:
		return types.Argument{}, 0, types.ErrBadType
	}
}

func decodeBundle(msg *types.Message, body []byte, off int) (*types.Message, error) {
	for off < len(body) {
		if off+4 > len(body) {
			return nil, errInvalidMsg
		}
		n := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if n < 0 || off+n > len(body) {
			return nil, errInvalidMsg
		}
		embedded, err := decodeBody(body[off : off+n])
		if err != nil {
			return nil, err
		}
		msg.Bundle = append(msg.Bundle, *embedded)
		off += n
	}
	return msg, nil
}

// GetAs extracts arg's value coerced to `expected`, following the
// coercion table: numeric<->numeric and string<->symbol are coerced (with
// possible precision loss for numeric narrowing); any other mismatch
// returns ok=false so the dispatcher can drop the message.
func GetAs(arg types.Argument, expected types.TypeTag) (types.Argument, bool) {
	if arg.Tag == expected {
		return arg, true
	}
	if (arg.Tag == types.TypeArrayOn && expected == types.TypeVector) ||
		(arg.Tag == types.TypeVector && expected == types.TypeArrayOn) {
		for _, elem := range arg.Vector {
			if !elem.Tag.Coercible(types.TypeFloat64) {
				return types.Argument{}, false
			}
		}
		return types.Argument{Tag: expected, Vector: arg.Vector}, true
	}
	if !arg.Tag.Coercible(expected) {
		return types.Argument{}, false
	}
	isStringlike := func(t types.TypeTag) bool { return t == types.TypeString || t == types.TypeSymbol }
	if isStringlike(arg.Tag) && isStringlike(expected) {
		return types.Argument{Tag: expected, Str: arg.Str}, true
	}
	// Numeric/boolean coercion: read the source as float64, then narrow.
	var f float64
	switch arg.Tag {
	case types.TypeInt32:
		f = float64(arg.Int32)
	case types.TypeInt64:
		f = float64(arg.Int64)
	case types.TypeFloat32:
		f = float64(arg.Float)
	case types.TypeFloat64:
		f = arg.Double
	case types.TypeTrue:
		f = 1
	case types.TypeFalse:
		f = 0
	case types.TypeBool:
		f = float64(arg.Int32)
	default:
		return types.Argument{}, false
	}
	switch expected {
	case types.TypeInt32:
		return types.Argument{Tag: expected, Int32: int32(f)}, true
	case types.TypeInt64:
		return types.Argument{Tag: expected, Int64: int64(f)}, true
	case types.TypeFloat32:
		return types.Argument{Tag: expected, Float: float32(f)}, true
	case types.TypeFloat64:
		return types.Argument{Tag: expected, Double: f}, true
	case types.TypeBool:
		if f != 0 {
			return types.Argument{Tag: expected, Int32: 1}, true
		}
		return types.Argument{Tag: expected, Int32: 0}, true
	case types.TypeTrue, types.TypeFalse:
		if f != 0 {
			return types.Argument{Tag: types.TypeTrue}, true
		}
		return types.Argument{Tag: types.TypeFalse}, true
	default:
		return types.Argument{}, false
	}
}
