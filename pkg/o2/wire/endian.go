package wire

import "encoding/binary"

// SwapEndian32 and SwapEndian64 flip a scalar's byte order in place. The
// codec above always reads/writes network (big-endian) order directly, so
// these are only needed when relaying bytes that arrived in host
// (little-endian) order from a foreign bridge.
func SwapEndian32(b []byte) {
	if len(b) < 4 {
		return
	}
	v := binary.LittleEndian.Uint32(b)
	binary.BigEndian.PutUint32(b, v)
}

func SwapEndian64(b []byte) {
	if len(b) < 8 {
		return
	}
	v := binary.LittleEndian.Uint64(b)
	binary.BigEndian.PutUint64(b, v)
}

// SwapMessageEndian walks a decoded-from-host-order body and swaps every
// scalar argument's byte order in place, recursing into bundles. Blob,
// vector and bundle-element length headers are swapped like other scalars;
// strings and blob contents are left alone (they are byte-order
// independent). Returns errInvalidMsg if the type string references more
// bytes than are present, matching the decode path's bounds checking.
func SwapMessageEndian(body []byte) error {
	if len(body) < 12 {
		return errInvalidMsg
	}
	SwapEndian32(body[0:4])
	SwapEndian64(body[4:12])

	address, off, err := readString(body, 12)
	if err != nil {
		return err
	}
	typeStr, off, err := readString(body, off)
	if err != nil {
		return err
	}
	if address == "#bundle" {
		return swapBundleEndian(body, off)
	}

	codes := typeStr
	if len(codes) > 0 && codes[0] == ',' {
		codes = codes[1:]
	}
	codeBytes := []byte(codes)
	for i := 0; i < len(codeBytes); {
		switch codeBytes[i] {
		case '[', ']':
			i++
		case 'v':
			if i+1 >= len(codeBytes) {
				return errInvalidMsg
			}
			n, err := swapVector(codeBytes[i+1], body, off)
			if err != nil {
				return err
			}
			off = n
			i += 2
		default:
			n, err := swapScalar(codeBytes[i], body, off)
			if err != nil {
				return err
			}
			off = n
			i++
		}
	}
	return nil
}

// swapVector swaps a vector's 4-byte byte-length header and its packed
// elements, each elemSize(elemType) bytes wide.
func swapVector(elemType byte, body []byte, off int) (int, error) {
	if off+4 > len(body) {
		return 0, errInvalidMsg
	}
	n := int(binary.BigEndian.Uint32(body[off : off+4]))
	SwapEndian32(body[off : off+4])
	off += 4
	var elemSize int
	switch elemType {
	case 'i', 'f':
		elemSize = 4
	case 'h', 'd':
		elemSize = 8
	default:
		return 0, errInvalidMsg
	}
	if n < 0 || off+n > len(body) || n%elemSize != 0 {
		return 0, errInvalidMsg
	}
	for p := off; p < off+n; p += elemSize {
		if elemSize == 4 {
			SwapEndian32(body[p : p+elemSize])
		} else {
			SwapEndian64(body[p : p+elemSize])
		}
	}
	return off + n, nil
}

func swapScalar(tag byte, body []byte, off int) (int, error) {
	switch tag {
	case 'i', 'f', 'm', 'c', 'B':
		if off+4 > len(body) {
			return 0, errInvalidMsg
		}
		SwapEndian32(body[off : off+4])
		return off + 4, nil
	case 'h', 'd', 't':
		if off+8 > len(body) {
			return 0, errInvalidMsg
		}
		SwapEndian64(body[off : off+8])
		return off + 8, nil
	case 's', 'S':
		_, next, err := readString(body, off)
		return next, err
	case 'T', 'F', 'N', 'I':
		return off, nil
	case 'b':
		if off+4 > len(body) {
			return 0, errInvalidMsg
		}
		n := int(binary.BigEndian.Uint32(body[off : off+4]))
		SwapEndian32(body[off : off+4])
		off += 4
		if n < 0 || off+n > len(body) {
			return 0, errInvalidMsg
		}
		return off + align4(n), nil
	default:
		return 0, errInvalidMsg
	}
}

func swapBundleEndian(body []byte, off int) error {
	for off < len(body) {
		if off+4 > len(body) {
			return errInvalidMsg
		}
		n := int(binary.BigEndian.Uint32(body[off : off+4]))
		SwapEndian32(body[off : off+4])
		off += 4
		if n < 0 || off+n > len(body) {
			return errInvalidMsg
		}
		if err := SwapMessageEndian(body[off : off+n]); err != nil {
			return err
		}
		off += n
	}
	return nil
}
