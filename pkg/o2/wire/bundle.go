package wire

import "github.com/o2ensemble/o2/pkg/o2/types"

// EncodeBundle frames a set of already-encoded sub-messages behind the
// "#bundle" address and a shared delivery timestamp: each
// embedded message is prefixed with its own 4-byte length.
func EncodeBundle(timestamp float64, embedded [][]byte) []byte {
	body := make([]byte, 0, 16)
	body = appendUint32(body, uint32(types.FlagTCP))
	body = appendFloat64(body, timestamp)
	body = padString(body, "#bundle")
	body = padString(body, "")
	for _, m := range embedded {
		// m is a full frame (length prefix + body); bundles want only the
		// body re-prefixed with its own length, so strip the frame's
		// length prefix and re-measure.
		inner := m[4:]
		body = appendUint32(body, uint32(len(inner)))
		body = append(body, inner...)
	}
	out := make([]byte, 0, 4+len(body))
	out = appendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}
