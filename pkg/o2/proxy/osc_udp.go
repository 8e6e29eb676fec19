package proxy

import (
	"encoding/binary"
	"math"
	"net"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// udpOSCTransport sends plain OSC 1.0 packets over UDP: no O2 length
// prefix, no timestamp header, just "/address\0pad,types\0pad args...".
type udpOSCTransport struct {
	conn *net.UDPConn
	dst *net.UDPAddr
}

// NewUDPOSCTransport dials a UDP socket aimed at addr for sending OSC
// packets to a non-O2 device.
func NewUDPOSCTransport(addr string) (*udpOSCTransport, error) {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, types.ErrHostnameLookupFail
	}
	conn, err := net.DialUDP("udp", nil, dst)
	if err != nil {
		return nil, types.ErrSocketError
	}
	return &udpOSCTransport{conn: conn, dst: dst}, nil
}

func (t *udpOSCTransport) SendOSC(address string, typeString string, args []types.Argument) error {
	var out []byte
	out = oscPad(out, address)
	codes := typeString
	if len(codes) == 0 || codes[0] != ',' {
		codes = "," + codes
	}
	out = oscPad(out, codes)
	for _, arg := range args {
		out = oscAppendArg(out, arg)
	}
	if _, err := t.conn.Write(out); err != nil {
		return types.ErrSocketError
	}
	return nil
}

func (t *udpOSCTransport) Close() error {
	return t.conn.Close()
}

func oscPad(dst []byte, s string) []byte {
	dst = append(dst, s...)
	dst = append(dst, 0)
	for len(dst)%4 != 0 {
		dst = append(dst, 0)
	}
	return dst
}

func oscAppendArg(dst []byte, arg types.Argument) []byte {
	switch arg.Tag {
	case types.TypeInt32:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(arg.Int32))
		return append(dst, buf[:]...)
	case types.TypeFloat32:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], math.Float32bits(arg.Float))
		return append(dst, buf[:]...)
	case types.TypeString, types.TypeSymbol:
		return oscPad(dst, arg.Str)
	case types.TypeBlob:
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(arg.Blob)))
		dst = append(dst, lenBuf[:]...)
		dst = append(dst, arg.Blob...)
		for len(dst)%4 != 0 {
			dst = append(dst, 0)
		}
		return dst
	default:
		return dst
	}
}
