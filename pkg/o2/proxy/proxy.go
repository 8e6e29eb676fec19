// Package proxy implements the Proxy abstraction: the four kinds of thing
// a service's active provider can be, unified behind one interface so the
// dispatcher never has to switch on ProviderKind itself.
package proxy

import (
	"strings"

	"github.com/o2ensemble/o2/pkg/o2/netlayer"
	"github.com/o2ensemble/o2/pkg/o2/types"
	"github.com/o2ensemble/o2/pkg/o2/wire"
)

// Proxy is implemented by every non-trivial provider kind: a connection to
// a remote O2 process, an OSC-speaking device, or an o2lite client. The
// local case needs no Proxy — its Handler is invoked directly by the
// dispatcher.
type Proxy interface {
	// Send encodes and enqueues msg for delivery, non-blocking.
	Send(msg *types.Message) error
	// Status reports how this proxy should be represented in /_o2/si
	// broadcasts and to local Status queries.
	Status() types.StatusCode
	// Finish releases any resources the proxy owns (socket, subscription).
	Finish() error
}

// Remote is a Proxy backed by a live TCP connection to another O2 process.
// Every Message it sends is the full wire-encoded O2 frame.
type Remote struct {
	conn *netlayer.Conn
	synced bool
}

// NewRemote wraps conn as a Proxy for a fully O2-speaking peer.
func NewRemote(conn *netlayer.Conn, synced bool) *Remote {
	return &Remote{conn: conn, synced: synced}
}

func (r *Remote) Send(msg *types.Message) error {
	frame, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return r.conn.Enqueue(frame)
}

func (r *Remote) Status() types.StatusCode {
	if r.synced {
		return types.StatusRemote
	}
	return types.StatusRemoteNoTime
}

func (r *Remote) Finish() error {
	return r.conn.Close()
}

// OSCTransport abstracts the wire encoding an OSC proxy writes to, so the
// same Proxy works over either UDP or TCP.
type OSCTransport interface {
	SendOSC(address string, typeString string, args []types.Argument) error
	Close() error
}

// OSC is a Proxy that re-encodes outgoing O2 messages as plain OSC packets
// (no O2 envelope: no timestamp header, no process-identity framing) and
// hands them to an OSCTransport. The leading service name is removed from
// the address, so "/synth/freq" goes out as "/freq".
type OSC struct {
	transport OSCTransport
}

// NewOSC wraps transport as a Proxy for an OSC-only destination.
func NewOSC(transport OSCTransport) *OSC {
	return &OSC{transport: transport}
}

func (o *OSC) Send(msg *types.Message) error {
	address := msg.Address
	if len(address) > 1 {
		if i := strings.IndexByte(address[1:], '/'); i >= 0 {
			address = address[i+1:]
		} else {
			address = "/"
		}
	}
	return o.transport.SendOSC(address, msg.Types, msg.Args)
}

var _ OSCTransport = (*udpOSCTransport)(nil)

func (o *OSC) Status() types.StatusCode {
	return types.StatusToOscNoTime
}

func (o *OSC) Finish() error {
	return o.transport.Close()
}

// LiteSink is implemented by whatever carries bytes to an o2lite client,
// typically a netlayer.Conn, but kept as a narrow interface so
// litebridge's sponsor logic can be tested without a real socket.
type LiteSink interface {
	Enqueue(data []byte) error
	Close() error
}

// Lite is a Proxy fronting an o2lite client that speaks a reduced wire
// format (no bundles, no properties) relayed through a sponsoring full O2
// process.
type Lite struct {
	sink LiteSink
	synced bool
}

// NewLite wraps sink as a Proxy for an o2lite client.
func NewLite(sink LiteSink, synced bool) *Lite {
	return &Lite{sink: sink, synced: synced}
}

func (l *Lite) Send(msg *types.Message) error {
	frame, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return l.sink.Enqueue(frame)
}

func (l *Lite) Status() types.StatusCode {
	if l.synced {
		return types.StatusBridge
	}
	return types.StatusBridgeNoTime
}

func (l *Lite) Finish() error {
	return l.sink.Close()
}
