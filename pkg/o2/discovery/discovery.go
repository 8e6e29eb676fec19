// Package discovery implements the peer-discovery half of the handshake:
// finding candidate processes in the same ensemble and handing them to
// the handshake package. Two interchangeable backends are provided:
// Broadcast (legacy UDP broadcast with port rotation and backoff) and
// Zeroconf (mDNS/DNS-SD via github.com/grandcat/zeroconf). Both share the
// same lifecycle shape: a context.Context/CancelFunc pair and an
// Invoker-spawned background loop.
package discovery

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// serviceType is the DNS-SD service type O2 processes advertise under.
// Zeroconf scopes it per ensemble by appending "."+ensemble to the type;
// the instance name is the bare process identity and does not include the
// ensemble name.
const serviceType = "_o2proc._tcp"

// protocolVersion is advertised in every Zeroconf TXT record's "vers" field
// as major.minor.patch.
const protocolVersion = "2.0.0"

// Candidate is a discovered peer not yet handshaken.
type Candidate struct {
	Identity types.ProcessID
	TCPAddr string
}

// Backend is implemented by both discovery mechanisms.
type Backend interface {
	// Start begins discovery, publishing Candidate values to the returned
	// channel until ctx is cancelled or Stop is called.
	Start(ctx context.Context, ensemble types.Ensemble, self Candidate) (<-chan Candidate, error)
	Stop()
}

// broadcastPortBase and broadcastPortCount define the 16-port discovery
// range [base, base+count): each process listens on one port picked at
// random from the range and announces to every port in it, so peers find
// each other whichever port they picked.
const (
	broadcastPortBase = 64000
	broadcastPortCount = 16
	maxBackoff = 4 * time.Second
)

// Broadcast is the legacy UDP discovery backend: periodic broadcast of
// this process's identity to every port in the discovery range, with
// exponential backoff between rounds from the first round on.
type Broadcast struct {
	log types.Logger
	invoker types.Invoker
	conn *net.UDPConn
	cancel context.CancelFunc
}

// NewBroadcast builds a Broadcast backend.
func NewBroadcast(log types.Logger, invoker types.Invoker) *Broadcast {
	return &Broadcast{log: log, invoker: invoker}
}

// Start opens one UDP socket on a random port of the discovery range and
// begins broadcasting self's identity, returning discovered candidates as
// they arrive.
func (b *Broadcast) Start(ctx context.Context, ensemble types.Ensemble, self Candidate) (<-chan Candidate, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	out := make(chan Candidate, 32)
	port := broadcastPortBase + rand.Intn(broadcastPortCount)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		cancel()
		return nil, types.ErrSocketError
	}
	b.conn = conn

	b.invoker.Spawn(func() { b.listen(ctx, ensemble, self.Identity, out) })
	b.invoker.Spawn(func() { b.announce(ctx, ensemble, self) })
	return out, nil
}

func (b *Broadcast) listen(ctx context.Context, ensemble types.Ensemble, selfID types.ProcessID, out chan<- Candidate) {
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		adEnsemble, id, addr, ok := parseAdvertisement(string(buf[:n]))
		if !ok || adEnsemble != string(ensemble) || id == selfID {
			continue
		}
		select {
		case out <- Candidate{Identity: id, TCPAddr: addr}:
		case <-ctx.Done():
			return
		default:
			b.log.Warnf("discovery candidate channel full, dropping %s", id)
		}
	}
}

// announce re-broadcasts self's identity with exponential backoff, capped
// at maxBackoff. The interval only grows: this loop never resets it to the
// minimum, and nothing restarts it short of a new Start call.
func (b *Broadcast) announce(ctx context.Context, ensemble types.Ensemble, self Candidate) {
	payload := []byte(fmt.Sprintf("%s|%s|%s", ensemble, self.Identity, self.TCPAddr))
	interval := 200 * time.Millisecond
	for {
		for p := broadcastPortBase; p < broadcastPortBase+broadcastPortCount; p++ {
			dst := &net.UDPAddr{IP: net.IPv4bcast, Port: p}
			b.conn.WriteToUDP(payload, dst)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		interval *= 2
		if interval > maxBackoff {
			interval = maxBackoff
		}
	}
}

func parseAdvertisement(s string) (ensemble string, id types.ProcessID, addr string, ok bool) {
	parts := splitN3(s, '|')
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], types.ProcessID(parts[1]), parts[2], true
}

func splitN3(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// Stop closes the broadcast socket and cancels the announce/listen loops.
func (b *Broadcast) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// Zeroconf is the mDNS/DNS-SD discovery backend, an alternative to
// Broadcast for networks where multicast DNS is preferred over raw UDP
// broadcast.
type Zeroconf struct {
	log types.Logger
	invoker types.Invoker
	server *zeroconf.Server
	cancel context.CancelFunc
}

// NewZeroconf builds a Zeroconf backend.
func NewZeroconf(log types.Logger, invoker types.Invoker) *Zeroconf {
	return &Zeroconf{log: log, invoker: invoker}
}

// Start registers self under serviceType scoped to ensemble and begins
// browsing for other instances.
func (z *Zeroconf) Start(ctx context.Context, ensemble types.Ensemble, self Candidate) (<-chan Candidate, error) {
	ctx, cancel := context.WithCancel(ctx)
	z.cancel = cancel

	_, portStr, err := net.SplitHostPort(self.TCPAddr)
	if err != nil {
		cancel()
		return nil, types.ErrBadName
	}
	port := 0
	fmt.Sscanf(portStr, "%d", &port)

	txt := []string{
		"name=" + string(self.Identity),
		"vers=" + protocolVersion,
	}
	server, err := zeroconf.Register(string(self.Identity), serviceType+"."+string(ensemble), "local.", port, txt, nil)
	if err != nil {
		cancel()
		return nil, types.ErrSocketError
	}
	z.server = server

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		cancel()
		server.Shutdown()
		return nil, types.ErrSocketError
	}

	out := make(chan Candidate, 32)
	entries := make(chan *zeroconf.ServiceEntry, 32)
	z.invoker.Spawn(func() {
		for entry := range entries {
			if entry.Instance == string(self.Identity) || len(entry.AddrIPv4) == 0 {
				continue
			}
			addr := fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
			select {
			case out <- Candidate{Identity: types.ProcessID(entry.Instance), TCPAddr: addr}:
			case <-ctx.Done():
				return
			}
		}
	})
	z.invoker.Spawn(func() {
		if err := resolver.Browse(ctx, serviceType+"."+string(ensemble), "local.", entries); err != nil {
			z.log.Warnf("zeroconf browse failed: %v", err)
		}
	})
	return out, nil
}

// Stop deregisters self and cancels the browse loop.
func (z *Zeroconf) Stop() {
	if z.cancel != nil {
		z.cancel()
	}
	if z.server != nil {
		z.server.Shutdown()
	}
}
