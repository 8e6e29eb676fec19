// Package netlayer implements a non-blocking, poll-driven network layer:
// one TCP listener plus per-peer TCP connections and a UDP socket, each
// with an outbound queue that never blocks the caller and an inbound side
// that is drained by explicit polling rather than a callback. A
// context.Context/CancelFunc pair gates every background goroutine, and a
// buffered channel decouples network I/O from message consumption. Close
// cancels the context and closes the listener, UDP socket and every
// connection; it does not wait for the read goroutines to exit (the
// Invoker's Stop does that). This layer frames raw TCP bytes itself
// using O2's 4-byte length prefix.
package netlayer

import (
	"context"
	"encoding/binary"
	"net"
	"sync"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// maxFrameSize caps a single TCP message at 64KiB.
const maxFrameSize = 64 * 1024

// Role tags a socket by what it's for.
type Role int

const (
	RoleTCPServer Role = iota
	RoleTCPClient
	RoleUDPServer
	RoleUDPClient
)

// Inbound is one fully-framed message received on a socket, along with
// which socket it arrived on so the caller can map it back to a peer.
type Inbound struct {
	ConnID string
	Role Role
	Data []byte
}

// Conn is one non-blocking, queue-fed connection: a TCP stream or the
// shared UDP socket's logical destination. Writes never block the calling
// goroutine; SendStep is what actually performs I/O, called from the
// single poll loop.
type Conn struct {
	id string
	role Role

	mu sync.Mutex
	queue [][]byte
	closed bool

	tcp net.Conn // nil for UDP
	udp *net.UDPConn
	addr *net.UDPAddr

	log types.Logger
}

// ID identifies the connection for routing replies and error reporting.
func (c *Conn) ID() string { return c.id }

// Enqueue appends data to the outbound queue without blocking. Returns
// ErrSocketError if the connection is already closed.
func (c *Conn) Enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.ErrSocketError
	}
	c.queue = append(c.queue, data)
	return nil
}

// SendStep drains the outbound queue with ordinary blocking writes; the
// socket is not put in non-blocking mode, so a write that cannot proceed
// waits. If a write fails and block is false, SendStep returns ErrBlocked
// (whatever the cause of the failure) leaving the failed frame and the rest
// queued for the next poll pass; if block is true it logs and returns
// ErrSocketError.
func (c *Conn) SendStep(block bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.ErrSocketError
	}
	for len(c.queue) > 0 {
		data := c.queue[0]
		var err error
		if c.tcp != nil {
			_, err = c.tcp.Write(data)
		} else {
			_, err = c.udp.WriteToUDP(data, c.addr)
		}
		if err != nil {
			if !block {
				return types.ErrBlocked
			}
			c.log.Warnf("send failed on %s: %v", c.id, err)
			return types.ErrSocketError
		}
		c.queue = c.queue[1:]
	}
	return nil
}

// Pending reports the number of outbound frames still queued, used by
// metrics and by shutdown's "drain before close" best effort.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close marks the connection closed and releases the underlying socket.
// Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if c.tcp != nil {
		return c.tcp.Close()
	}
	return nil
}

// Layer owns the process's sockets: the TCP listener, one Conn per
// connected TCP peer, and the shared UDP socket. A single goroutine per
// listening socket feeds Inbound values into a shared channel that the
// poll loop drains each pass; Layer itself performs no dispatch.
type Layer struct {
	log types.Logger
	invoker types.Invoker

	ctx context.Context
	cancel context.CancelFunc

	listener net.Listener
	udpConn *net.UDPConn

	mu sync.Mutex
	conns map[string]*Conn

	inbound chan Inbound
}

// New builds a Layer. It does not open any socket until Listen/ListenUDP
// is called.
func New(log types.Logger, invoker types.Invoker) *Layer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Layer{
		log: log,
		invoker: invoker,
		ctx: ctx,
		cancel: cancel,
		conns: make(map[string]*Conn),
		inbound: make(chan Inbound, 256),
	}
}

// Inbound returns the channel the poll loop drains for newly received,
// fully-framed messages.
func (l *Layer) Inbound() <-chan Inbound {
	return l.inbound
}

// ListenTCP opens the process's TCP listener on port (0 for ephemeral) and
// spawns the accept loop. Returns the bound port.
func (l *Layer) ListenTCP(port int) (int, error) {
	ln, err := net.Listen("tcp", addrWithPort(port))
	if err != nil {
		return 0, types.ErrSocketError
	}
	l.listener = ln
	l.invoker.Spawn(l.acceptLoop)
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// ListenUDP opens the process's UDP socket on port (0 for ephemeral) and
// spawns its receive loop. Returns the bound port.
func (l *Layer) ListenUDP(port int) (int, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return 0, types.ErrSocketError
	}
	l.udpConn = conn
	l.invoker.Spawn(l.udpReadLoop)
	return conn.LocalAddr().(*net.UDPAddr).Port, nil
}

func addrWithPort(port int) string {
	return ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Dial opens an outbound TCP connection to addr, registers it under id, and
// spawns its read loop. id is typically the remote ProcessID's string form.
func (l *Layer) Dial(id, addr string) (*Conn, error) {
	tc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, types.ErrSocketError
	}
	if tcpConn, ok := tc.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	c := &Conn{id: id, role: RoleTCPClient, tcp: tc, log: l.log}
	l.mu.Lock()
	l.conns[id] = c
	l.mu.Unlock()
	l.invoker.Spawn(func() { l.readLoop(c) })
	return c, nil
}

// Conns returns every connection currently registered, for the poll loop
// to flush outbound queues on each pass.
func (l *Layer) Conns() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		out = append(out, c)
	}
	return out
}

// Conn returns the connection registered under id, if any.
func (l *Layer) Conn(id string) (*Conn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.conns[id]
	return c, ok
}

// Forget removes id's connection from the registry without closing it
// (used after the caller has already closed it directly).
func (l *Layer) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, id)
}

// UDPSendTo writes a fire-and-forget UDP datagram immediately; UDP has no connection
// state to track so it bypasses the Conn bookkeeping.
func (l *Layer) UDPSendTo(addr *net.UDPAddr, data []byte) error {
	if l.udpConn == nil {
		return types.ErrNotInitialized
	}
	_, err := l.udpConn.WriteToUDP(data, addr)
	if err != nil {
		return types.ErrSocketError
	}
	return nil
}

func (l *Layer) acceptLoop() {
	for {
		tc, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				l.log.Warnf("accept failed: %v", err)
				return
			}
		}
		if tcpConn, ok := tc.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		id := tc.RemoteAddr().String()
		c := &Conn{id: id, role: RoleTCPServer, tcp: tc, log: l.log}
		l.mu.Lock()
		l.conns[id] = c
		l.mu.Unlock()
		l.invoker.Spawn(func() { l.readLoop(c) })
	}
}

// readLoop reads length-prefixed frames off c's TCP stream and publishes
// them to the shared inbound channel until the connection closes or a
// frame exceeds maxFrameSize.
func (l *Layer) readLoop(c *Conn) {
	defer func() {
		c.Close()
		l.Forget(c.id)
	}()
	var lenBuf [4]byte
	for {
		if _, err := readFull(c.tcp, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > maxFrameSize {
			l.log.Warnf("oversized frame (%d bytes) from %s, closing", n, c.id)
			return
		}
		body := make([]byte, 4+n)
		copy(body, lenBuf[:])
		if _, err := readFull(c.tcp, body[4:]); err != nil {
			return
		}
		select {
		case l.inbound <- Inbound{ConnID: c.id, Role: c.role, Data: body}:
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *Layer) udpReadLoop() {
	buf := make([]byte, maxFrameSize)
	for {
		n, _, err := l.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				return
			}
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case l.inbound <- Inbound{Role: RoleUDPServer, Data: data}:
		case <-l.ctx.Done():
			return
		}
	}
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close cancels every background goroutine and closes all sockets.
func (l *Layer) Close() error {
	l.cancel()
	if l.listener != nil {
		l.listener.Close()
	}
	if l.udpConn != nil {
		l.udpConn.Close()
	}
	l.mu.Lock()
	conns := make([]*Conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.conns = make(map[string]*Conn)
	l.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return nil
}
