// Package o2 wires every component package into a single-threaded
// process: one poll loop owns the address table, dispatcher, scheduler,
// net layer and clock sync, and every public method either runs on that
// goroutine or hands work to it. Run drives the loop: a shutdown channel
// checked before each pass, and a select over the inbound work channel so
// Poll never spins.
package o2

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/o2ensemble/o2/pkg/o2/addrtable"
	"github.com/o2ensemble/o2/pkg/o2/alloc"
	"github.com/o2ensemble/o2/pkg/o2/clock"
	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/discovery"
	"github.com/o2ensemble/o2/pkg/o2/dispatch"
	"github.com/o2ensemble/o2/pkg/o2/handshake"
	"github.com/o2ensemble/o2/pkg/o2/metrics"
	"github.com/o2ensemble/o2/pkg/o2/netlayer"
	"github.com/o2ensemble/o2/pkg/o2/proxy"
	"github.com/o2ensemble/o2/pkg/o2/proxy/litebridge"
	"github.com/o2ensemble/o2/pkg/o2/proxy/mqttrelay"
	"github.com/o2ensemble/o2/pkg/o2/scheduler"
	"github.com/o2ensemble/o2/pkg/o2/types"
	"github.com/o2ensemble/o2/pkg/o2/wire"
)

// Process is one running O2 process: its identity, its address table and
// dispatcher, its schedule queues, its clock-sync state against whichever
// peer becomes the reference, and the sockets and discovery backend that
// feed it.
type Process struct {
	log types.Logger
	invoker types.Invoker
	allocator types.Allocator

	id types.ProcessID
	ensemble types.Ensemble

	table *addrtable.AddressTable
	dispatcher *dispatch.Dispatcher
	sched *scheduler.Scheduler
	clk *clock.Sync
	clockView clockAdapter
	peers *handshake.Table
	net *netlayer.Layer
	discoveryBackend discovery.Backend
	metrics *metrics.Registry
	lite *litebridge.Sponsor
	mqtt *mqttrelay.Relay

	hub *types.HubTarget

	mu sync.Mutex
	running bool
	shutdown chan struct{}
}

// clockAdapter satisfies scheduler.Clock over a Process's wall-clock local
// time (seconds since process start) and its clock.Sync estimate of global
// time.
type clockAdapter struct {
	start time.Time
	sync *clock.Sync
}

func (c clockAdapter) Local() float64 {
	return time.Since(c.start).Seconds()
}

func (c clockAdapter) Global() (float64, bool) {
	if !c.sync.Synced() {
		return 0, false
	}
	return c.Local() + c.sync.Offset().Seconds(), true
}

// NewProcess builds a Process from cfg. It resolves the local host's
// address, opens the TCP/UDP sockets cfg requests (0 meaning ephemeral),
// and constructs every component but does not start discovery or the poll
// loop — call Run for that.
func NewProcess(cfg *types.Config) (*Process, error) {
	if !cfg.Ensemble.Valid() {
		return nil, types.ErrBadName
	}
	log := cfg.Logger
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	invoker := definition.NewDefaultInvoker()

	var allocator types.Allocator = cfg.Allocator
	if allocator == nil {
		allocator = alloc.New(cfg.DebugFlags != 0)
	}

	netLayer := netlayer.New(log, invoker)
	tcpPort, err := netLayer.ListenTCP(cfg.TCPPort)
	if err != nil {
		return nil, err
	}
	udpPort, err := netLayer.ListenUDP(cfg.UDPPort)
	if err != nil {
		return nil, err
	}

	internalIP, err := localIPv4()
	if err != nil {
		return nil, err
	}
	id := types.NewProcessID(0, internalIP, uint16(tcpPort), uint16(udpPort))

	p := &Process{
		log: log,
		invoker: invoker,
		allocator: allocator,
		id: id,
		ensemble: cfg.Ensemble,
		table: addrtable.New(id),
		sched: nil,
		clk: clock.NewSync(),
		peers: handshake.NewTable(id, log),
		net: netLayer,
		hub: cfg.Hub,
		shutdown: make(chan struct{}),
	}
	p.clockView = clockAdapter{start: time.Now(), sync: p.clk}
	p.sched = scheduler.New(p.clockView)
	p.dispatcher = dispatch.New(p.table, log, p)
	p.metrics = metrics.New(prometheus.NewRegistry(), string(id))
	p.dispatcher.SetMetrics(p.metrics)
	p.lite = litebridge.New(log)

	if cfg.MQTTBrokerURL != "" {
		relay, err := mqttrelay.New(cfg.MQTTBrokerURL, cfg.Ensemble, id, log)
		if err != nil {
			netLayer.Close()
			return nil, err
		}
		p.mqtt = relay
	}

	switch cfg.Discovery {
	case types.DiscoveryZeroconf:
		p.discoveryBackend = discovery.NewZeroconf(log, invoker)
	default:
		p.discoveryBackend = discovery.NewBroadcast(log, invoker)
	}

	log.Infof("process %s listening tcp=%d", id, tcpPort)
	return p, nil
}

// Identity returns this process's identity string.
func (p *Process) Identity() types.ProcessID { return p.id }

// LocalTime returns the number of seconds since this process started, the
// same local clock the scheduler uses.
func (p *Process) LocalTime() float64 { return p.clockView.Local() }

// TCPPort returns the port this process's TCP listener is bound to.
func (p *Process) TCPPort() int { return int(p.id.TCPPort()) }

// Metrics returns the Prometheus collectors this process reports, for a
// caller to expose over its own /metrics endpoint (the process itself
// never starts an HTTP server).
func (p *Process) Metrics() *metrics.Registry { return p.metrics }

// Connect dials addr directly and sends the /_o2/dy discovery hello,
// bypassing the discovery backend entirely. Useful for wiring a peer whose
// address is already known — a pinned hub target, or a test/demo driving
// two processes without a shared discovery transport.
func (p *Process) Connect(identity types.ProcessID, addr string) error {
	conn, err := p.net.Dial(string(identity), addr)
	if err != nil {
		return err
	}
	p.peers.BeginConnect(identity, conn)
	return p.sendDy(conn)
}

// Service declares name as a locally-provided service with no top-level
// handler, so that Method/AddTap installs against it succeed: services
// exist independent of whether a handler is installed at their root.
func (p *Process) Service(name string) error {
	p.table.InstallProvider(name, p.id, types.ProviderLocal, nil, nil)
	return nil
}

// Method installs a handler at address. flags controls type
// coercion and argv construction (types.FlagCoerce, types.FlagParseArgs).
func (p *Process) Method(address, typeString string, flags types.HandlerFlags, fn types.HandlerFunc, userData interface{}) error {
	h := &types.Handler{Address: address, TypeString: typeString, Flags: flags, Func: fn, UserData: userData}
	return p.table.InstallHandler(address, h)
}

// Tap attaches tapperService as an observer of every message delivered to
// tappee.
func (p *Process) Tap(tappee, tapperService string) {
	p.table.AddTap(tappee, tapperService, p.id)
}

// Status reports how service is currently reachable from this process.
func (p *Process) Status(service string) (types.StatusCode, error) {
	active, ok := p.table.ActiveProvider(service)
	if !ok {
		return types.StatusUnknown, types.ErrNoService
	}
	switch active.Kind {
	case types.ProviderLocal:
		if p.clk.Synced() {
			return types.StatusLocal, nil
		}
		return types.StatusLocalNoTime, nil
	case types.ProviderRemote:
		if prox, ok := active.ProxyRef.(proxy.Proxy); ok {
			return prox.Status(), nil
		}
		return types.StatusRemoteNoTime, nil
	case types.ProviderOSC:
		return types.StatusToOscNoTime, nil
	case types.ProviderLiteBridge:
		if prox, ok := active.ProxyRef.(proxy.Proxy); ok {
			return prox.Status(), nil
		}
		return types.StatusBridgeNoTime, nil
	default:
		return types.StatusUnknown, nil
	}
}

// Send builds and delivers a message to address. A zero timestamp means
// "as soon as possible"; dispatching happens immediately from the calling
// goroutine if we're not already inside a dispatch, otherwise it is
// queued for delivery once the current dispatch finishes.
func (p *Process) Send(address string, timestamp float64, typeString string, args ...types.Argument) error {
	msg := &types.Message{
		Header: types.Header{Timestamp: timestamp},
		Address: address,
		Types: "," + typeString,
		Args: args,
	}
	if timestamp > 0 {
		if global, synced := p.clockView.Global(); synced && timestamp > global {
			p.sched.ScheduleGlobal(msg, timestamp)
			return nil
		}
		if timestamp > p.clockView.Local() {
			p.sched.ScheduleLocal(msg, timestamp)
			return nil
		}
	}
	return p.deliver(msg)
}

func (p *Process) deliver(msg *types.Message) error {
	if p.dispatcher.InDispatch() {
		p.dispatcher.QueueLocalSend(msg)
		return nil
	}
	return p.dispatcher.Dispatch(msg, false)
}

// SendLocal implements dispatch.Sender: a derived send (tap copy, or a
// handler-issued send) re-enters Dispatch, queuing if we're already inside
// one.
func (p *Process) SendLocal(msg *types.Message, isTap bool) {
	if p.dispatcher.InDispatch() {
		p.dispatcher.QueueLocalSend(msg)
		return
	}
	p.dispatcher.Dispatch(msg, isTap)
}

// SendRemote implements dispatch.Sender: hand an already-addressed message
// to its provider's transport.
func (p *Process) SendRemote(msg *types.Message, provider addrtable.ProviderInfo) {
	switch prox := provider.ProxyRef.(type) {
	case proxy.Proxy:
		if err := prox.Send(msg); err != nil {
			p.log.Warnf("send to %s failed: %v", provider.Identity, err)
		}
	default:
		p.log.Debugf("dropping message to %s: no proxy installed", provider.Identity)
	}
}

// Poll runs one pass: decode and dispatch every inbound wire frame,
// deliver every message whose schedule has come due, then flush whatever
// each connection's outbound queue has accumulated.
func (p *Process) Poll() {
	draining := true
	for draining {
		select {
		case in := <-p.net.Inbound():
			p.handleInbound(in)
		default:
			draining = false
		}
	}
	if p.mqtt != nil {
		draining = true
		for draining {
			select {
			case data := <-p.mqtt.Inbound():
				msg, err := wire.DecodeMessage(data)
				if err != nil {
					p.log.Warnf("dropping malformed mqtt frame: %v", err)
					continue
				}
				p.deliver(msg)
			default:
				draining = false
			}
		}
	}
	for _, msg := range p.sched.Due() {
		p.deliver(msg)
	}
	for _, conn := range p.net.Conns() {
		if err := conn.SendStep(false); err != nil && err != types.ErrBlocked {
			p.log.Warnf("send step failed on %s: %v", conn.ID(), err)
		}
	}
	p.reportMetrics()
}

// reportMetrics samples the gauges that reflect current state rather than
// being incremented at the event that caused them (peer count, clock sync,
// queue depth).
func (p *Process) reportMetrics() {
	p.metrics.PeersConnected.Set(float64(len(p.peers.Connected())))
	p.metrics.SchedulerLocalDepth.Set(float64(p.sched.PendingLocal()))
	p.metrics.SchedulerGlobalDepth.Set(float64(p.sched.PendingGlobal()))
	if offset, synced := p.clk.Offset(), p.clk.Synced(); synced {
		p.metrics.ClockOffsetSeconds.Set(offset.Seconds())
		p.metrics.ClockSynced.Set(1)
	} else {
		p.metrics.ClockSynced.Set(0)
	}
}

func (p *Process) handleInbound(in netlayer.Inbound) {
	msg, err := wire.DecodeMessage(in.Data)
	if err != nil {
		p.log.Warnf("dropping malformed frame from %s: %v", in.ConnID, err)
		return
	}
	switch msg.Address {
	case "/_o2/dy":
		p.handleDy(in.ConnID, msg)
		return
	case "/_o2/sv":
		p.handleSv(in.ConnID, msg)
		return
	case "/_o2/o2lite/con":
		p.handleLiteConnect(in.ConnID)
		return
	case "/_o2/o2lite/sv":
		p.handleLiteServices(in.ConnID, msg)
		return
	}
	if msg.IsBundle() {
		for i := range msg.Bundle {
			p.deliver(&msg.Bundle[i])
		}
		return
	}
	p.deliver(msg)
}

// sendDy enqueues this process's discovery hello on conn: ensemble,
// proc-name, internal-ip, tcp-port, udp-port, hub-role.
func (p *Process) sendDy(conn *netlayer.Conn) error {
	hub := types.HubNone
	args := []types.Argument{
		{Tag: types.TypeString, Str: string(p.ensemble)},
		{Tag: types.TypeString, Str: string(p.id)},
		{Tag: types.TypeInt32, Int32: int32(internalIPOf(p.id))},
		{Tag: types.TypeInt32, Int32: int32(p.id.TCPPort())},
		{Tag: types.TypeInt32, Int32: int32(p.id.UDPPort())},
		{Tag: types.TypeInt32, Int32: int32(hub)},
	}
	msg := &types.Message{Address: "/_o2/dy", Types: ",ssiiii", Args: args}
	frame, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return conn.Enqueue(frame)
}

// sendSv enqueues a /_o2/sv reply on conn listing this process's identity
// followed by every locally-provided service as an
// (name, exists, is_service, properties) tuple.
func (p *Process) sendSv(conn *netlayer.Conn) error {
	names := p.table.LocalServiceNames()
	args := make([]types.Argument, 0, 1+4*len(names))
	args = append(args, types.Argument{Tag: types.TypeString, Str: string(p.id)})
	typeStr := ",s"
	for _, name := range names {
		args = append(args,
			types.Argument{Tag: types.TypeString, Str: name},
			types.Argument{Tag: types.TypeInt32, Int32: 1},
			types.Argument{Tag: types.TypeInt32, Int32: 1},
			types.Argument{Tag: types.TypeString, Str: ""},
		)
		typeStr += "siis"
	}
	msg := &types.Message{Address: "/_o2/sv", Types: typeStr, Args: args}
	frame, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return conn.Enqueue(frame)
}

// handleDy processes an inbound /_o2/dy hello: validates the ensemble,
// records the dialing peer, and answers with our own /_o2/sv so the
// dialer learns what services we provide.
func (p *Process) handleDy(connID string, msg *types.Message) {
	if len(msg.Args) != 6 {
		p.log.Warnf("malformed /_o2/dy from %s", connID)
		return
	}
	ensemble := types.Ensemble(msg.Args[0].Str)
	identity := types.ProcessID(msg.Args[1].Str)
	hub := types.HubRole(msg.Args[5].Int32)

	conn, ok := p.net.Conn(connID)
	if !ok {
		p.log.Warnf("/_o2/dy from unregistered connection %s", connID)
		return
	}
	dy := handshake.DyMessage{Ensemble: ensemble, Identity: identity, Hub: hub}
	if err := p.peers.HandleDy(dy, p.ensemble, conn); err != nil {
		p.log.Warnf("rejecting /_o2/dy from %s: %v", identity, err)
		conn.Close()
		return
	}
	if err := p.sendSv(conn); err != nil {
		p.log.Warnf("sv reply to %s failed: %v", identity, err)
	}
}

// handleSv processes an inbound /_o2/sv: installs the sender as a remote
// provider for every service it listed, answers with our own /_o2/sv when
// we are the dialing side (so the acceptor learns our services too), and
// completes the handshake.
func (p *Process) handleSv(connID string, msg *types.Message) {
	if len(msg.Args) == 0 {
		p.log.Warnf("malformed /_o2/sv from %s", connID)
		return
	}
	identity := types.ProcessID(msg.Args[0].Str)
	conn, ok := p.net.Conn(connID)
	if !ok {
		p.log.Warnf("/_o2/sv from unregistered connection %s", connID)
		return
	}
	remote := proxy.NewRemote(conn, false)
	for i := 1; i+3 < len(msg.Args); i += 4 {
		name := msg.Args[i].Str
		exists := msg.Args[i+1].Int32 != 0
		if !exists {
			continue
		}
		p.table.InstallProvider(name, identity, types.ProviderRemote, remote, nil)
	}
	if rec, ok := p.peers.Get(identity); ok && rec.State == handshake.StateConnecting {
		if err := p.sendSv(conn); err != nil {
			p.log.Warnf("sv reply to %s failed: %v", identity, err)
		}
	}
	p.peers.CompleteHandshake(identity)
}

// handleLiteConnect processes an inbound "/_o2/o2lite/con" from a
// resource-constrained client, registering it with the sponsor so a
// following "/_o2/o2lite/sv" can install its services.
func (p *Process) handleLiteConnect(connID string) {
	conn, ok := p.net.Conn(connID)
	if !ok {
		p.log.Warnf("/_o2/o2lite/con from unregistered connection %s", connID)
		return
	}
	p.lite.HandleConnect(connID, conn)
}

// handleLiteServices processes an inbound "/_o2/o2lite/sv" declaring the
// services an already-connected o2lite client provides, installing the
// sponsor's bridge proxy as their active provider.
func (p *Process) handleLiteServices(connID string, msg *types.Message) {
	services := make([]string, 0, len(msg.Args))
	for _, a := range msg.Args {
		services = append(services, a.Str)
	}
	client, ok := p.lite.HandleServices(connID, services)
	if !ok {
		p.log.Warnf("/_o2/o2lite/sv before con from %s", connID)
		return
	}
	prox, _ := p.lite.Proxy(connID)
	for _, name := range client.Services {
		p.table.InstallProvider(name, types.ProcessID(connID), types.ProviderLiteBridge, prox, nil)
	}
}

// InstallMQTTPeer registers peer as providing service through this
// process's MQTT relay rather than a direct TCP connection, for WAN peers
// beyond local discovery's reach. Returns ErrNotInitialized if cfg.MQTTBrokerURL
// was left empty at construction.
func (p *Process) InstallMQTTPeer(service string, peer types.ProcessID) error {
	if p.mqtt == nil {
		return types.ErrNotInitialized
	}
	prox := proxy.NewLite(p.mqtt.AsLiteSink(peer), false)
	p.table.InstallProvider(service, peer, types.ProviderLiteBridge, prox, nil)
	return nil
}

// internalIPOf extracts the internal-ip field already encoded in a valid
// ProcessID, avoiding a second localIPv4 lookup at dy-send time.
func internalIPOf(id types.ProcessID) uint32 {
	s := string(id)
	if !id.Valid() {
		return 0
	}
	var v uint32
	for _, r := range s[10:18] {
		v <<= 4
		switch {
		case r >= '0' && r <= '9':
			v |= uint32(r - '0')
		case r >= 'a' && r <= 'f':
			v |= uint32(r-'a') + 10
		}
	}
	return v
}

// Run starts discovery and repeatedly calls Poll until Stop is called or
// ctx is cancelled, blocking the calling goroutine.
func (p *Process) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return types.ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	self := discovery.Candidate{Identity: p.id, TCPAddr: fmt.Sprintf("127.0.0.1:%s", portOf(p.id))}
	candidates, err := p.discoveryBackend.Start(ctx, p.ensemble, self)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.shutdown:
			return nil
		case <-ctx.Done():
			return nil
		case c := <-candidates:
			p.onCandidate(c)
		case <-ticker.C:
		}
		p.Poll()
	}
}

func (p *Process) onCandidate(c discovery.Candidate) {
	_, created := p.peers.Observe(c)
	if !created {
		return
	}
	if !p.peers.ShouldInitiate(c.Identity, p.hub) {
		return
	}
	if err := p.Connect(c.Identity, c.TCPAddr); err != nil {
		p.log.Warnf("dial %s failed: %v", c.Identity, err)
	}
}

// Stop halts the poll loop, closes every socket, and waits for every
// spawned goroutine to return.
func (p *Process) Stop() error {
	p.discoveryBackend.Stop()
	close(p.shutdown)
	if p.mqtt != nil {
		p.mqtt.Close()
	}
	if err := p.net.Close(); err != nil {
		return err
	}
	p.invoker.Stop()
	return nil
}

func portOf(id types.ProcessID) string {
	return fmt.Sprintf("%d", id.TCPPort())
}

// localIPv4 picks the first non-loopback IPv4 address on this host, the
// internal address half of this process's identity.
func localIPv4() (uint32, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0, types.ErrHostnameLookupFail
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		return binary.BigEndian.Uint32(v4), nil
	}
	return 0x7f000001, nil // fall back to loopback when no other interface exists
}
