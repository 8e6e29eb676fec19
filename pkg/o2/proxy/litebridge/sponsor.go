// Package litebridge implements the sponsor side of the o2lite protocol: a
// full O2 process acts as a sponsor for resource-constrained clients
// (embedded boards, browsers) that speak a reduced subset of the wire
// format over a single TCP connection, reachable through the reserved
// "/_o2/o2lite/*" address family.
package litebridge

import (
	"sync"

	"github.com/o2ensemble/o2/pkg/o2/netlayer"
	"github.com/o2ensemble/o2/pkg/o2/proxy"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

// Client is one connected o2lite peer: its sponsor-assigned services and
// whether it has completed clock sync against this sponsor.
type Client struct {
	ConnID string
	Services []string
	Synced bool
	sink proxy.LiteSink
	proxy *proxy.Lite
}

// liteConn adapts a *netlayer.Conn to proxy.LiteSink.
type liteConn struct{ conn *netlayer.Conn }

func (c liteConn) Enqueue(data []byte) error { return c.conn.Enqueue(data) }
func (c liteConn) Close() error { return c.conn.Close() }

// Sponsor tracks every o2lite client connected through this process and
// answers the "/_o2/o2lite/con" (connect) and "/_o2/o2lite/sv" (services)
// messages that make up the o2lite handshake.
type Sponsor struct {
	log types.Logger

	mu sync.Mutex
	clients map[string]*Client
}

// New builds an empty Sponsor.
func New(log types.Logger) *Sponsor {
	return &Sponsor{log: log, clients: make(map[string]*Client)}
}

// HandleConnect processes an inbound "/_o2/o2lite/con" message arriving on
// conn, registering a new Client and returning it; the Client's proxy (see
// Proxy) is what the caller installs as the active provider for whatever
// services the client later declares.
func (s *Sponsor) HandleConnect(connID string, conn *netlayer.Conn) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	sink := liteConn{conn: conn}
	c := &Client{ConnID: connID, sink: sink, proxy: proxy.NewLite(sink, false)}
	s.clients[connID] = c
	s.log.Debugf("o2lite client %s connected", connID)
	return c
}

// HandleServices processes an inbound "/_o2/o2lite/sv" message declaring
// which services connID provides. It stores the names in the Client's
// Services field, the list the caller registers this client as a
// ProviderLiteBridge for, and returns the Client and true, or nil and false
// if connID never connected.
func (s *Sponsor) HandleServices(connID string, services []string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[connID]
	if !ok {
		return nil, false
	}
	c.Services = services
	return c, true
}

// MarkSynced records that connID has completed clock sync against this
// sponsor, upgrading its status from BridgeNoTime to Bridge.
func (s *Sponsor) MarkSynced(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[connID]; ok {
		c.Synced = true
		c.proxy = proxy.NewLite(c.sink, true)
	}
}

// Proxy returns connID's current Proxy, for installing into the address
// table as the active provider.
func (s *Sponsor) Proxy(connID string) (*proxy.Lite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[connID]
	if !ok {
		return nil, false
	}
	return c.proxy, true
}

// Disconnect removes connID's client record, called when its TCP
// connection drops.
func (s *Sponsor) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, connID)
}
