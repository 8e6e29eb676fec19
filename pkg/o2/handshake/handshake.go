// Package handshake implements the peer connect/accept state machine:
// turning a discovery.Candidate into a live TCP connection via the
// /_o2/dy and /_o2/sv address exchange, tie-breaking simultaneous connects
// by process identity ordering, and maintaining each peer's record
// through its lifecycle.
package handshake

import (
	"sync"

	"github.com/o2ensemble/o2/pkg/o2/discovery"
	"github.com/o2ensemble/o2/pkg/o2/netlayer"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

// State is a peer record's position in the handshake lifecycle.
type State int

const (
	StateDiscovered State = iota // candidate known, no connection attempted yet
	StateConnecting // we dialed, awaiting /_o2/sv
	StateAccepting // they dialed us, we answered with /_o2/sv, awaiting theirs
	StateConnected // handshake complete, clock sync may proceed
	StateClosed
)

// PeerRecord is one remote process's handshake and connection state.
type PeerRecord struct {
	Identity types.ProcessID
	TCPAddr string
	State State
	Hub types.HubRole
	Conn *netlayer.Conn
}

// DyMessage holds the fields of an inbound /_o2/dy hello that the handshake
// uses: ensemble, identity and hub role. The hello itself carries ensemble,
// process name, internal IP, TCP port, UDP port and hub role; Version is not
// sent and stays empty.
type DyMessage struct {
	Ensemble types.Ensemble
	Identity types.ProcessID
	Version string
	Hub types.HubRole
}

// SvMessage models a /_o2/sv message: the sending process's own identity
// and the names of the services it provides locally.
type SvMessage struct {
	Identity types.ProcessID
	Services []string
}

// Table owns every known peer record, keyed by identity, and decides who
// initiates a TCP connection when both sides discover each other at
// roughly the same time: the lexicographically greater identity always
// initiates, breaking the race without coordination.
type Table struct {
	self types.ProcessID
	log types.Logger

	mu sync.Mutex
	peers map[types.ProcessID]*PeerRecord
}

// NewTable builds a Table for the local process identity self.
func NewTable(self types.ProcessID, log types.Logger) *Table {
	return &Table{self: self, log: log, peers: make(map[types.ProcessID]*PeerRecord)}
}

// ShouldInitiate reports whether self should dial candidate rather than
// wait for it to dial us, unless a hub target pins the direction instead.
func (t *Table) ShouldInitiate(candidate types.ProcessID, hub *types.HubTarget) bool {
	if hub != nil {
		return false // a process with a pinned hub never initiates discovery dials
	}
	return t.self.Less(candidate) == false && t.self != candidate
}

// Observe records a freshly discovered candidate, creating its peer
// record in StateDiscovered if this is the first time it's been seen.
// Returns the record and whether it was newly created.
func (t *Table) Observe(c discovery.Candidate) (*PeerRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.peers[c.Identity]; ok {
		return existing, false
	}
	rec := &PeerRecord{Identity: c.Identity, TCPAddr: c.TCPAddr, State: StateDiscovered}
	t.peers[c.Identity] = rec
	return rec, true
}

// BeginConnect transitions a discovered peer into StateConnecting, after
// this process has decided to dial it.
func (t *Table) BeginConnect(id types.ProcessID, conn *netlayer.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.peers[id]
	if !ok {
		rec = &PeerRecord{Identity: id}
		t.peers[id] = rec
	}
	rec.State = StateConnecting
	rec.Conn = conn
}

// CompleteHandshake transitions rec to StateConnected once the /_o2/sv
// exchange has finished in either direction.
func (t *Table) CompleteHandshake(id types.ProcessID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.peers[id]; ok {
		rec.State = StateConnected
	}
}

// Close marks a peer record closed and removes it from the live set, e.g.
// after its TCP connection drops.
func (t *Table) Close(id types.ProcessID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.peers[id]; ok {
		rec.State = StateClosed
		delete(t.peers, id)
	}
}

// Get returns id's peer record, if known.
func (t *Table) Get(id types.ProcessID) (*PeerRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.peers[id]
	return rec, ok
}

// Connected returns every peer currently in StateConnected, used to
// decide which peers a broadcast/status message should reach.
func (t *Table) Connected() []*PeerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*PeerRecord
	for _, rec := range t.peers {
		if rec.State == StateConnected {
			out = append(out, rec)
		}
	}
	return out
}

// HandleDy processes an inbound /_o2/dy message from a peer that dialed
// us, validating the ensemble name matches and recording the peer in
// StateAccepting until the dialer's own /_o2/sv arrives. Returns ErrBadName if
// the ensembles don't match, the signal to refuse the connection.
func (t *Table) HandleDy(dy DyMessage, localEnsemble types.Ensemble, conn *netlayer.Conn) error {
	if dy.Ensemble != localEnsemble {
		return types.ErrBadName
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.peers[dy.Identity]
	if !ok {
		rec = &PeerRecord{Identity: dy.Identity}
		t.peers[dy.Identity] = rec
	}
	rec.State = StateAccepting
	rec.Conn = conn
	rec.Hub = dy.Hub
	return nil
}
