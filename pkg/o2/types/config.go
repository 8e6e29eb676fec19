package types

// DebugFlag selects a category of debug logging ("debug flags
// bitset").
type DebugFlag uint32

const (
	DebugDiscovery DebugFlag = 1 << iota
	DebugHandshake
	DebugDispatch
	DebugScheduler
	DebugClock
	DebugAddrTable
	DebugNet
)

// HubRole is the hub-handshake flag carried in /_o2/dy.
type HubRole int

const (
	HubNone HubRole = iota
	HubIAmYourHub
	HubRemoteIsMyHub
	HubCallback
)

// HubTarget pins a process to a single discovery source.
type HubTarget struct {
	PublicIP uint32
	InternalIP uint32
	Port uint16
}

// DiscoveryBackendKind selects between the two interchangeable discovery
// backends.
type DiscoveryBackendKind int

const (
	DiscoveryBroadcast DiscoveryBackendKind = iota
	DiscoveryZeroconf
)

// Config is the process-wide configuration surface. It is set before the
// first call to Poll and is read-only thereafter.
type Config struct {
	Ensemble Ensemble
	Allocator Allocator // nil selects the built-in segregated free-list allocator
	Discovery DiscoveryBackendKind
	Hub *HubTarget
	DebugFlags DebugFlag
	Logger Logger

	// TCPPort and UDPPort are the ports the process listens on; 0 selects
	// an ephemeral port.
	TCPPort int
	UDPPort int

	// MQTTBrokerURL, when non-empty, connects this process's MQTT relay to
	// the given broker (e.g. "tcp://broker:1883") for WAN peers beyond
	// local discovery's reach. Left empty, no relay is started.
	MQTTBrokerURL string
}

// PeerConfiguration carries everything a single peer's handshake and
// clock-sync state need.
type PeerConfiguration struct {
	Identity ProcessID
	Ensemble Ensemble
	TCPAddr string
	UDPAddr string
	Version string
}
