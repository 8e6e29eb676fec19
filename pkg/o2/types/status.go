package types

// StatusCode reports how a service is currently reachable.
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusLocalNoTime
	StatusRemoteNoTime
	StatusBridgeNoTime
	StatusToOscNoTime
	StatusLocal
	StatusRemote
	StatusBridge
	StatusToOsc
	StatusTap
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusLocalNoTime:
		return "LocalNoTime"
	case StatusRemoteNoTime:
		return "RemoteNoTime"
	case StatusBridgeNoTime:
		return "BridgeNoTime"
	case StatusToOscNoTime:
		return "ToOscNoTime"
	case StatusLocal:
		return "Local"
	case StatusRemote:
		return "Remote"
	case StatusBridge:
		return "Bridge"
	case StatusToOsc:
		return "ToOsc"
	case StatusTap:
		return "Tap"
	default:
		return "Unknown"
	}
}

// HasTime reports whether the status implies the provider has a
// clock-synchronized notion of global time.
func (s StatusCode) HasTime() bool {
	switch s {
	case StatusLocal, StatusRemote, StatusBridge, StatusToOsc, StatusTap:
		return true
	default:
		return false
	}
}
