package definition

import "github.com/o2ensemble/o2/pkg/o2/types"

// DefaultConfig builds the Config a process runs with when the caller only
// cares to name the ensemble.
func DefaultConfig(ensemble types.Ensemble) *types.Config {
	return &types.Config{
		Ensemble:  ensemble,
		Discovery: types.DiscoveryBroadcast,
		Logger:    NewDefaultLogger(),
		TCPPort:   0,
		UDPPort:   0,
	}
}
