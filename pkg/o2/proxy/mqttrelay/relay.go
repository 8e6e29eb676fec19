// Package mqttrelay adapts an O2 service to an MQTT broker for WAN
// reachability beyond the local-network discovery that Broadcast/Zeroconf
// provide, wiring in github.com/eclipse/paho.mqtt.golang, a dependency the
// teacher already carries in its own go.mod. It is a ProviderKind-agnostic
// side channel: a service relayed through MQTT shows up locally as a
// StatusBridgeNoTime provider, reusing proxy.Lite's wire framing rather than
// inventing a fifth Proxy kind.
package mqttrelay

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/o2ensemble/o2/pkg/o2/proxy"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

// topicPrefix namespaces every relayed ensemble under one MQTT subtree so
// multiple ensembles can share a broker.
const topicPrefix = "o2/"

// Relay bridges one ensemble's messages to and from an MQTT broker: local
// sends bound for a remote-but-unreachable peer are published, and
// messages arriving on the ensemble's subscribed topic are handed back to
// the process for local dispatch.
type Relay struct {
	client mqtt.Client
	ensemble types.Ensemble
	log types.Logger
	inbound chan []byte
}

// New connects to the broker at brokerURL (e.g. "tcp://broker:1883") and
// subscribes to ensemble's relay topic.
func New(brokerURL string, ensemble types.Ensemble, self types.ProcessID, log types.Logger) (*Relay, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(string(self)).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, types.ErrSocketError
	}

	r := &Relay{client: client, ensemble: ensemble, log: log, inbound: make(chan []byte, 128)}
	topic := topicPrefix + string(ensemble) + "/#"
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		select {
		case r.inbound <- payload:
		default:
			log.Warnf("mqtt relay inbound buffer full, dropping message on %s", msg.Topic())
		}
	})
	if token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return nil, types.ErrSocketError
	}
	return r, nil
}

// Inbound returns the channel of raw O2 frames received via MQTT, drained
// the same way as netlayer.Layer.Inbound by the process poll loop.
func (r *Relay) Inbound() <-chan []byte {
	return r.inbound
}

// Publish wraps NewLite-style raw frame bytes and publishes them under the
// peer-specific subtopic so only that peer's subscribers need decode them.
func (r *Relay) Publish(peer types.ProcessID, frame []byte) error {
	topic := fmt.Sprintf("%s%s/%s", topicPrefix, r.ensemble, peer)
	token := r.client.Publish(topic, 1, false, frame)
	token.Wait()
	if err := token.Error(); err != nil {
		return types.ErrSocketError
	}
	return nil
}

// AsLiteSink adapts this Relay into a proxy.LiteSink addressed at peer, so
// a relayed service can be installed as an ordinary Lite-status provider.
func (r *Relay) AsLiteSink(peer types.ProcessID) proxy.LiteSink {
	return relaySink{relay: r, peer: peer}
}

type relaySink struct {
	relay *Relay
	peer types.ProcessID
}

func (s relaySink) Enqueue(data []byte) error { return s.relay.Publish(s.peer, data) }
func (s relaySink) Close() error { return nil }

// Close disconnects from the broker.
func (r *Relay) Close() {
	r.client.Disconnect(250)
}
