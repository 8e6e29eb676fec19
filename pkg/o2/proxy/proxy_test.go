package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

type fakeSink struct {
	sent [][]byte
	closed bool
}

func (f *fakeSink) Enqueue(data []byte) error {
	f.sent = append(f.sent, data)
	return nil
}
func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestLite_SendEncodesAndEnqueues(t *testing.T) {
	sink := &fakeSink{}
	p := NewLite(sink, true)
	msg := &types.Message{Address: "/dev/x", Types: ",i", Args: []types.Argument{{Tag: types.TypeInt32, Int32: 9}}}
	require.NoError(t, p.Send(msg))
	assert.Len(t, sink.sent, 1)
	assert.Equal(t, types.StatusBridge, p.Status())
}

func TestLite_StatusReflectsUnsyncedClock(t *testing.T) {
	p := NewLite(&fakeSink{}, false)
	assert.Equal(t, types.StatusBridgeNoTime, p.Status())
}

func TestLite_FinishClosesSink(t *testing.T) {
	sink := &fakeSink{}
	p := NewLite(sink, true)
	require.NoError(t, p.Finish())
	assert.True(t, sink.closed)
}

type fakeOSCTransport struct {
	address string
	args []types.Argument
	closed bool
}

func (f *fakeOSCTransport) SendOSC(address string, typeString string, args []types.Argument) error {
	f.address = address
	f.args = args
	return nil
}
func (f *fakeOSCTransport) Close() error {
	f.closed = true
	return nil
}

func TestOSC_SendStripsO2Envelope(t *testing.T) {
	transport := &fakeOSCTransport{}
	p := NewOSC(transport)
	msg := &types.Message{Address: "/synth/freq", Types: ",f", Args: []types.Argument{{Tag: types.TypeFloat32, Float: 440}}}
	require.NoError(t, p.Send(msg))
	assert.Equal(t, "/freq", transport.address)
	assert.Equal(t, types.StatusToOscNoTime, p.Status())
}

func TestOSCPad_PadsToFourByteBoundary(t *testing.T) {
	padded := oscPad(nil, "/a")
	assert.Equal(t, 0, len(padded)%4)
}
