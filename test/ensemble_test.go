// Package test holds cross-package integration tests exercising whole
// Process instances rather than one package in isolation: a small helper
// builds a process from a shared config shape, and individual tests drive
// it through a scenario and assert on the observable outcome.
package test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2"
	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

func newTestProcess(t *testing.T, ensemble types.Ensemble) *o2.Process {
	t.Helper()
	cfg := definition.DefaultConfig(ensemble)
	p, err := o2.NewProcess(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Stop() })
	return p
}

// TestScenario_TimestampedMessagesDeliverInOrder exercises the seed
// scenario where a burst of out-of-order-submitted, timestamped messages
// must be delivered to their handler in non-decreasing timestamp order
// once their time comes due: it waits 120 ms of real time, past every
// timestamp, and then delivers them with a single Poll call.
func TestScenario_TimestampedMessagesDeliverInOrder(t *testing.T) {
	p := newTestProcess(t, "scenario-b")
	require.NoError(t, p.Service("seq"))

	var order []int32
	require.NoError(t, p.Method("/seq/mark", "i", types.FlagParseArgs, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		order = append(order, argv[0].Int32)
	}, nil))

	base := p.LocalTime()
	require.NoError(t, p.Send("/seq/mark", base+0.090, "i", types.Argument{Tag: types.TypeInt32, Int32: 3}))
	require.NoError(t, p.Send("/seq/mark", base+0.030, "i", types.Argument{Tag: types.TypeInt32, Int32: 1}))
	require.NoError(t, p.Send("/seq/mark", base+0.060, "i", types.Argument{Tag: types.TypeInt32, Int32: 2}))

	assert.Empty(t, order, "messages scheduled in the future must not fire immediately")

	time.Sleep(120 * time.Millisecond)
	p.Poll()

	assert.Equal(t, []int32{1, 2, 3}, order)
}

// TestScenario_StatusTransitionsWithServiceLifecycle exercises status
// reporting before and after a service is installed: an absent service
// reports ErrNoService, an installed local one StatusLocalNoTime.
func TestScenario_StatusTransitionsWithServiceLifecycle(t *testing.T) {
	p := newTestProcess(t, "scenario-status")

	_, err := p.Status("absent")
	assert.ErrorIs(t, err, types.ErrNoService)

	require.NoError(t, p.Service("present"))
	status, err := p.Status("present")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLocalNoTime, status)
}

// TestScenario_TapObservesWithoutAlteringPrimaryDelivery exercises seed
// scenario where attaching a tap to a service must not change what the
// tapped service's own handler receives, only add an additional delivery
// to the tapper.
func TestScenario_TapObservesWithoutAlteringPrimaryDelivery(t *testing.T) {
	p := newTestProcess(t, "scenario-tap")
	require.NoError(t, p.Service("stage"))
	require.NoError(t, p.Service("monitor"))

	var primaryCount, tapCount int
	require.NoError(t, p.Method("/stage/event", types.TypeStringAny, 0, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		primaryCount++
		assert.Zero(t, msg.Flags&types.FlagTap)
	}, nil))
	require.NoError(t, p.Method("/monitor/event", types.TypeStringAny, 0, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		tapCount++
		assert.NotZero(t, msg.Flags&types.FlagTap)
	}, nil))
	p.Tap("stage", "monitor")

	require.NoError(t, p.Send("/stage/event", 0, ""))
	require.NoError(t, p.Send("/stage/event", 0, ""))

	assert.Equal(t, 2, primaryCount)
	assert.Equal(t, 2, tapCount)
}

// TestScenario_TwoProcessHandshakeRegistersRemoteService exercises the
// actual /_o2/dy -> /_o2/sv exchange across a real TCP connection between
// two distinct processes: one dials the other directly (bypassing
// discovery, which is exercised separately), and the dialer's address
// table ends up with the dialed process's service as a remote provider
// that a real Send reaches over the wire.
func TestScenario_TwoProcessHandshakeRegistersRemoteService(t *testing.T) {
	a := newTestProcess(t, "scenario-mesh")
	b := newTestProcess(t, "scenario-mesh")

	require.NoError(t, b.Service("remote-svc"))
	var got int32
	require.NoError(t, b.Method("/remote-svc/ping", "i", types.FlagParseArgs, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		got = argv[0].Int32
	}, nil))

	require.NoError(t, a.Connect(b.Identity(), fmt.Sprintf("127.0.0.1:%d", b.TCPPort())))

	require.Eventually(t, func() bool {
		a.Poll()
		b.Poll()
		_, err := a.Status("remote-svc")
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Send("/remote-svc/ping", 0, "i", types.Argument{Tag: types.TypeInt32, Int32: 7}))

	require.Eventually(t, func() bool {
		a.Poll()
		b.Poll()
		return got == 7
	}, time.Second, 5*time.Millisecond)
}
