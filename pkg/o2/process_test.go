package o2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

func newTestProcess(t *testing.T) *Process {
	t.Helper()
	cfg := definition.DefaultConfig("testensemble")
	p, err := NewProcess(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Stop() })
	return p
}

func TestProcess_ServiceThenMethodThenSendInvokesHandler(t *testing.T) {
	p := newTestProcess(t)
	require.NoError(t, p.Service("echo"))

	var got string
	err := p.Method("/echo/say", "s", types.FlagParseArgs, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		got = argv[0].Str
	}, nil)
	require.NoError(t, err)

	err = p.Send("/echo/say", 0, "s", types.Argument{Tag: types.TypeString, Str: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestProcess_StatusReportsLocalBeforeSync(t *testing.T) {
	p := newTestProcess(t)
	require.NoError(t, p.Service("svc"))
	status, err := p.Status("svc")
	require.NoError(t, err)
	assert.Equal(t, types.StatusLocalNoTime, status)
}

func TestProcess_StatusOnUnknownServiceErrors(t *testing.T) {
	p := newTestProcess(t)
	_, err := p.Status("nope")
	assert.ErrorIs(t, err, types.ErrNoService)
}

func TestProcess_FutureTimestampSchedulesRatherThanDispatchesImmediately(t *testing.T) {
	p := newTestProcess(t)
	require.NoError(t, p.Service("echo"))
	called := false
	require.NoError(t, p.Method("/echo/x", types.TypeStringAny, 0, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		called = true
	}, nil))

	future := p.clockView.Local() + 3600
	require.NoError(t, p.Send("/echo/x", future, ""))
	assert.False(t, called)
	assert.Equal(t, 1, p.sched.PendingLocal())
}

func TestProcess_TapFansOutLocally(t *testing.T) {
	p := newTestProcess(t)
	require.NoError(t, p.Service("observed"))
	require.NoError(t, p.Service("observer"))

	var order []string
	require.NoError(t, p.Method("/observed/e", types.TypeStringAny, 0, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		order = append(order, "observed")
	}, nil))
	require.NoError(t, p.Method("/observer/e", types.TypeStringAny, 0, func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
		order = append(order, "observer")
	}, nil))
	p.Tap("observed", "observer")

	require.NoError(t, p.Send("/observed/e", 0, ""))
	assert.Equal(t, []string{"observed", "observer"}, order)
}
