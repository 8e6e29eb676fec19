package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/addrtable"
	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

type fakeSender struct {
	remoteSent []*types.Message
}

func (f *fakeSender) SendLocal(msg *types.Message, isTap bool) {}
func (f *fakeSender) SendRemote(msg *types.Message, provider addrtable.ProviderInfo) {
	f.remoteSent = append(f.remoteSent, msg)
}

func newTestDispatcher() (*Dispatcher, *addrtable.AddressTable, *fakeSender) {
	tbl := addrtable.New("@00000000:0100007f:1000")
	log := definition.NewDefaultLogger()
	sender := &fakeSender{}
	return New(tbl, log, sender), tbl, sender
}

func TestDispatch_InvokesMatchingHandler(t *testing.T) {
	d, tbl, _ := newTestDispatcher()
	var got string
	h := &types.Handler{
		Address: "/svc/echo",
		TypeString: "s",
		Func: func(msg *types.Message, types string, argv []types.Argument, userData interface{}) {
			got = argv[0].Str
		},
	}
	require.NoError(t, tbl.InstallHandler("/svc/echo", h))

	msg := &types.Message{Address: "/svc/echo", Types: ",s", Args: []types.Argument{{Tag: 's', Str: "hi"}}}
	require.NoError(t, d.Dispatch(msg, false))
	assert.Equal(t, "hi", got)
}

func TestDispatch_TapFiresAfterPrimaryWithFlagSet(t *testing.T) {
	d, tbl, _ := newTestDispatcher()
	var order []string
	observedHandler := &types.Handler{
		Func: func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
			order = append(order, "observed")
		},
	}
	observerHandler := &types.Handler{
		Func: func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
			order = append(order, "observer")
			assert.NotZero(t, msg.Flags&types.FlagTap)
		},
	}
	require.NoError(t, tbl.InstallHandler("/observed/e", observedHandler))
	require.NoError(t, tbl.InstallHandler("/observer/e", observerHandler))
	tbl.AddTap("observed", "observer", "@00000000:0100007f:1000")

	msg := &types.Message{Address: "/observed/e", Types: ",i", Args: []types.Argument{{Tag: 'i', Int32: 42}}}
	require.NoError(t, d.Dispatch(msg, false))

	assert.Equal(t, []string{"observed", "observer"}, order)
}

func TestDispatch_CoercionConvertsNumericArgument(t *testing.T) {
	d, tbl, _ := newTestDispatcher()
	var got float64
	h := &types.Handler{
		TypeString: "d",
		Flags: types.FlagCoerce,
		Func: func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
			got = argv[0].Double
		},
	}
	require.NoError(t, tbl.InstallHandler("/svc/num", h))

	msg := &types.Message{Address: "/svc/num", Types: ",i", Args: []types.Argument{{Tag: 'i', Int32: 7}}}
	require.NoError(t, d.Dispatch(msg, false))
	assert.Equal(t, 7.0, got)
}

func TestDispatch_TypeMismatchWithoutCoerceDropsMessage(t *testing.T) {
	d, tbl, _ := newTestDispatcher()
	called := false
	h := &types.Handler{
		TypeString: "d",
		Func: func(msg *types.Message, ty string, argv []types.Argument, u interface{}) {
			called = true
		},
	}
	require.NoError(t, tbl.InstallHandler("/svc/strict", h))

	msg := &types.Message{Address: "/svc/strict", Types: ",b", Args: []types.Argument{{Tag: 'b', Blob: []byte{1}}}}
	require.NoError(t, d.Dispatch(msg, false))
	assert.False(t, called)
}

func TestDispatch_RemoteProviderForwardsInsteadOfInvoking(t *testing.T) {
	d, tbl, sender := newTestDispatcher()
	tbl.InstallProvider("remote-svc", "@00000000:0100007f:2000", types.ProviderRemote, "conn-handle", nil)

	msg := &types.Message{Address: "/remote-svc/x"}
	require.NoError(t, d.Dispatch(msg, false))
	require.Len(t, sender.remoteSent, 1)
}
