// Package dispatch implements handler invocation with type
// coercion/argv construction, a reentrancy queue, and tap fan-out: message
// processing runs from a single poll loop, and local sends made from inside
// a handler are queued and delivered when the outermost Dispatch returns
// rather than recursing arbitrarily deep.
package dispatch

import (
	"github.com/o2ensemble/o2/pkg/o2/addrtable"
	"github.com/o2ensemble/o2/pkg/o2/metrics"
	"github.com/o2ensemble/o2/pkg/o2/types"
	"github.com/o2ensemble/o2/pkg/o2/wire"
)

// Sender is implemented by whatever can actually put a message on the
// wire/local-delivery path; the top-level Process implements it. Kept as
// an interface so the dispatcher can be tested without a real net layer.
type Sender interface {
	// SendLocal re-enters dispatch for a message whose destination
	// resolved to a local handler, deferred if we're already inside a
	// dispatch on this goroutine.
	SendLocal(msg *types.Message, isTap bool)
	// SendRemote hands an already-addressed message to the provider's
	// transport (remote O2 peer, OSC, or lite bridge).
	SendRemote(msg *types.Message, provider addrtable.ProviderInfo)
}

// Dispatcher resolves addresses via an AddressTable and invokes matching
// handlers, applying type coercion, building argv, and fanning out to taps.
// A Dispatcher instance is owned by a single goroutine (the poll loop);
// reentrant local sends made from inside a handler are queued rather than
// invoked immediately.
type Dispatcher struct {
	table *addrtable.AddressTable
	log types.Logger
	sender Sender
	metrics *metrics.Registry

	depth int
	normalQueue []pendingDelivery
	tapQueue []pendingDelivery
}

// SetMetrics attaches reg so Dispatch/fanOutTaps can count what they do.
// Counting is skipped entirely when reg is nil.
func (d *Dispatcher) SetMetrics(reg *metrics.Registry) {
	d.metrics = reg
}

type pendingDelivery struct {
	msg *types.Message
	isTap bool
}

// New builds a Dispatcher over table, logging through log and delivering
// derived local sends through sender.
func New(table *addrtable.AddressTable, log types.Logger, sender Sender) *Dispatcher {
	return &Dispatcher{table: table, log: log, sender: sender}
}

// Dispatch resolves msg's address and either invokes the local handler(s)
// (draining taps and the reentrancy queue afterward) or hands the message
// to the remote/OSC/lite provider. isTap marks a tap-derived delivery so
// it does not itself trigger further taps.
func (d *Dispatcher) Dispatch(msg *types.Message, isTap bool) error {
	result, err := d.table.Dispatch(msg.Address)
	if err != nil {
		if d.metrics != nil {
			d.metrics.MessagesDropped.Inc()
		}
		return err
	}
	if result.Remote != nil {
		d.sender.SendRemote(msg, *result.Remote)
		return nil
	}
	if len(result.Handlers) == 0 {
		d.log.Debugf("dropped message to %s: no matching handler", msg.Address)
		if d.metrics != nil {
			d.metrics.MessagesDropped.Inc()
		}
		return nil
	}

	d.depth++
	for _, h := range result.Handlers {
		d.invoke(h, msg)
		if d.metrics != nil {
			d.metrics.MessagesDispatched.Inc()
		}
		if !isTap {
			d.fanOutTaps(msg, h.Address)
		}
	}
	d.depth--

	if d.depth == 0 {
		d.drainPending()
	}
	return nil
}

// invoke enforces the handler's declared type string (exact match, or
// coercion when FlagCoerce is set) and builds argv from the checked
// arguments whenever a type string is declared; a handler that accepts any
// types gets the raw arguments as argv only when FlagParseArgs is set. It
// then calls the handler. A coercion failure silently drops the message.
func (d *Dispatcher) invoke(h *types.Handler, msg *types.Message) {
	var argv []types.Argument
	if h.TypeString != types.TypeStringAny {
		expected := []byte(h.TypeString)
		if len(expected) != len(msg.Args) {
			d.log.Debugf("dropping %s: argument count %d != expected %d", msg.Address, len(msg.Args), len(expected))
			return
		}
		argv = make([]types.Argument, len(msg.Args))
		for i, tag := range expected {
			arg := msg.Args[i]
			if arg.Tag == types.TypeTag(tag) {
				argv[i] = arg
				continue
			}
			if h.Flags&types.FlagCoerce == 0 {
				d.log.Debugf("dropping %s: type mismatch at arg %d", msg.Address, i)
				return
			}
			coerced, ok := wire.GetAs(arg, types.TypeTag(tag))
			if !ok {
				d.log.Debugf("dropping %s: coercion failed at arg %d", msg.Address, i)
				return
			}
			argv[i] = coerced
		}
	} else if h.Flags&types.FlagParseArgs != 0 {
		argv = msg.Args
	}

	h.Func(msg, msg.Types, argv, h.UserData)
}

// fanOutTaps duplicates msg to every tap attached to the service that owns
// handlerAddress, rewriting the address from "/tappee[/...]" to
// "/tapper[/...]" and setting the TAP flag.
func (d *Dispatcher) fanOutTaps(msg *types.Message, handlerAddress string) {
	service, _, err := serviceOf(handlerAddress)
	if err != nil {
		return
	}
	taps := d.table.Taps(service)
	for _, tap := range taps {
		rewritten := rewriteAddress(msg.Address, service, tap.TapperService)
		tapMsg := &types.Message{
			Header: types.Header{Timestamp: msg.Timestamp, Flags: msg.Flags | types.FlagTap},
			Address: rewritten,
			Types: msg.Types,
			Args: append([]types.Argument(nil), msg.Args...),
		}
		d.queue(tapMsg, true)
		if d.metrics != nil {
			d.metrics.TapsFired.Inc()
		}
	}
}

// queue defers a derived delivery (tap copy, or a local send issued from
// inside a handler) until the outer Dispatch call returns, with one FIFO
// per kind so tap semantics are preserved independently of normal
// re-sends.
func (d *Dispatcher) queue(msg *types.Message, isTap bool) {
	if isTap {
		d.tapQueue = append(d.tapQueue, pendingDelivery{msg: msg, isTap: true})
	} else {
		d.normalQueue = append(d.normalQueue, pendingDelivery{msg: msg, isTap: false})
	}
}

// QueueLocalSend is called by the Process layer when a handler issues a
// send whose destination is local while we are already inside dispatch
// (depth > 0); it defers delivery to drainPending.
func (d *Dispatcher) QueueLocalSend(msg *types.Message) {
	d.queue(msg, false)
}

// InDispatch reports whether the calling goroutine is currently inside a
// Dispatch call (depth > 0), i.e. whether a local send must be queued
// instead of dispatched immediately.
func (d *Dispatcher) InDispatch() bool {
	return d.depth > 0
}

func (d *Dispatcher) drainPending() {
	for len(d.normalQueue) > 0 || len(d.tapQueue) > 0 {
		for len(d.normalQueue) > 0 {
			p := d.normalQueue[0]
			d.normalQueue = d.normalQueue[1:]
			d.Dispatch(p.msg, p.isTap)
		}
		for len(d.tapQueue) > 0 {
			p := d.tapQueue[0]
			d.tapQueue = d.tapQueue[1:]
			d.Dispatch(p.msg, p.isTap)
		}
	}
}

func serviceOf(address string) (string, string, error) {
	if len(address) < 2 || address[0] != '/' {
		return "", "", types.ErrBadName
	}
	rest := address[1:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i:], nil
		}
	}
	return rest, "", nil
}

func rewriteAddress(address, fromService, toService string) string {
	_, tail, _ := serviceOf(address)
	return "/" + toService + tail
}
