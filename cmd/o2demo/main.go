// Command o2demo runs a two-process echo exchange: a "ping" process dials
// a "pong" process directly, performs the /_o2/dy -> /_o2/sv handshake over
// a real TCP connection, then trades one immediate (timestamp 0) request
// and reply across it. It
// exercises service install, the peer handshake, and remote dispatch
// without depending on a discovery transport, so it can run as a
// deterministic smoke test.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/o2ensemble/o2/pkg/o2"
	"github.com/o2ensemble/o2/pkg/o2/definition"
	"github.com/o2ensemble/o2/pkg/o2/types"
)

func newProc(ensemble types.Ensemble, label string) *o2.Process {
	cfg := definition.DefaultConfig(ensemble)
	proc, err := o2.NewProcess(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o2demo: start %s: %v\n", label, err)
		os.Exit(1)
	}
	return proc
}

func main() {
	pong := newProc("o2demo", "pong")
	defer pong.Stop()
	ping := newProc("o2demo", "ping")
	defer ping.Stop()

	if err := pong.Service("pong"); err != nil {
		fmt.Fprintln(os.Stderr, "o2demo: service pong:", err)
		os.Exit(1)
	}
	if err := ping.Service("ping"); err != nil {
		fmt.Fprintln(os.Stderr, "o2demo: service ping:", err)
		os.Exit(1)
	}

	count := 0
	replyTo := func(msg *types.Message, typeString string, argv []types.Argument, userData interface{}) {
		n := argv[0].Int32
		fmt.Printf("pong: received %d\n", n)
		pong.Send("/ping/reply", 0, "i", types.Argument{Tag: types.TypeInt32, Int32: n + 1})
	}
	pingAgain := func(msg *types.Message, typeString string, argv []types.Argument, userData interface{}) {
		n := argv[0].Int32
		fmt.Printf("ping: reply %d\n", n)
		count++
	}

	if err := pong.Method("/pong/hit", "i", types.FlagParseArgs, replyTo, nil); err != nil {
		fmt.Fprintln(os.Stderr, "o2demo: install /pong/hit:", err)
		os.Exit(1)
	}
	if err := ping.Method("/ping/reply", "i", types.FlagParseArgs, pingAgain, nil); err != nil {
		fmt.Fprintln(os.Stderr, "o2demo: install /ping/reply:", err)
		os.Exit(1)
	}

	if err := ping.Connect(pong.Identity(), fmt.Sprintf("127.0.0.1:%d", pong.TCPPort())); err != nil {
		fmt.Fprintln(os.Stderr, "o2demo: connect to pong:", err)
		os.Exit(1)
	}
	for i := 0; i < 50; i++ {
		ping.Poll()
		pong.Poll()
		if _, err := ping.Status("pong"); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := ping.Send("/pong/hit", 0, "i", types.Argument{Tag: types.TypeInt32, Int32: 1}); err != nil {
		fmt.Fprintln(os.Stderr, "o2demo: initial send:", err)
		os.Exit(1)
	}
	for i := 0; i < 50; i++ {
		ping.Poll()
		pong.Poll()
		time.Sleep(5 * time.Millisecond)
	}

	fmt.Printf("o2demo: ping %s and pong %s exchanged %d round trips over TCP\n", ping.Identity(), pong.Identity(), count)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	timeout, cancelTimeout := context.WithTimeout(ctx, 2*time.Second)
	defer cancelTimeout()
	go ping.Run(timeout)
	pong.Run(timeout)
}
