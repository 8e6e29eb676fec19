package netlayer

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2/pkg/o2/definition"
)

func frame(payload string) []byte {
	body := []byte(payload)
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out
}

func TestLayer_TCPRoundTripDeliversFramedMessage(t *testing.T) {
	log := definition.NewDefaultLogger()
	server := New(log, definition.NewDefaultInvoker())
	port, err := server.ListenTCP(0)
	require.NoError(t, err)
	defer server.Close()

	client := New(log, definition.NewDefaultInvoker())
	conn, err := client.Dial("srv", "127.0.0.1:"+itoa(port))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, conn.Enqueue(frame("hello")))
	require.NoError(t, conn.SendStep(true))

	select {
	case in := <-server.Inbound():
		assert.Equal(t, "hello", string(in.Data[4:]))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestLayer_OversizedFrameClosesConnection(t *testing.T) {
	log := definition.NewDefaultLogger()
	server := New(log, definition.NewDefaultInvoker())
	port, err := server.ListenTCP(0)
	require.NoError(t, err)
	defer server.Close()

	client := New(log, definition.NewDefaultInvoker())
	conn, err := client.Dial("srv", "127.0.0.1:"+itoa(port))
	require.NoError(t, err)
	defer client.Close()

	oversized := make([]byte, 4)
	binary.BigEndian.PutUint32(oversized, maxFrameSize+1)
	require.NoError(t, conn.Enqueue(oversized))
	require.NoError(t, conn.SendStep(true))

	select {
	case <-server.Inbound():
		t.Fatal("expected no message delivered for oversized frame")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConn_EnqueueAfterCloseFails(t *testing.T) {
	log := definition.NewDefaultLogger()
	c := &Conn{id: "x", log: log}
	require.NoError(t, c.Close())
	assert.Error(t, c.Enqueue([]byte("x")))
}
