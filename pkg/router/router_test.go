package router

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripSendAndPoll(t *testing.T) {
	e := New(zerolog.Nop())
	addr := "127.0.0.1:18901"
	require.NoError(t, e.Bind(addr))
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	time.Sleep(20 * time.Millisecond) // let the listener come up

	conn, err := Dial(addr, "drone-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Send([]byte("hello")))

	frames, err := e.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "drone-1", frames[0].Identity)
	assert.Equal(t, []byte("hello"), frames[0].Payload)

	require.NoError(t, e.Send("drone-1", []byte("world")))
	reply, err := conn.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), reply)
}

func TestPollTimesOutWithNoFrames(t *testing.T) {
	e := New(zerolog.Nop())
	frames, err := e.Poll(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestSendToUnknownIdentityFails(t *testing.T) {
	e := New(zerolog.Nop())
	err := e.Send("nobody", []byte("x"))
	assert.Error(t, err)
}

func TestPollRespectsContextCancellation(t *testing.T) {
	e := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Poll(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPackUnpackMultipartRoundTrip(t *testing.T) {
	parts := [][]byte{[]byte("id"), {}, {}, []byte("payload")}
	packed := packMultipart(parts)
	unpacked, err := unpackMultipart(packed)
	require.NoError(t, err)
	require.Len(t, unpacked, 4)
	assert.Equal(t, parts, unpacked)
}

func TestUnpackMultipartRejectsTruncated(t *testing.T) {
	_, err := unpackMultipart([]byte{0, 0, 0, 5, 'a', 'b'})
	assert.Error(t, err)
}
