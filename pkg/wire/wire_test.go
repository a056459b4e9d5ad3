package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveswarm/hive/pkg/types"
)

func TestRegistrationRoundTrip(t *testing.T) {
	reg := Registration{
		WorkerID:     "w1",
		MaxThreads:   8,
		Version:      "1.0.0",
		Capabilities: []string{"gpu", "ffmpeg"},
	}
	buf, err := Encode(reg)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, reg, got)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	hb := Heartbeat{
		WorkerID:     "w1",
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Health:       types.Unhealthy,
		CPUUsage:     0.42,
		MemUsage:     0.77,
		LatencyMs:    12,
		CurrentTasks: 3,
		MaxTasks:     10,
	}
	buf, err := Encode(hb)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, hb, got)
}

func TestTaskRoundTrip(t *testing.T) {
	task := TaskMsg{
		ID:        "t1",
		Payload:   []byte{0x01, 0x02, 0x03},
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Metadata:  map[string]string{"retries": "2"},
		Priority:  5,
	}
	buf, err := Encode(task)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestTaskRoundTripNoPriority(t *testing.T) {
	task := TaskMsg{
		ID:        "t2",
		Payload:   []byte{0xAA},
		Timestamp: time.Unix(1700000001, 0).UTC(),
		Metadata:  map[string]string{},
	}
	buf, err := Encode(task)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestResponseRoundTripOutput(t *testing.T) {
	resp := ResponseMsg{WorkerID: "w1", Output: []byte{0x03}}
	buf, err := Encode(resp)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestResponseRoundTripError(t *testing.T) {
	resp := ResponseMsg{WorkerID: "w1", Err: "timeout"}
	buf, err := Encode(resp)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x00})
	assert.Error(t, err)
}

func TestDecodeHeartbeatNotMistakenForRegistration(t *testing.T) {
	// A Heartbeat frame carries tag 8 (max_tasks); Registration never does,
	// so the two schemas never collide even though both start with a
	// worker_id string at tag 1.
	hb := Heartbeat{WorkerID: "w1", Timestamp: time.Now().UTC(), MaxTasks: 10}
	buf, err := Encode(hb)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	_, isHeartbeat := got.(Heartbeat)
	assert.True(t, isHeartbeat)
}

func TestMultipartRoundTrip(t *testing.T) {
	parts := EncodeMultipart("w1", []byte{0x01})
	id, payload, err := DecodeMultipart(parts)
	require.NoError(t, err)
	assert.Equal(t, "w1", id)
	assert.Equal(t, []byte{0x01}, payload)
}

func TestMultipartRejectsMalformed(t *testing.T) {
	_, _, err := DecodeMultipart([][]byte{[]byte("w1"), []byte("not-empty"), nil, []byte("x")})
	assert.Error(t, err)
}
