// Package wire implements the fixed-tag, length-prefixed binary codec
// that Hive and Drone use to exchange the four message kinds —
// Registration, Heartbeat, Task, Response — over the router endpoint.
//
// Schema is fixed-tag; unknown tags are ignored on decode. The message
// kind is discriminated structurally rather than by an envelope header:
// Decode tries each candidate schema in a fixed order (Registration,
// Heartbeat, Task, Response) and accepts the first whose required tags
// are all present with consistent lengths.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/hiveswarm/hive/pkg/errs"
	"github.com/hiveswarm/hive/pkg/types"
)

// Field tags, shared across schemas where semantically identical
// (worker_id is always tag 1).
const (
	tagWorkerID     = 1
	tagMaxThreads   = 2
	tagVersion      = 3
	tagCapabilities = 4

	tagHBTimestamp = 2
	tagHealth      = 3
	tagCPU         = 4
	tagMem         = 5
	tagLatencyMs   = 6
	tagCurrentTask = 7
	tagMaxTasks    = 8

	tagTaskID        = 1
	tagTaskPayload   = 2
	tagTaskTimestamp = 3
	tagTaskMetadata  = 4
	tagTaskPriority  = 5

	tagRespWorkerID = 1
	tagRespOutput   = 2
	tagRespError    = 3
)

// Registration announces a new worker and its capabilities.
type Registration struct {
	WorkerID     string
	MaxThreads   int32
	Version      string
	Capabilities []string
}

// Heartbeat carries a worker's periodic self-reported telemetry.
type Heartbeat struct {
	WorkerID     string
	Timestamp    time.Time
	Health       types.Health
	CPUUsage     float32
	MemUsage     float32
	LatencyMs    uint32
	CurrentTasks uint32
	MaxTasks     uint32
}

// TaskMsg is a unit of work addressed to a worker over the wire.
type TaskMsg struct {
	ID        string
	Payload   []byte
	Timestamp time.Time
	Metadata  map[string]string
	Priority  uint32 // 0 = unset, else 1..10
}

// ResponseMsg is a worker's reply to a dispatched task.
type ResponseMsg struct {
	WorkerID string
	Output   []byte // meaningful iff Err == ""
	Err      string
}

func writeField(buf *bytes.Buffer, tag uint8, value []byte) error {
	if len(value) > math.MaxUint32 {
		return fmt.Errorf("%w: field tag %d oversize (%d bytes)", errs.ErrEncode, tag, len(value))
	}
	buf.WriteByte(tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	buf.Write(lenBuf[:])
	buf.Write(value)
	return nil
}

func parseFields(buf []byte) (map[uint8][][]byte, error) {
	fields := make(map[uint8][][]byte)
	for len(buf) > 0 {
		if len(buf) < 5 {
			return nil, fmt.Errorf("%w: truncated field header", errs.ErrDecode)
		}
		tag := buf[0]
		length := binary.BigEndian.Uint32(buf[1:5])
		buf = buf[5:]
		if uint64(len(buf)) < uint64(length) {
			return nil, fmt.Errorf("%w: truncated field value for tag %d", errs.ErrDecode, tag)
		}
		fields[tag] = append(fields[tag], buf[:length])
		buf = buf[length:]
	}
	return fields, nil
}

func one(fields map[uint8][][]byte, tag uint8) ([]byte, bool) {
	vs, ok := fields[tag]
	if !ok || len(vs) != 1 {
		return nil, false
	}
	return vs[0], true
}

// Encode maps a typed message to its wire frame.
func Encode(msg any) ([]byte, error) {
	var buf bytes.Buffer
	switch m := msg.(type) {
	case Registration:
		if err := writeField(&buf, tagWorkerID, []byte(m.WorkerID)); err != nil {
			return nil, err
		}
		var mt [4]byte
		binary.BigEndian.PutUint32(mt[:], uint32(m.MaxThreads))
		if err := writeField(&buf, tagMaxThreads, mt[:]); err != nil {
			return nil, err
		}
		if err := writeField(&buf, tagVersion, []byte(m.Version)); err != nil {
			return nil, err
		}
		for _, c := range m.Capabilities {
			if err := writeField(&buf, tagCapabilities, []byte(c)); err != nil {
				return nil, err
			}
		}
	case Heartbeat:
		if err := writeField(&buf, tagWorkerID, []byte(m.WorkerID)); err != nil {
			return nil, err
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(m.Timestamp.Unix()))
		if err := writeField(&buf, tagHBTimestamp, ts[:]); err != nil {
			return nil, err
		}
		if err := writeField(&buf, tagHealth, []byte{byte(m.Health)}); err != nil {
			return nil, err
		}
		var cpu [4]byte
		binary.BigEndian.PutUint32(cpu[:], math.Float32bits(m.CPUUsage))
		if err := writeField(&buf, tagCPU, cpu[:]); err != nil {
			return nil, err
		}
		var mem [4]byte
		binary.BigEndian.PutUint32(mem[:], math.Float32bits(m.MemUsage))
		if err := writeField(&buf, tagMem, mem[:]); err != nil {
			return nil, err
		}
		var lat [4]byte
		binary.BigEndian.PutUint32(lat[:], m.LatencyMs)
		if err := writeField(&buf, tagLatencyMs, lat[:]); err != nil {
			return nil, err
		}
		var cur [4]byte
		binary.BigEndian.PutUint32(cur[:], m.CurrentTasks)
		if err := writeField(&buf, tagCurrentTask, cur[:]); err != nil {
			return nil, err
		}
		var max [4]byte
		binary.BigEndian.PutUint32(max[:], m.MaxTasks)
		if err := writeField(&buf, tagMaxTasks, max[:]); err != nil {
			return nil, err
		}
	case TaskMsg:
		if err := writeField(&buf, tagTaskID, []byte(m.ID)); err != nil {
			return nil, err
		}
		if err := writeField(&buf, tagTaskPayload, m.Payload); err != nil {
			return nil, err
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(m.Timestamp.Unix()))
		if err := writeField(&buf, tagTaskTimestamp, ts[:]); err != nil {
			return nil, err
		}
		if err := writeField(&buf, tagTaskMetadata, encodeMetadata(m.Metadata)); err != nil {
			return nil, err
		}
		if m.Priority != 0 {
			var p [4]byte
			binary.BigEndian.PutUint32(p[:], m.Priority)
			if err := writeField(&buf, tagTaskPriority, p[:]); err != nil {
				return nil, err
			}
		}
	case ResponseMsg:
		if err := writeField(&buf, tagRespWorkerID, []byte(m.WorkerID)); err != nil {
			return nil, err
		}
		if m.Err != "" {
			if err := writeField(&buf, tagRespError, []byte(m.Err)); err != nil {
				return nil, err
			}
		} else {
			if err := writeField(&buf, tagRespOutput, m.Output); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported message type %T", errs.ErrEncode, msg)
	}
	return buf.Bytes(), nil
}

// Decode tries Registration, then Heartbeat, then Task, then Response,
// returning the first schema whose required tags all parse.
func Decode(buf []byte) (any, error) {
	fields, err := parseFields(buf)
	if err != nil {
		return nil, err
	}
	if m, ok := decodeRegistration(fields); ok {
		return m, nil
	}
	if m, ok := decodeHeartbeat(fields); ok {
		return m, nil
	}
	if m, ok := decodeTask(fields); ok {
		return m, nil
	}
	if m, ok := decodeResponse(fields); ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: no schema matched", errs.ErrDecode)
}

func decodeRegistration(fields map[uint8][][]byte) (Registration, bool) {
	// Heartbeat frames always carry tag 8 (max_tasks); Registration never does.
	if _, ok := fields[tagMaxTasks]; ok {
		return Registration{}, false
	}
	idv, ok := one(fields, tagWorkerID)
	if !ok {
		return Registration{}, false
	}
	mtv, ok := one(fields, tagMaxThreads)
	if !ok || len(mtv) != 4 {
		return Registration{}, false
	}
	verv, ok := one(fields, tagVersion)
	if !ok {
		return Registration{}, false
	}
	var caps []string
	for _, c := range fields[tagCapabilities] {
		caps = append(caps, string(c))
	}
	return Registration{
		WorkerID:     string(idv),
		MaxThreads:   int32(binary.BigEndian.Uint32(mtv)),
		Version:      string(verv),
		Capabilities: caps,
	}, true
}

func decodeHeartbeat(fields map[uint8][][]byte) (Heartbeat, bool) {
	idv, ok := one(fields, tagWorkerID)
	if !ok {
		return Heartbeat{}, false
	}
	tsv, ok := one(fields, tagHBTimestamp)
	if !ok || len(tsv) != 8 {
		return Heartbeat{}, false
	}
	hv, ok := one(fields, tagHealth)
	if !ok || len(hv) != 1 {
		return Heartbeat{}, false
	}
	cpuv, ok := one(fields, tagCPU)
	if !ok || len(cpuv) != 4 {
		return Heartbeat{}, false
	}
	memv, ok := one(fields, tagMem)
	if !ok || len(memv) != 4 {
		return Heartbeat{}, false
	}
	latv, ok := one(fields, tagLatencyMs)
	if !ok || len(latv) != 4 {
		return Heartbeat{}, false
	}
	curv, ok := one(fields, tagCurrentTask)
	if !ok || len(curv) != 4 {
		return Heartbeat{}, false
	}
	maxv, ok := one(fields, tagMaxTasks)
	if !ok || len(maxv) != 4 {
		return Heartbeat{}, false
	}
	return Heartbeat{
		WorkerID:     string(idv),
		Timestamp:    time.Unix(int64(binary.BigEndian.Uint64(tsv)), 0).UTC(),
		Health:       types.Health(hv[0]),
		CPUUsage:     math.Float32frombits(binary.BigEndian.Uint32(cpuv)),
		MemUsage:     math.Float32frombits(binary.BigEndian.Uint32(memv)),
		LatencyMs:    binary.BigEndian.Uint32(latv),
		CurrentTasks: binary.BigEndian.Uint32(curv),
		MaxTasks:     binary.BigEndian.Uint32(maxv),
	}, true
}

func decodeTask(fields map[uint8][][]byte) (TaskMsg, bool) {
	idv, ok := one(fields, tagTaskID)
	if !ok {
		return TaskMsg{}, false
	}
	payv, ok := one(fields, tagTaskPayload)
	if !ok {
		return TaskMsg{}, false
	}
	tsv, ok := one(fields, tagTaskTimestamp)
	if !ok || len(tsv) != 8 {
		return TaskMsg{}, false
	}
	metav, ok := one(fields, tagTaskMetadata)
	if !ok {
		return TaskMsg{}, false
	}
	md, err := decodeMetadata(metav)
	if err != nil {
		return TaskMsg{}, false
	}
	var priority uint32
	if pv, ok := one(fields, tagTaskPriority); ok {
		if len(pv) != 4 {
			return TaskMsg{}, false
		}
		priority = binary.BigEndian.Uint32(pv)
	}
	return TaskMsg{
		ID:        string(idv),
		Payload:   append([]byte(nil), payv...),
		Timestamp: time.Unix(int64(binary.BigEndian.Uint64(tsv)), 0).UTC(),
		Metadata:  md,
		Priority:  priority,
	}, true
}

func decodeResponse(fields map[uint8][][]byte) (ResponseMsg, bool) {
	idv, ok := one(fields, tagRespWorkerID)
	if !ok {
		return ResponseMsg{}, false
	}
	outv, hasOut := one(fields, tagRespOutput)
	errv, hasErr := one(fields, tagRespError)
	if hasOut == hasErr {
		// exactly one of output/error must be present
		return ResponseMsg{}, false
	}
	if hasErr {
		return ResponseMsg{WorkerID: string(idv), Err: string(errv)}, true
	}
	return ResponseMsg{WorkerID: string(idv), Output: append([]byte(nil), outv...)}, true
}

func encodeMetadata(md map[string]string) []byte {
	var buf bytes.Buffer
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(md)))
	buf.Write(count[:])
	for k, v := range md {
		var kl, vl [4]byte
		binary.BigEndian.PutUint32(kl[:], uint32(len(k)))
		binary.BigEndian.PutUint32(vl[:], uint32(len(v)))
		buf.Write(kl[:])
		buf.WriteString(k)
		buf.Write(vl[:])
		buf.WriteString(v)
	}
	return buf.Bytes()
}

func decodeMetadata(buf []byte) (map[string]string, error) {
	if len(buf) < 4 {
		if len(buf) == 0 {
			return map[string]string{}, nil
		}
		return nil, errs.ErrDecode
	}
	count := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	md := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 4 {
			return nil, errs.ErrDecode
		}
		kl := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint64(len(buf)) < uint64(kl) {
			return nil, errs.ErrDecode
		}
		k := string(buf[:kl])
		buf = buf[kl:]
		if len(buf) < 4 {
			return nil, errs.ErrDecode
		}
		vl := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint64(len(buf)) < uint64(vl) {
			return nil, errs.ErrDecode
		}
		v := string(buf[:vl])
		buf = buf[vl:]
		md[k] = v
	}
	return md, nil
}
