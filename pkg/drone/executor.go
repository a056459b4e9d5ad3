package drone

import (
	"context"

	"github.com/hiveswarm/hive/pkg/types"
)

// TaskRunner executes one task's payload and returns its output. The real
// execution contract (what a task payload means, how it's sandboxed) is
// deliberately left outside this module's scope; StubRunner below is the
// in-process placeholder that lets the heartbeat/dispatch loops be
// exercised end-to-end without a real workload.
type TaskRunner interface {
	Run(ctx context.Context, task types.Task) ([]byte, error)
}

// StubRunner echoes the task payload back, uppercased, while holding one of
// a bounded number of execution slots. The Drone's execute loop hands it
// one task at a time, so within one Drone tasks run sequentially.
type StubRunner struct {
	sem chan struct{}
}

// NewStubRunner builds a StubRunner that executes at most concurrency
// tasks at once.
func NewStubRunner(concurrency int) *StubRunner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &StubRunner{sem: make(chan struct{}, concurrency)}
}

func (r *StubRunner) Run(ctx context.Context, task types.Task) ([]byte, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	out := make([]byte, len(task.Payload))
	for i, b := range task.Payload {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return out, nil
}
