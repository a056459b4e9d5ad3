package drone

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// sample is one CPU/mem reading, normalized to the 0.0-1.0 range the wire
// protocol expects (gopsutil reports 0-100).
type sample struct {
	cpu float32
	mem float32
}

func readSample(ctx context.Context) (sample, error) {
	cpuPct, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
	if err != nil {
		return sample{}, err
	}
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sample{}, err
	}
	var cpuVal float32
	if len(cpuPct) > 0 {
		cpuVal = float32(cpuPct[0] / 100)
	}
	return sample{cpu: cpuVal, mem: float32(v.UsedPercent / 100)}, nil
}
