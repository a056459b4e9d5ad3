package metrics

import (
	"time"

	"github.com/hiveswarm/hive/pkg/types"
)

// Registry is the minimal view of pkg/registry.Registry the collector
// needs, kept as an interface so metrics never imports registry directly.
type Registry interface {
	ListActive() []types.Worker
	ListBackup() []types.Worker
}

// Collector periodically snapshots registry population into gauges.
type Collector struct {
	registry Registry
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector over the given registry.
func NewCollector(reg Registry) *Collector {
	return &Collector{
		registry: reg,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	active := c.registry.ListActive()
	backup := c.registry.ListBackup()

	ActivePoolSize.Set(float64(len(active)))
	BackupPoolSize.Set(float64(len(backup)))

	counts := make(map[string]int)
	for _, w := range active {
		counts[w.Health.String()]++
	}
	for _, w := range backup {
		counts[w.Health.String()]++
	}
	for health, n := range counts {
		WorkersTotal.WithLabelValues(health).Set(float64(n))
	}
}
