package metrics

import (
	"time"

	"github.com/commissaire/commissaire/pkg/kv"
	"github.com/commissaire/commissaire/pkg/models"
)

// Collector periodically polls the KV store and republishes the derived
// gauges (host counts by status, cluster count) that the HTTP layer
// doesn't update on every write.
type Collector struct {
	store  kv.Store
	stopCh chan struct{}
}

// NewCollector creates a metrics collector reading from store.
func NewCollector(store kv.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins the collection loop.
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

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectHostMetrics()
	c.collectClusterMetrics()
}

func (c *Collector) collectHostMetrics() {
	entries, err := c.store.GetDir(models.HostsDir)
	if err != nil {
		return
	}

	counts := map[models.HostStatus]int{
		models.HostInvestigating: 0,
		models.HostBootstrapping: 0,
		models.HostActive:        0,
		models.HostInactive:      0,
		models.HostFailed:        0,
		models.HostDisassociated: 0,
	}
	for _, entry := range entries {
		if entry.Value == nil {
			continue
		}
		host, err := models.HostFromJSON(entry.Value)
		if err != nil {
			continue
		}
		counts[host.Status]++
	}

	for status, count := range counts {
		HostsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectClusterMetrics() {
	entries, err := c.store.GetDir(models.ClustersDir)
	if err != nil {
		ClustersTotal.Set(0)
		return
	}

	total := 0
	for _, entry := range entries {
		if entry.Value != nil {
			total++
		}
	}
	ClustersTotal.Set(float64(total))
}
