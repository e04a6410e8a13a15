package metrics

import (
	"strconv"
	"time"

	"github.com/lsst/qserv-replica/pkg/config"
)

// Collector periodically samples the configuration store and publishes
// gauge metrics derived from its current contents.
type Collector struct {
	store  config.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store config.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
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
	c.collectWorkerMetrics()
	c.collectDatabaseMetrics()
}

func (c *Collector) collectWorkerMetrics() {
	counts := map[[2]bool]int{}
	for _, w := range c.store.AllWorkers() {
		counts[[2]bool{w.IsEnabled, w.IsReadOnly}]++
	}
	for key, count := range counts {
		WorkersTotal.WithLabelValues(strconv.FormatBool(key[0]), strconv.FormatBool(key[1])).Set(float64(count))
	}
}

func (c *Collector) collectDatabaseMetrics() {
	counts := map[[2]string]int{}
	for _, family := range c.store.Families() {
		for _, name := range c.store.Databases(family) {
			db, err := c.store.Database(name)
			if err != nil {
				continue
			}
			key := [2]string{family, strconv.FormatBool(db.IsPublished)}
			counts[key]++
		}
	}
	for key, count := range counts {
		DatabasesTotal.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}
