package stats

import (
	"context"
	"sync"
	"time"

	"github.com/atikulmunna/moor/internal/model"
	"github.com/atikulmunna/moor/internal/service"
)

// window length for the records-per-second calculation.
const rpsWindow = 5 * time.Second

// ServiceStats is the per-service slice of a snapshot.
type ServiceStats struct {
	TotalRecords  int64 `json:"total_records"`
	SystemRecords int64 `json:"system_records"`
	Subscribers   int   `json:"subscribers"`
}

// Stats holds a point-in-time snapshot of control-plane metrics.
type Stats struct {
	Uptime       string                  `json:"uptime"`
	TotalRecords int64                   `json:"total_records"`
	RPS          float64                 `json:"rps"`
	Services     map[string]ServiceStats `json:"services"`
}

// Collector observes every service's record stream and computes
// time-windowed metrics for the stats and health endpoints.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	total     int64
	perTotal  map[string]int64
	perSystem map[string]int64
	window    []time.Time

	controllers map[string]*service.Controller
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{
		startTime:   time.Now(),
		perTotal:    make(map[string]int64),
		perSystem:   make(map[string]int64),
		controllers: make(map[string]*service.Controller),
	}
}

// Watch subscribes the collector to a controller's record stream.
func (col *Collector) Watch(c *service.Controller) {
	name := c.Name()
	col.mu.Lock()
	col.controllers[name] = c
	col.mu.Unlock()

	c.Subscribe(func(rec model.LogRecord) { col.record(name, rec) }, 0)
}

// Snapshot returns the current metrics.
func (col *Collector) Snapshot() Stats {
	col.mu.Lock()
	defer col.mu.Unlock()

	cutoff := time.Now().Add(-rpsWindow)
	var recent int
	for _, t := range col.window {
		if t.After(cutoff) {
			recent++
		}
	}

	services := make(map[string]ServiceStats, len(col.controllers))
	for name, c := range col.controllers {
		// The collector's own subscription does not count as an observer.
		subs := c.SubscriberCount() - 1
		if subs < 0 {
			subs = 0
		}
		services[name] = ServiceStats{
			TotalRecords:  col.perTotal[name],
			SystemRecords: col.perSystem[name],
			Subscribers:   subs,
		}
	}

	return Stats{
		Uptime:       time.Since(col.startTime).Truncate(time.Second).String(),
		TotalRecords: col.total,
		RPS:          float64(recent) / rpsWindow.Seconds(),
		Services:     services,
	}
}

// Start periodically prunes the sliding window. Blocks until the context is
// cancelled.
func (col *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			col.prune()
		}
	}
}

func (col *Collector) record(name string, rec model.LogRecord) {
	col.mu.Lock()
	defer col.mu.Unlock()

	col.total++
	col.perTotal[name]++
	if rec.Source == model.SystemSource {
		col.perSystem[name]++
	}
	col.window = append(col.window, time.Now())
}

// prune removes window timestamps older than the RPS window.
func (col *Collector) prune() {
	col.mu.Lock()
	defer col.mu.Unlock()

	cutoff := time.Now().Add(-rpsWindow)
	i := 0
	for _, t := range col.window {
		if t.After(cutoff) {
			col.window[i] = t
			i++
		}
	}
	col.window = col.window[:i]
}
