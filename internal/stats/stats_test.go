package stats

import (
	"testing"

	"github.com/atikulmunna/moor/internal/model"
	"github.com/atikulmunna/moor/internal/service"
	"github.com/atikulmunna/moor/internal/tailer"
)

// idleRunner satisfies compose.Runner for a group that never runs.
type idleRunner struct{}

func (idleRunner) Start() error { return nil }
func (idleRunner) Stop() error { return nil }
func (idleRunner) Running() (bool, error) { return false, nil }
func (idleRunner) SubServices() ([]string, error) { return nil, nil }
func (idleRunner) RecentLogs(int) ([]string, error) { return nil, nil }
func (idleRunner) LogProcess() (tailer.Process, error) { return nil, nil }
func (idleRunner) Exec(string, []string) (bool, string, error) { return false, "", nil }

func newWatchedController(name string, col *Collector) *service.Controller {
	c := service.NewController(service.ControllerConfig{Name: name, Runner: idleRunner{}})
	col.Watch(c)
	return c
}

func TestCollectorCountsRecords(t *testing.T) {
	col := New()
	c := newWatchedController("api", col)

	c.AddSystemLine("one")
	c.AddSystemLine("two")

	snap := col.Snapshot()
	if snap.TotalRecords != 2 {
		t.Fatalf("expected 2 total records, got %d", snap.TotalRecords)
	}

	svc, ok := snap.Services["api"]
	if !ok {
		t.Fatal("expected stats entry for api")
	}
	if svc.TotalRecords != 2 {
		t.Errorf("expected 2 service records, got %d", svc.TotalRecords)
	}
	if svc.SystemRecords != 2 {
		t.Errorf("expected 2 system records, got %d", svc.SystemRecords)
	}
}

func TestCollectorTracksMultipleServices(t *testing.T) {
	col := New()
	api := newWatchedController("api", col)
	db := newWatchedController("db", col)

	api.AddSystemLine("a")
	db.AddSystemLine("b")
	db.AddSystemLine("c")

	snap := col.Snapshot()
	if snap.TotalRecords != 3 {
		t.Fatalf("expected 3 total records, got %d", snap.TotalRecords)
	}
	if got := snap.Services["api"].TotalRecords; got != 1 {
		t.Errorf("api: expected 1 record, got %d", got)
	}
	if got := snap.Services["db"].TotalRecords; got != 2 {
		t.Errorf("db: expected 2 records, got %d", got)
	}
}

func TestCollectorExcludesOwnSubscription(t *testing.T) {
	col := New()
	c := newWatchedController("api", col)

	snap := col.Snapshot()
	if got := snap.Services["api"].Subscribers; got != 0 {
		t.Fatalf("expected 0 external subscribers, got %d", got)
	}

	unsubscribe := c.Subscribe(func(model.LogRecord) {}, 0)
	defer unsubscribe()

	snap = col.Snapshot()
	if got := snap.Services["api"].Subscribers; got != 1 {
		t.Fatalf("expected 1 external subscriber, got %d", got)
	}
}

func TestCollectorRPSReflectsRecentRecords(t *testing.T) {
	col := New()
	c := newWatchedController("api", col)

	for i := 0; i < 10; i++ {
		c.AddSystemLine("burst")
	}

	snap := col.Snapshot()
	if snap.RPS <= 0 {
		t.Fatalf("expected positive RPS after a burst, got %f", snap.RPS)
	}
}

func TestCollectorPrune(t *testing.T) {
	col := New()
	c := newWatchedController("api", col)

	c.AddSystemLine("old")
	// Nothing in the window is older than the cutoff yet, so prune keeps it.
	col.prune()

	if len(col.window) != 1 {
		t.Fatalf("expected 1 window entry after prune, got %d", len(col.window))
	}
}

func TestCollectorUptimeIsSet(t *testing.T) {
	col := New()
	if col.Snapshot().Uptime == "" {
		t.Fatal("expected a non-empty uptime")
	}
}
