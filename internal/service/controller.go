package service

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/atikulmunna/moor/internal/access"
	"github.com/atikulmunna/moor/internal/cache"
	"github.com/atikulmunna/moor/internal/compose"
	"github.com/atikulmunna/moor/internal/hub"
	"github.com/atikulmunna/moor/internal/model"
	"github.com/atikulmunna/moor/internal/parser"
	"github.com/atikulmunna/moor/internal/tailer"
)

// DefaultBufferSize bounds the in-memory log buffer per service.
const DefaultBufferSize = 2000

// Controller owns one service group for the lifetime of the control plane:
// its bounded log buffer, its tailer (when one is attached), and the
// execution of start/stop/exec against the external tool.
//
// Locking: mu guards buffer and tail. Record delivery from the tailer
// goroutine publishes on events while holding mu, so subscriber replay and
// live attach in Subscribe are gap-free. Controller methods never call into
// an attached tailer while holding mu.
type Controller struct {
	name     string
	keys     []access.Key
	runner   compose.Runner
	store    *cache.Store
	commands Commands
	capacity int
	subNames []string
	events   *hub.Hub[model.LogRecord]

	mu     sync.Mutex
	buffer []model.LogRecord
	tail   *tailer.Tailer
}

// ControllerConfig carries everything a Controller needs at construction.
type ControllerConfig struct {
	Name       string
	Keys       []access.Key
	Runner     compose.Runner
	Store      *cache.Store // optional; nil disables persistence
	Commands   Commands
	BufferSize int // 0 means DefaultBufferSize
}

// NewController builds a controller and discovers the service's sub-services
// by querying the external tool once. Discovery failure is tolerated (the
// group may simply not exist yet); the sub-service list stays empty.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	c := &Controller{
		name:     cfg.Name,
		keys:     cfg.Keys,
		runner:   cfg.Runner,
		store:    cfg.Store,
		commands: cfg.Commands,
		capacity: cfg.BufferSize,
		events:   hub.New[model.LogRecord](),
	}

	subs, err := cfg.Runner.SubServices()
	if err != nil {
		log.Printf("service %s: sub-service discovery failed: %v", c.name, err)
	}
	c.subNames = subs

	return c
}

// Name returns the unique service name.
func (c *Controller) Name() string { return c.name }

// Keys returns the service's access keys. Empty means public.
func (c *Controller) Keys() []access.Key { return c.keys }

// SubServices returns the sub-service names discovered at construction.
func (c *Controller) SubServices() []string { return c.subNames }

// Commands returns the service's execution policy.
func (c *Controller) Commands() Commands { return c.commands }

// Start brings the service group up and attaches a fresh tailer. System
// marker records bracket the start in the stream so observers see an
// unambiguous boundary.
func (c *Controller) Start() error {
	c.AddSystemLine("\nservice starting\n")

	if err := c.runner.Start(); err != nil {
		c.AddSystemLine(fmt.Sprintf("start failed: %v", err))
		return fmt.Errorf("start %s: %w", c.name, err)
	}

	if err := c.attach(); err != nil {
		return fmt.Errorf("start %s: %w", c.name, err)
	}
	return nil
}

// Stop tears the service group down and detaches the tailer. Idempotent:
// stopping a stopped service is a no-op beyond invoking the external tool.
func (c *Controller) Stop() error {
	err := c.runner.Stop()

	c.mu.Lock()
	t := c.tail
	c.tail = nil
	c.mu.Unlock()
	if t != nil {
		t.Stop()
	}

	if err != nil {
		c.AddSystemLine(fmt.Sprintf("stop failed: %v", err))
		return fmt.Errorf("stop %s: %w", c.name, err)
	}
	return nil
}

// PollRunning queries the external tool for ground truth and reconciles the
// tailer: a group found running without a tailer (started out-of-band, or
// the control plane restarted) gets one attached, with the on-disk cache
// restored as the initial buffer; a group found stopped with a tailer still
// attached gets it detached. Runs before every externally observable status
// or log read.
func (c *Controller) PollRunning() (bool, error) {
	running, err := c.runner.Running()
	if err != nil {
		return false, fmt.Errorf("status %s: %w", c.name, err)
	}

	c.mu.Lock()
	attached := c.tail != nil
	empty := len(c.buffer) == 0
	c.mu.Unlock()

	switch {
	case running && !attached:
		if empty {
			c.restoreCache()
			c.seedRecent()
		}
		if err := c.attach(); err != nil {
			return running, err
		}
	case !running && attached:
		c.mu.Lock()
		t := c.tail
		c.tail = nil
		c.mu.Unlock()
		if t != nil {
			t.Stop()
		}
	}

	return running, nil
}

// ExecCommand resolves and runs an ad-hoc command. A non-zero exit of the
// external tool is an outcome (ok=false plus captured output), not an error.
func (c *Controller) ExecCommand(commandID string, extraArgs []string) (bool, string, error) {
	var subService string
	var argv []string

	switch c.commands.Mode {
	case CommandsDisabled:
		return false, "", ErrCommandsDisabled
	case CommandsAny:
		if !c.hasSubService(commandID) {
			return false, "", fmt.Errorf("%w: no sub-service %q", ErrUnknownCommand, commandID)
		}
		subService = commandID
		argv = extraArgs
	case CommandsList:
		cmd, ok := c.commands.Find(commandID)
		if !ok {
			return false, "", fmt.Errorf("%w: %q", ErrUnknownCommand, commandID)
		}
		subService = cmd.SubService
		argv = append(append([]string{}, cmd.Argv...), extraArgs...)
	}

	return c.runner.Exec(subService, argv)
}

// AddSystemLine splits text into lines, timestamps each with the current
// instant, and feeds them through the same path as real records so
// annotations interleave correctly with live output.
func (c *Controller) AddSystemLine(text string) {
	lines := strings.Split(text, "\n")

	c.mu.Lock()
	t := c.tail
	c.mu.Unlock()

	for _, line := range lines {
		rec := model.System(line)
		if t == nil || !t.Inject(rec) {
			c.appendRecord(rec)
		}
	}
}

// Logs returns a point-in-time copy of the buffer.
func (c *Controller) Logs() []model.LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.LogRecord, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// Subscribe registers a record observer, replaying up to replay buffered
// records synchronously before live delivery begins. The returned function
// unsubscribes. Subscriptions survive tailer detach/reattach cycles.
func (c *Controller) Subscribe(fn func(model.LogRecord), replay int) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if replay > 0 {
		start := len(c.buffer) - replay
		if start < 0 {
			start = 0
		}
		for _, rec := range c.buffer[start:] {
			fn(rec)
		}
	}
	return c.events.Subscribe(fn)
}

// SubscriberCount returns the number of registered record observers.
func (c *Controller) SubscriberCount() int {
	return c.events.Len()
}

// attach spawns a log-follow process and wires a new tailer to the buffer.
// A controller holds at most one live tailer: attaching while one is already
// attached is a no-op, so a repeated start can neither orphan the previous
// process nor double-deliver records through a second subscription.
func (c *Controller) attach() error {
	c.mu.Lock()
	attached := c.tail != nil
	c.mu.Unlock()
	if attached {
		return nil
	}

	proc, err := c.runner.LogProcess()
	if err != nil {
		return fmt.Errorf("attach tailer: %w", err)
	}

	t := tailer.New(proc, c.capacity)
	t.OnRecord(c.appendRecord, 0)
	t.OnClose(func() { c.detach(t) })

	c.mu.Lock()
	if c.tail != nil {
		// Lost the race to a concurrent attach; discard ours.
		c.mu.Unlock()
		t.Stop()
		return nil
	}
	c.tail = t
	c.mu.Unlock()

	t.Start()
	return nil
}

// detach clears the tailer reference if it still points at t. Invoked from
// the tailer's close callback when the log process dies underneath us.
func (c *Controller) detach(t *tailer.Tailer) {
	c.mu.Lock()
	if c.tail == t {
		c.tail = nil
	}
	c.mu.Unlock()
}

// appendRecord adds a record to the bounded buffer (FIFO eviction), notifies
// subscribers, and persists the buffer. Publish happens under mu so that
// Subscribe's replay cannot miss or duplicate a concurrent delivery; the
// cache write happens outside it.
func (c *Controller) appendRecord(rec model.LogRecord) {
	c.mu.Lock()
	c.buffer = append(c.buffer, rec)
	if len(c.buffer) > c.capacity {
		c.buffer = c.buffer[len(c.buffer)-c.capacity:]
	}
	snapshot := make([]model.LogRecord, len(c.buffer))
	copy(snapshot, c.buffer)
	c.events.Publish(rec)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(c.name, snapshot); err != nil {
			log.Printf("service %s: cache save failed: %v", c.name, err)
		}
	}
}

// restoreCache replaces an empty buffer with the persisted one.
func (c *Controller) restoreCache() {
	if c.store == nil {
		return
	}
	cached, err := c.store.Load(c.name)
	if err != nil {
		log.Printf("service %s: cache load failed: %v", c.name, err)
		return
	}
	if len(cached) == 0 {
		return
	}

	c.mu.Lock()
	if len(c.buffer) == 0 {
		if len(cached) > c.capacity {
			cached = cached[len(cached)-c.capacity:]
		}
		c.buffer = cached
	}
	c.mu.Unlock()
}

// seedRecent fills a still-empty buffer from a one-shot log read, so
// observers of a group started out-of-band see history immediately even when
// no cache survives.
func (c *Controller) seedRecent() {
	c.mu.Lock()
	empty := len(c.buffer) == 0
	c.mu.Unlock()
	if !empty {
		return
	}

	lines, err := c.runner.RecentLogs(c.capacity)
	if err != nil {
		log.Printf("service %s: recent log read failed: %v", c.name, err)
		return
	}
	records := parser.ParseLines(strings.Join(lines, "\n"))
	if len(records) == 0 {
		return
	}
	if len(records) > c.capacity {
		records = records[len(records)-c.capacity:]
	}

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.buffer = records
	}
	c.mu.Unlock()
}

func (c *Controller) hasSubService(name string) bool {
	for _, s := range c.subNames {
		if s == name {
			return true
		}
	}
	return false
}
