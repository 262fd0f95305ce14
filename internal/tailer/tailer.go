package tailer

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/atikulmunna/moor/internal/hub"
	"github.com/atikulmunna/moor/internal/model"
	"github.com/atikulmunna/moor/internal/parser"
)

// Process is the handle to a running log-follow process. The compose adapter
// provides the real implementation; tests can drive the read loop with a
// fake backed by a pipe.
type Process interface {
	// Stdout is the stream the read loop consumes.
	Stdout() io.Reader
	// Kill forcibly terminates the process.
	Kill() error
	// Exited reports whether the process has terminated.
	Exited() bool
}

// eofRetryDelay is how long the read loop waits before retrying after a
// spurious EOF while the process is still alive.
const eofRetryDelay = 50 * time.Millisecond

// Tailer consumes a process's standard output line by line on its own
// goroutine, parses each line, and publishes the resulting records. A Tailer
// is Active from Start until the process exits or Stop is called; it never
// reactivates — construct a fresh Tailer to resume tailing.
//
// Construction is two-phase: New builds the Tailer, Start launches the read
// loop. Nothing is delivered before Start.
type Tailer struct {
	proc     Process
	capacity int

	records *hub.Hub[model.LogRecord]

	mu      sync.Mutex
	recent  []model.LogRecord // last records kept for subscriber replay
	onClose []func()
	closed  bool
}

// New creates a Tailer for an already-spawned process. capacity bounds the
// record history kept for replay to late subscribers.
func New(proc Process, capacity int) *Tailer {
	return &Tailer{
		proc:     proc,
		capacity: capacity,
		records:  hub.New[model.LogRecord](),
	}
}

// Start launches the background read loop.
func (t *Tailer) Start() {
	go t.readLoop()
}

// OnRecord registers a record observer and returns its unsubscribe function.
// If replay > 0, up to that many of the most recent records are delivered to
// the callback synchronously before it is attached to the live feed, so the
// subscriber never misses a record published in between.
func (t *Tailer) OnRecord(fn func(model.LogRecord), replay int) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if replay > 0 {
		start := len(t.recent) - replay
		if start < 0 {
			start = 0
		}
		for _, rec := range t.recent[start:] {
			fn(rec)
		}
	}
	return t.records.Subscribe(fn)
}

// OnClose registers a callback invoked exactly once when the tailer closes,
// whether by Stop or by the process exiting on its own. Registering on an
// already-closed tailer invokes the callback immediately.
func (t *Tailer) OnClose(fn func()) (unsubscribe func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.onClose = append(t.onClose, fn)
	i := len(t.onClose) - 1
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if i < len(t.onClose) {
			t.onClose[i] = nil
		}
	}
}

// Inject publishes a synthetic record without requiring process output.
// Used for system-sourced operator annotations. Reports whether the record
// was delivered; a closed tailer delivers nothing, and the caller must route
// the record elsewhere.
func (t *Tailer) Inject(rec model.LogRecord) bool {
	return t.deliver(rec)
}

// Stop kills the underlying process and closes the tailer. Safe to call more
// than once; close callbacks run exactly once.
func (t *Tailer) Stop() {
	_ = t.proc.Kill()
	t.close()
}

// Closed reports whether the tailer has transitioned to its terminal state.
func (t *Tailer) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// deliver appends a record to the replay history and publishes it. History
// mutation and publish happen under one lock so that OnRecord's replay and
// live attach are gap-free with respect to concurrent deliveries. Reports
// false once the tailer is closed.
func (t *Tailer) deliver(rec model.LogRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.recent = append(t.recent, rec)
	if t.capacity > 0 && len(t.recent) > t.capacity {
		t.recent = t.recent[len(t.recent)-t.capacity:]
	}
	t.records.Publish(rec)
	return true
}

// readLoop reads stdout one line at a time until the stream ends and the
// process has exited. A read that returns EOF while the process is still
// alive is retried, not treated as closure.
func (t *Tailer) readLoop() {
	r := bufio.NewReader(t.proc.Stdout())
	for {
		line, err := r.ReadString('\n')

		if trimmed := strings.TrimRight(line, " \t\r\n"); trimmed != "" {
			if rec, ok := parser.Parse(trimmed); ok {
				t.deliver(rec)
			}
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && !t.proc.Exited() {
			time.Sleep(eofRetryDelay)
			continue
		}
		break
	}
	t.close()
}

// close transitions to Closed once and fires the close callbacks outside the
// lock.
func (t *Tailer) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		if fn != nil {
			fn()
		}
	}
}
