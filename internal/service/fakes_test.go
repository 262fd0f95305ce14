package service

import (
	"errors"
	"io"
	"sync"

	"github.com/atikulmunna/moor/internal/tailer"
)

// fakeProcess stands in for a compose log-follow process.
type fakeProcess struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	exited bool
	killed bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{r: r, w: w}
}

func (p *fakeProcess) Stdout() io.Reader { return p.r }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.exited = true
	p.mu.Unlock()
	p.w.Close()
	return nil
}

func (p *fakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProcess) emit(line string) {
	_, _ = io.WriteString(p.w, line+"\n")
}

// exit simulates the process terminating on its own.
func (p *fakeProcess) exit() {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
	p.w.Close()
}

type execCall struct {
	subService string
	argv       []string
}

// fakeRunner is an in-memory compose.Runner.
type fakeRunner struct {
	mu          sync.Mutex
	running     bool
	subServices []string
	recentLines []string

	startErr error
	stopErr  error
	execOK   bool
	execOut  string
	execErr  error

	startCalls int
	stopCalls  int
	execCalls  []execCall
	procs      []*fakeProcess
}

func (r *fakeRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	if r.startErr != nil {
		return r.startErr
	}
	r.running = true
	return nil
}

func (r *fakeRunner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	if r.stopErr != nil {
		return r.stopErr
	}
	r.running = false
	return nil
}

func (r *fakeRunner) Running() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, nil
}

func (r *fakeRunner) setRunning(v bool) {
	r.mu.Lock()
	r.running = v
	r.mu.Unlock()
}

func (r *fakeRunner) SubServices() ([]string, error) {
	return r.subServices, nil
}

func (r *fakeRunner) RecentLogs(tail int) ([]string, error) {
	return r.recentLines, nil
}

func (r *fakeRunner) LogProcess() (tailer.Process, error) {
	proc := newFakeProcess()
	r.mu.Lock()
	r.procs = append(r.procs, proc)
	r.mu.Unlock()
	return proc, nil
}

func (r *fakeRunner) Exec(subService string, argv []string) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execCalls = append(r.execCalls, execCall{subService: subService, argv: argv})
	if r.execErr != nil {
		return false, "", r.execErr
	}
	return r.execOK, r.execOut, nil
}

func (r *fakeRunner) lastProc() *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.procs) == 0 {
		return nil
	}
	return r.procs[len(r.procs)-1]
}

func (r *fakeRunner) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls, r.stopCalls
}

func (r *fakeRunner) procCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

var errToolBroken = errors.New("compose exploded")
