// Package compose wraps the docker compose CLI for one service group. All
// blocking process I/O in moor funnels through this package.
package compose

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/atikulmunna/moor/internal/tailer"
)

// Runner is the adapter contract the service controller drives. The CLI
// implementation shells out to docker compose; tests substitute a fake.
type Runner interface {
	// Start brings the service group up in detached mode.
	Start() error
	// Stop tears the service group down.
	Stop() error
	// Running reports whether any sub-service is currently running.
	Running() (bool, error)
	// SubServices lists the sub-service names defined by the compose file.
	SubServices() ([]string, error)
	// RecentLogs returns up to tail raw, timestamped log lines.
	RecentLogs(tail int) ([]string, error)
	// LogProcess spawns a follow-mode log process for the tailer.
	LogProcess() (tailer.Process, error)
	// Exec runs argv inside the given sub-service. A non-zero exit is
	// reported via ok=false with the combined output, not via err.
	Exec(subService string, argv []string) (ok bool, output string, err error)
}

// CLI runs docker compose against a single compose file.
type CLI struct {
	Dir         string // working directory of the service group
	ComposeFile string // compose file name, relative to Dir
}

// NewCLI creates a CLI runner for the given service directory and compose
// file name.
func NewCLI(dir, composeFile string) *CLI {
	return &CLI{Dir: dir, ComposeFile: composeFile}
}

func (c *CLI) command(args ...string) *exec.Cmd {
	full := append([]string{"compose", "-f", filepath.Join(c.Dir, c.ComposeFile)}, args...)
	cmd := exec.Command("docker", full...)
	cmd.Dir = c.Dir
	return cmd
}

// Start runs `docker compose up -d`.
func (c *CLI) Start() error {
	out, err := c.command("up", "-d").CombinedOutput()
	if err != nil {
		return fmt.Errorf("compose up: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Stop runs `docker compose down`.
func (c *CLI) Stop() error {
	out, err := c.command("down").CombinedOutput()
	if err != nil {
		return fmt.Errorf("compose down: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Running reports whether `docker compose ps` lists any running sub-service.
func (c *CLI) Running() (bool, error) {
	out, err := c.command("ps", "--services", "--filter", "status=running").Output()
	if err != nil {
		return false, fmt.Errorf("compose ps: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// SubServices lists the sub-services defined by the compose file, running or
// not.
func (c *CLI) SubServices() ([]string, error) {
	out, err := c.command("config", "--services").Output()
	if err != nil {
		return nil, fmt.Errorf("compose config: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// RecentLogs returns the last tail timestamped log lines across all
// sub-services.
func (c *CLI) RecentLogs(tail int) ([]string, error) {
	out, err := c.command("logs", "--tail="+strconv.Itoa(tail), "-t").Output()
	if err != nil {
		return nil, fmt.Errorf("compose logs: %w", err)
	}
	return strings.Split(string(out), "\n"), nil
}

// LogProcess spawns `docker compose logs -f` and returns a handle suitable
// for the tailer. The process is already started on return.
func (c *CLI) LogProcess() (tailer.Process, error) {
	cmd := c.command("logs", "-f", "--tail=0", "-t")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("compose logs pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("compose logs start: %w", err)
	}

	p := &logProcess{cmd: cmd, stdout: stdout}
	go p.wait()
	return p, nil
}

// Exec runs `docker compose exec <sub-service> argv...`. A non-zero exit
// from the command is an outcome, not an error.
func (c *CLI) Exec(subService string, argv []string) (bool, string, error) {
	args := append([]string{"exec", "-T", subService}, argv...)
	out, err := c.command(args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, string(out), nil
		}
		return false, string(out), fmt.Errorf("compose exec: %w", err)
	}
	return true, string(out), nil
}

// logProcess adapts an exec.Cmd to tailer.Process. Exit state is tracked by
// a dedicated Wait goroutine because ProcessState is only populated after
// Wait returns.
type logProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu     sync.Mutex
	exited bool
}

func (p *logProcess) Stdout() io.Reader { return p.stdout }

func (p *logProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *logProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *logProcess) wait() {
	_ = p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
}
