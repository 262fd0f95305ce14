package service

import (
	"fmt"
	"sort"

	"github.com/atikulmunna/moor/internal/access"
	"github.com/atikulmunna/moor/internal/model"
)

// Info is the caller-visible description of one service, with the scope set
// the caller's token holds on it.
type Info struct {
	Name        string         `json:"name"`
	Scopes      []access.Scope `json:"scopes"`
	Running     bool           `json:"running"`
	SubServices []string       `json:"sub_services"`
	Commands    []Command      `json:"commands,omitempty"`
	AnyCommand  bool           `json:"any_command"`
}

// Manager is the explicit registry of controllers owned by the control
// plane. Every caller-facing operation is checked against the access model
// before any process or buffer mutation occurs. The registry itself is
// immutable after construction; all mutable state lives in the controllers.
type Manager struct {
	controllers map[string]*Controller
}

// NewManager builds a manager over the given controllers and runs one
// reconciliation pass per service so groups already running under the
// external tool get tailers attached and their cached history restored.
func NewManager(controllers []*Controller) *Manager {
	m := &Manager{controllers: make(map[string]*Controller, len(controllers))}
	for _, c := range controllers {
		m.controllers[c.Name()] = c
		if _, err := c.PollRunning(); err != nil {
			// The group may not exist yet; the next poll retries.
			continue
		}
	}
	return m
}

// Services lists every configured service together with the scopes the token
// holds on it. Listing requires no scope; enforcement happens per operation.
func (m *Manager) Services(token string) []Info {
	names := make([]string, 0, len(m.controllers))
	for name := range m.controllers {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		c := m.controllers[name]
		running, _ := c.PollRunning()
		infos = append(infos, Info{
			Name:        name,
			Scopes:      access.AllowedScopes(token, c.Keys()),
			Running:     running,
			SubServices: c.SubServices(),
			Commands:    c.Commands().List,
			AnyCommand:  c.Commands().Mode == CommandsAny,
		})
	}
	return infos
}

// Status reports whether the service group is running.
func (m *Manager) Status(token, name string) (bool, error) {
	c, err := m.authorized(token, name, access.ScopeStatus)
	if err != nil {
		return false, err
	}
	return c.PollRunning()
}

// Start brings a service group up.
func (m *Manager) Start(token, name string) error {
	c, err := m.authorized(token, name, access.ScopeStartStop)
	if err != nil {
		return err
	}
	return c.Start()
}

// Stop tears a service group down.
func (m *Manager) Stop(token, name string) error {
	c, err := m.authorized(token, name, access.ScopeStartStop)
	if err != nil {
		return err
	}
	return c.Stop()
}

// Logs returns a point-in-time copy of the service's log buffer, after
// reconciling tailer state against the external tool.
func (m *Manager) Logs(token, name string) ([]model.LogRecord, error) {
	c, err := m.authorized(token, name, access.ScopeLogs)
	if err != nil {
		return nil, err
	}
	if _, err := c.PollRunning(); err != nil {
		return nil, err
	}
	return c.Logs(), nil
}

// RunCommand executes a configured (or, in any-command mode, free-form)
// command against the service.
func (m *Manager) RunCommand(token, name, commandID string, args []string) (bool, string, error) {
	c, err := m.authorized(token, name, access.ScopeCommands)
	if err != nil {
		return false, "", err
	}
	return c.ExecCommand(commandID, args)
}

// SubscribeLogs attaches a live record observer, replaying up to replay
// buffered records first. The callback must be non-blocking; it is invoked
// from the service's delivery path.
func (m *Manager) SubscribeLogs(token, name string, fn func(model.LogRecord), replay int) (unsubscribe func(), err error) {
	c, err := m.authorized(token, name, access.ScopeLogs)
	if err != nil {
		return nil, err
	}
	if _, err := c.PollRunning(); err != nil {
		return nil, err
	}
	return c.Subscribe(fn, replay), nil
}

// AddSystemLine injects an operator annotation into a service's stream.
func (m *Manager) AddSystemLine(token, name, text string) error {
	c, err := m.authorized(token, name, access.ScopeLogs)
	if err != nil {
		return err
	}
	c.AddSystemLine(text)
	return nil
}

// Controller exposes a controller by name for in-process callers (the tail
// command, stats wiring). Transport callers go through the gated operations.
func (m *Manager) Controller(name string) (*Controller, bool) {
	c, ok := m.controllers[name]
	return c, ok
}

// Names returns all service names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.controllers))
	for name := range m.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) authorized(token, name string, scope access.Scope) (*Controller, error) {
	c, ok := m.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	if err := access.Authorize(token, c.Keys(), scope); err != nil {
		return nil, err
	}
	return c, nil
}
