package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atikulmunna/moor/internal/access"
	"github.com/atikulmunna/moor/internal/model"
	"github.com/atikulmunna/moor/internal/service"
	"github.com/atikulmunna/moor/internal/stats"
	"github.com/atikulmunna/moor/internal/tailer"
)

// stubRunner satisfies compose.Runner without any external tool.
type stubRunner struct {
	running     bool
	subServices []string
	execOK      bool
	execOut     string
	startCalls  int
}

func (r *stubRunner) Start() error {
	r.startCalls++
	r.running = true
	return nil
}

func (r *stubRunner) Stop() error {
	r.running = false
	return nil
}

func (r *stubRunner) Running() (bool, error)           { return r.running, nil }
func (r *stubRunner) SubServices() ([]string, error)   { return r.subServices, nil }
func (r *stubRunner) RecentLogs(int) ([]string, error) { return nil, nil }

func (r *stubRunner) LogProcess() (tailer.Process, error) {
	return stubProcess{}, nil
}

func (r *stubRunner) Exec(subService string, argv []string) (bool, string, error) {
	return r.execOK, r.execOut, nil
}

// stubProcess is a log process that never produces output.
type stubProcess struct{}

func (stubProcess) Stdout() io.Reader { return emptyReader{} }
func (stubProcess) Kill() error       { return nil }
func (stubProcess) Exited() bool      { return true }

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

func newTestServer(t *testing.T) (*Server, map[string]*stubRunner) {
	t.Helper()

	runners := map[string]*stubRunner{
		"api": {subServices: []string{"web"}, execOK: true, execOut: "done"},
		"db":  {},
	}

	controllers := []*service.Controller{
		service.NewController(service.ControllerConfig{
			Name:     "api",
			Runner:   runners["api"],
			Commands: service.Commands{Mode: service.CommandsAny},
		}),
		service.NewController(service.ControllerConfig{
			Name:   "db",
			Runner: runners["db"],
			Keys: []access.Key{
				{Value: "viewer", Scopes: []access.Scope{access.ScopeLogs, access.ScopeStatus}},
				{Value: "admin", Scopes: []access.Scope{access.ScopeStartStop}},
			},
		}),
	}

	m := service.NewManager(controllers)
	col := stats.New()
	for _, c := range controllers {
		col.Watch(c)
	}
	return New(m, col, ":0", 100), runners
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["services"])
}

func TestServicesListing(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/services?access_key=viewer", "")
	require.Equal(t, http.StatusOK, w.Code)

	var infos []service.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "api", infos[0].Name)
	assert.Equal(t, "db", infos[1].Name)
	assert.ElementsMatch(t, []access.Scope{access.ScopeLogs, access.ScopeStatus}, infos[1].Scopes)
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/api/status/api", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running": false}`, w.Body.String())

	w = doRequest(t, s, http.MethodGet, "/api/status/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/status/db", "")
	assert.Equal(t, http.StatusForbidden, w.Code, "keyed service rejects missing key")

	w = doRequest(t, s, http.MethodGet, "/api/status/db?access_key=viewer", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartRequiresScope(t *testing.T) {
	s, runners := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/start/db?access_key=viewer", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, runners["db"].startCalls, "denied start must not reach the external tool")

	w = doRequest(t, s, http.MethodPost, "/api/start/db?access_key=admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runners["db"].startCalls)

	w = doRequest(t, s, http.MethodPost, "/api/stop/db?access_key=admin", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccessKeyHeader(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status/db", nil)
	req.Header.Set("X-Access-Key", "viewer")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogsEndpointPlainFormat(t *testing.T) {
	s, _ := newTestServer(t)

	// Seed the buffer through the gated annotation path.
	w := doRequest(t, s, http.MethodGet, "/api/logs/api?plain=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	mgrLogs := func() []model.LogRecord {
		w := doRequest(t, s, http.MethodGet, "/api/logs/api", "")
		require.Equal(t, http.StatusOK, w.Code)
		var records []model.LogRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		return records
	}
	assert.Empty(t, mgrLogs())

	require.NoError(t, s.manager.AddSystemLine("", "api", "hello"))

	records := mgrLogs()
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Message)

	w = doRequest(t, s, http.MethodGet, "/api/logs/api?plain=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	line := strings.TrimSpace(w.Body.String())
	assert.True(t, strings.HasPrefix(line, model.SystemSource+"|"), "plain line is source|timestamp message: %s", line)
	assert.True(t, strings.HasSuffix(line, " hello"), line)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Let the listener come up before cancelling.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server kept running after context cancellation")
	}
}

func TestExecEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/api/exec/api", `{"command":"web","args":["ls"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true, "output": "done"}`, w.Body.String())

	w = doRequest(t, s, http.MethodPost, "/api/exec/api", `{"args":["ls"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "command field is required")

	w = doRequest(t, s, http.MethodPost, "/api/exec/api", `{"command":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown sub-service")

	w = doRequest(t, s, http.MethodPost, "/api/exec/db?access_key=admin", `{"command":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, "commands disabled for this service")
}
