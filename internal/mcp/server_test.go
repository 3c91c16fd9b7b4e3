package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/parker/internal/audit"
	"github.com/HyphaGroup/parker/internal/checker"
	"github.com/HyphaGroup/parker/internal/checkpoint"
	"github.com/HyphaGroup/parker/internal/logger"
	"github.com/HyphaGroup/parker/internal/search"
	"github.com/HyphaGroup/parker/internal/session"
	"github.com/HyphaGroup/parker/internal/store"
)

type fakeSession struct {
	mu       sync.Mutex
	state    session.State
	marker   search.Cursor
	buffered int
}

func (f *fakeSession) Pause(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == session.StatePaused {
		return session.ErrAlreadyPaused
	}
	f.state = session.StatePaused
	return nil
}

func (f *fakeSession) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StatePaused {
		return session.ErrNotPaused
	}
	f.state = session.StateActive
	return nil
}

func (f *fakeSession) Progress(ctx context.Context) (search.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateActive {
		return search.Cursor{}, &session.RejectedError{Reason: "paused"}
	}
	return f.marker, nil
}

func (f *fakeSession) BufferedAmount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered, nil
}

func (f *fakeSession) Info() session.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Info{ID: "sess_test", State: f.state, Ceiling: 600, Capacity: 16}
}

type fakeProgress struct{}

func (fakeProgress) Tested() search.Cursor { return search.Cursor{N: 12, Y: 3, Z: 4} }
func (fakeProgress) Stats() checker.Stats  { return checker.Stats{Batches: 2, Tested: 20} }

type fakeStore struct {
	mu        sync.Mutex
	solutions []*store.Solution
	statuses  []store.RunStatus
	err       error
}

func (f *fakeStore) ListSolutions(runID string) ([]*store.Solution, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.solutions, nil
}

func (f *fakeStore) SetStatus(runID string, status store.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeCheckpoints struct {
	saves int
}

func (f *fakeCheckpoints) SaveNow() (search.Cursor, error) {
	f.saves++
	return search.Cursor{N: 12}, nil
}

func (f *fakeCheckpoints) Status() checkpoint.Status {
	return checkpoint.Status{RunID: "run_test", Cursor: search.Cursor{N: 12}, Saves: f.saves}
}

func newTestServer() (*Server, *fakeSession, *fakeStore, *fakeCheckpoints) {
	sess := &fakeSession{state: session.StateActive, marker: search.Cursor{N: 25, Y: 0, Z: 25}, buffered: 7}
	st := &fakeStore{solutions: []*store.Solution{
		{ID: "sol_1", RunID: "run_test", Triple: search.Triple{X: 625, Y: 0, Z: 336}},
		{ID: "sol_2", RunID: "run_test", Triple: search.Triple{X: 625, Y: 0, Z: 600}},
	}}
	cp := &fakeCheckpoints{}
	s := NewServer(Deps{
		RunID:       "run_test",
		Mode:        "session",
		Ceiling:     600,
		Session:     sess,
		Progress:    fakeProgress{},
		Store:       st,
		Checkpoints: cp,
	})
	return s, sess, st, cp
}

func callTool(t *testing.T, s *Server, name string, args string) (any, error) {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return s.registry.CallTool(context.Background(), name, raw)
}

func TestServer_RegistersTools(t *testing.T) {
	s, _, _, _ := newTestServer()

	want := []string{"search_status", "search_pause", "search_resume", "search_solutions", "search_checkpoint"}
	tools := s.registry.GetAllTools()
	if len(tools) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(want))
	}
	for i, tool := range tools {
		if tool.Name != want[i] {
			t.Errorf("tools[%d] = %s, want %s", i, tool.Name, want[i])
		}
		if tool.InputSchema == nil || tool.InputSchema.Type != "object" {
			t.Errorf("tool %s has no object input schema", tool.Name)
		}
	}
}

func TestHandleStatus(t *testing.T) {
	s, sess, _, _ := newTestServer()

	got, err := callTool(t, s, "search_status", "")
	if err != nil {
		t.Fatalf("search_status error = %v", err)
	}
	res, ok := got.(*StatusResult)
	if !ok {
		t.Fatalf("search_status = %T, want *StatusResult", got)
	}
	if res.RunID != "run_test" || res.Ceiling != 600 {
		t.Errorf("status = %+v, want run_test at ceiling 600", res)
	}
	if res.Tested != (search.Cursor{N: 12, Y: 3, Z: 4}) {
		t.Errorf("Tested = %+v", res.Tested)
	}
	if res.Producer == nil || res.Producer.Buffered != 7 || res.Producer.Marker != sess.marker {
		t.Errorf("Producer = %+v, want marker %+v buffered 7", res.Producer, sess.marker)
	}
	if res.Checkpoint == nil || res.Checkpoint.RunID != "run_test" {
		t.Errorf("Checkpoint = %+v", res.Checkpoint)
	}

	// While paused the producer answers nothing but Resume
	if err := sess.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err = callTool(t, s, "search_status", "")
	if err != nil {
		t.Fatalf("search_status while paused error = %v", err)
	}
	res = got.(*StatusResult)
	if res.Producer != nil {
		t.Errorf("Producer = %+v while paused, want nil", res.Producer)
	}
	if res.Session == nil || res.Session.State != session.StatePaused {
		t.Errorf("Session = %+v, want paused", res.Session)
	}
}

func TestHandlePauseResume(t *testing.T) {
	s, sess, st, _ := newTestServer()

	got, err := callTool(t, s, "search_pause", "")
	if err != nil {
		t.Fatalf("search_pause error = %v", err)
	}
	if res := got.(*ControlResult); res.State != session.StatePaused {
		t.Errorf("search_pause state = %s, want paused", res.State)
	}
	if _, err := callTool(t, s, "search_pause", ""); !errors.Is(err, session.ErrAlreadyPaused) {
		t.Errorf("second search_pause error = %v, want ErrAlreadyPaused", err)
	}

	got, err = callTool(t, s, "search_resume", "")
	if err != nil {
		t.Fatalf("search_resume error = %v", err)
	}
	if res := got.(*ControlResult); res.State != session.StateActive {
		t.Errorf("search_resume state = %s, want active", res.State)
	}
	if _, err := callTool(t, s, "search_resume", ""); !errors.Is(err, session.ErrNotPaused) {
		t.Errorf("second search_resume error = %v, want ErrNotPaused", err)
	}
	if sess.Info().State != session.StateActive {
		t.Errorf("session state = %s, want active", sess.Info().State)
	}

	want := []store.RunStatus{store.RunStatusPaused, store.RunStatusRunning}
	if len(st.statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", st.statuses, want)
	}
	for i := range want {
		if st.statuses[i] != want[i] {
			t.Errorf("statuses[%d] = %s, want %s", i, st.statuses[i], want[i])
		}
	}
}

func TestHandlePauseResume_Audited(t *testing.T) {
	var buf bytes.Buffer
	s := NewServer(Deps{
		RunID:   "run_test",
		Session: &fakeSession{state: session.StateActive},
		Store:   &fakeStore{},
		Audit:   audit.New(true, &buf),
	})

	ctx := context.WithValue(context.Background(), logger.ContextKeyRequestID, "req-9")
	if _, err := s.registry.CallTool(ctx, "search_pause", nil); err != nil {
		t.Fatalf("search_pause error = %v", err)
	}
	if _, err := s.registry.CallTool(ctx, "search_pause", nil); err == nil {
		t.Fatal("second search_pause expected error")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d audit lines, want 2: %s", len(lines), buf.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first["operation"] != "search.pause" || first["success"] != true || first["request_id"] != "req-9" {
		t.Errorf("first audit event = %v", first)
	}
	if first["run_id"] != "run_test" || first["session_id"] != "sess_test" {
		t.Errorf("first audit event ids = %v", first)
	}
	if second["success"] != false {
		t.Errorf("second audit event = %v, want failure", second)
	}
}

func TestToolCall_LogsRunSessionAndTool(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s, _, _, _ := newTestServer()
	if _, err := callTool(t, s, "search_status", ""); err != nil {
		t.Fatalf("search_status error = %v", err)
	}

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if e["msg"] == "tool call" {
			entry = e
		}
	}
	if entry == nil {
		t.Fatalf("no tool call log line in %s", buf.String())
	}
	want := map[string]any{"run_id": "run_test", "session_id": "sess_test", "tool": "search_status", "status": "success"}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("tool call log %s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestHandlePause_SharedMode(t *testing.T) {
	s := NewServer(Deps{RunID: "run_test", Mode: "shared", Store: &fakeStore{}})

	if _, err := callTool(t, s, "search_pause", ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("search_pause error = %v, want ErrNoSession", err)
	}
	if _, err := callTool(t, s, "search_resume", ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("search_resume error = %v, want ErrNoSession", err)
	}
	if _, err := callTool(t, s, "search_checkpoint", ""); !errors.Is(err, ErrNoCheckpointer) {
		t.Errorf("search_checkpoint error = %v, want ErrNoCheckpointer", err)
	}
	got, err := callTool(t, s, "search_status", "")
	if err != nil {
		t.Fatalf("search_status error = %v", err)
	}
	if res := got.(*StatusResult); res.Session != nil || res.Producer != nil {
		t.Errorf("shared-mode status = %+v, want no session", res)
	}
}

func TestHandleSolutions(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    int
		wantErr bool
	}{
		{"all", "", 2, false},
		{"limit", `{"limit":1}`, 1, false},
		{"limit above count", `{"limit":10}`, 2, false},
		{"negative", `{"limit":-1}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, _ := newTestServer()
			got, err := callTool(t, s, "search_solutions", tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("search_solutions error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			res := got.(*SolutionsResult)
			if res.Count != tt.want || len(res.Solutions) != tt.want {
				t.Errorf("search_solutions count = %d, want %d", res.Count, tt.want)
			}
		})
	}
}

func TestHandleSolutions_Empty(t *testing.T) {
	s := NewServer(Deps{RunID: "run_test", Store: &fakeStore{}})

	got, err := callTool(t, s, "search_solutions", "")
	if err != nil {
		t.Fatalf("search_solutions error = %v", err)
	}
	res := got.(*SolutionsResult)
	if res.Solutions == nil || res.Count != 0 {
		t.Errorf("search_solutions = %+v, want empty non-nil list", res)
	}
}

func TestHandleCheckpoint(t *testing.T) {
	s, _, _, cp := newTestServer()

	got, err := callTool(t, s, "search_checkpoint", "")
	if err != nil {
		t.Fatalf("search_checkpoint error = %v", err)
	}
	status := got.(*checkpoint.Status)
	if status.Saves != 1 || cp.saves != 1 {
		t.Errorf("search_checkpoint saves = %d, want 1", status.Saves)
	}
}

func TestHandler_Health(t *testing.T) {
	s, _, _, _ := newTestServer()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("/health status = %q, want ok", body["status"])
	}
}

func TestHandler_Metrics(t *testing.T) {
	s, _, _, _ := newTestServer()
	if _, err := callTool(t, s, "search_status", ""); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "parker_tool_calls_total") {
		t.Error("/metrics is missing parker_tool_calls_total")
	}
}

func TestHandler_RequestID(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if got := rec.Header().Get("X-Request-ID"); len(got) != 16 {
		t.Errorf("generated X-Request-ID = %q, want 16 hex chars", got)
	}
}

func TestServer_InMemoryClient(t *testing.T) {
	s, _, _, _ := newTestServer()
	s.Handler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverTransport, clientTransport := mcp_sdk.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect() error = %v", err)
	}
	defer ss.Close()

	client := mcp_sdk.NewClient(&mcp_sdk.Implementation{Name: "test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() error = %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools.Tools) != 5 {
		t.Errorf("ListTools() returned %d tools, want 5", len(tools.Tools))
	}

	res, err := cs.CallTool(ctx, &mcp_sdk.CallToolParams{Name: "search_solutions", Arguments: map[string]any{"limit": 1}})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("CallTool() returned tool error: %+v", res.Content)
	}
	text, ok := res.Content[0].(*mcp_sdk.TextContent)
	if !ok {
		t.Fatalf("content = %T, want *TextContent", res.Content[0])
	}
	var sols SolutionsResult
	if err := json.Unmarshal([]byte(text.Text), &sols); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if sols.Count != 1 {
		t.Errorf("solutions count = %d, want 1", sols.Count)
	}

	res, err = cs.CallTool(ctx, &mcp_sdk.CallToolParams{Name: "search_resume"})
	if err != nil {
		t.Fatalf("CallTool(search_resume) error = %v", err)
	}
	if !res.IsError {
		t.Error("search_resume on an active session should be a tool error")
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s, _, _, _ := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
