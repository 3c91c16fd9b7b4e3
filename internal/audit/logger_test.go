package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_Record(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, &buf)

	l.Record(OpSearchPause, "run_1", "sess_1", "req_1", nil)
	l.Record(OpSearchResume, "run_1", "", "", errors.New("session not paused"))

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d audit lines, want 2", len(lines))
	}
	if lines[0]["operation"] != string(OpSearchPause) || lines[0]["success"] != true {
		t.Errorf("first event = %v", lines[0])
	}
	if lines[0]["request_id"] != "req_1" || lines[0]["run_id"] != "run_1" || lines[0]["session_id"] != "sess_1" {
		t.Errorf("first event ids = %v", lines[0])
	}
	if lines[1]["success"] != false || lines[1]["error"] != "session not paused" {
		t.Errorf("second event = %v", lines[1])
	}
	if _, ok := lines[1]["request_id"]; ok {
		t.Error("empty request_id should be omitted")
	}
	if _, ok := lines[1]["session_id"]; ok {
		t.Error("empty session_id should be omitted")
	}
}

func TestLogger_Details(t *testing.T) {
	var buf bytes.Buffer
	l := New(true, &buf)

	l.Log(&Event{Operation: OpRunFinish, RunID: "run_1", Success: true, Details: map[string]any{"status": "completed"}})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d audit lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0]["details"].(string), `"status":"completed"`) {
		t.Errorf("details = %v", lines[0]["details"])
	}
}

func TestLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, &buf)
	l.Record(OpCheckpointSave, "run_1", "", "", nil)
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	var nilLogger *Logger
	nilLogger.Record(OpRunStart, "run_1", "", "", nil)
}
