package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/atikulmunna/moor/internal/model"
)

func TestTextRendererWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	r := &TextRenderer{w: &buf}

	rec := model.LogRecord{
		Source:    "web",
		Timestamp: "2024-03-01T10:00:00.000000Z",
		Message:   "listening on :8080",
	}
	if err := r.Render(rec); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		t.Error("expected trailing newline")
	}
	for _, want := range []string{"web", rec.Timestamp, rec.Message} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestStyleSourceIsStable(t *testing.T) {
	a := styleSource("web")
	b := styleSource("web")
	if a.Render("x") != b.Render("x") {
		t.Error("same source must always render with the same style")
	}
}

func TestStyleSourceSystemIsDistinct(t *testing.T) {
	sys := styleSource(model.SystemSource)
	if sys.GetForeground() != styleSystem.GetForeground() {
		t.Error("system records must use the system style")
	}
}

func TestJSONRendererEmitsRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	r := &JSONRenderer{enc: json.NewEncoder(&buf)}

	recs := []model.LogRecord{
		{Source: "web", Timestamp: "2024-03-01T10:00:00.000000Z", Message: "one"},
		{Source: model.SystemSource, Timestamp: "2024-03-01T10:00:01.000000Z", Message: "two"},
	}
	for _, rec := range recs {
		if err := r.Render(rec); err != nil {
			t.Fatalf("render failed: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	for i, line := range lines {
		var got model.LogRecord
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i, err)
		}
		if got != recs[i] {
			t.Errorf("line %d: got %+v, want %+v", i, got, recs[i])
		}
	}
}
