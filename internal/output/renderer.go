package output

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/atikulmunna/moor/internal/model"
)

// Renderer writes LogRecord values to an output stream.
type Renderer interface {
	Render(rec model.LogRecord) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

// sourcePalette holds the colors assigned to sub-services. A sub-service
// always hashes to the same color within a session.
var sourcePalette = []lipgloss.Color{
	"39",  // cyan
	"114", // green
	"141", // purple
	"214", // orange
	"81",  // sky
	"204", // pink
}

var (
	styleTimestamp = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
	styleSystem    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true) // yellow
)

// TextRenderer prints records to the terminal with one stable color per
// sub-service; system records stand out in bold yellow.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to stdout.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{w: os.Stdout}
}

func (r *TextRenderer) Render(rec model.LogRecord) error {
	src := styleSource(rec.Source).Render(fmt.Sprintf("%-12s", rec.Source))
	ts := styleTimestamp.Render(rec.Timestamp)

	line := fmt.Sprintf("%s %s %s", ts, src, rec.Message)
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func styleSource(source string) lipgloss.Style {
	if source == model.SystemSource {
		return styleSystem
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(source))
	color := sourcePalette[h.Sum32()%uint32(len(sourcePalette))]
	return lipgloss.NewStyle().Foreground(color)
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each record as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to stdout.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(os.Stdout)}
}

func (r *JSONRenderer) Render(rec model.LogRecord) error {
	return r.enc.Encode(rec)
}
