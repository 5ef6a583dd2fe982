package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	styles "github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/keilerkonzept/logscope/explorer"
)

var (
	selectedColor = styles.AdaptiveColor{Light: "0", Dark: "9"}
	borderColor   = styles.AdaptiveColor{Light: "#555", Dark: "#555"}
	selectedFg    = styles.NewStyle().Foreground(selectedColor)
	borderFg      = styles.NewStyle().Foreground(borderColor)
	errorFg       = styles.NewStyle().Foreground(styles.AdaptiveColor{Light: "1", Dark: "9"})

	severityColors = [...]styles.AdaptiveColor{
		explorer.Debug: {Light: "8", Dark: "8"},
		explorer.Info:  {Light: "4", Dark: "12"},
		explorer.Warn:  {Light: "3", Dark: "11"},
		explorer.Error: {Light: "1", Dark: "9"},
	}
)

func severityFg(s explorer.Severity) styles.Style {
	return styles.NewStyle().Foreground(severityColors[s])
}

var printer = message.NewPrinter(language.English)

// countf formats with thousands separators.
func countf(format string, args ...any) string {
	return printer.Sprintf(format, args...)
}

// rowView is a rendered feed row: the message line plus an optional tag line.
type rowView struct {
	entry *explorer.Entry
	lines []string
}

// barView is a rendered histogram column, stored bottom-up as one severity
// per cell.
type barView struct {
	bucket *explorer.Bucket
	cells  []explorer.Severity
}

// feedRenderer draws rows at the feed width and bars at the chart height.
// Rows carry their styling; the view only adds the selection gutter.
type feedRenderer struct {
	width    int // feed width without the gutter
	height   int // chart height
	logScale bool
	loc      *time.Location
	live     int
}

const gutterWidth = 2

func newFeedRenderer(loc *time.Location) *feedRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &feedRenderer{width: 80, height: 8, loc: loc}
}

func (r *feedRenderer) CreateRow(e *explorer.Entry) explorer.Handle {
	r.live++
	return &rowView{entry: e, lines: r.rowLines(e)}
}

func (r *feedRenderer) rowLines(e *explorer.Entry) []string {
	ts := e.Time().In(r.loc).Format(explorer.EntryTimeFormat)
	level := runewidth.FillRight(e.Severity.String(), 5)
	msgWidth := max(0, r.width-runewidth.StringWidth(ts)-len(level)-2)
	msg := runewidth.Truncate(oneLine(e.Message), msgWidth, "…")
	lines := []string{borderFg.Render(ts) + " " + severityFg(e.Severity).Render(level) + " " + msg}

	if tags := e.Tags(); len(tags) > 0 {
		parts := make([]string, len(tags))
		for i, t := range tags {
			parts[i] = oneLine(t.String())
		}
		text := runewidth.Truncate("  "+strings.Join(parts, " "), r.width, "…")
		lines = append(lines, borderFg.Render(text))
	}
	return lines
}

func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, s)
}

func (r *feedRenderer) CreateBar(b *explorer.Bucket, renderMax int64) explorer.Handle {
	r.live++
	return &barView{bucket: b, cells: stackCells(b, renderMax, r.height, r.logScale)}
}

func (r *feedRenderer) Height(h explorer.Handle) int {
	switch v := h.(type) {
	case *rowView:
		return len(v.lines)
	case *barView:
		return r.height
	}
	return 0
}

func (r *feedRenderer) Destroy(h explorer.Handle) {
	if h != nil {
		r.live--
	}
}

// stackOrder is the bottom-up order of severities inside a bar.
var stackOrder = [...]explorer.Severity{explorer.Error, explorer.Warn, explorer.Info, explorer.Debug}

// stackCells scales a bucket to height cells and splits them by severity.
// A non-empty bucket always gets at least one cell.
func stackCells(b *explorer.Bucket, renderMax int64, height int, logScale bool) []explorer.Severity {
	if b.Count <= 0 || renderMax <= 0 || height <= 0 {
		return nil
	}
	scale := func(v int64) float64 { return float64(v) }
	if logScale {
		scale = func(v int64) float64 { return math.Log1p(float64(v)) }
	}
	n := int(math.Round(scale(b.Count) / scale(renderMax) * float64(height)))
	n = max(1, min(height, n))

	cells := make([]explorer.Severity, 0, n)
	var cum int64
	for _, s := range stackOrder {
		cum += b.CountOf(s)
		top := int(math.Round(float64(cum) / float64(b.Count) * float64(n)))
		for len(cells) < min(top, n) {
			cells = append(cells, s)
		}
	}
	for len(cells) < n {
		cells = append(cells, explorer.Debug)
	}
	return cells
}

func formatMetricDuration(d time.Duration) string {
	if d <= 0 {
		return "0.000ms"
	}
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
