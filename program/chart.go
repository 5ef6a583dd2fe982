package main

import (
	"math"
	"strings"

	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"
	"github.com/mattn/go-runewidth"

	"github.com/keilerkonzept/logscope/explorer"
)

const barRune = "█"

// chart draws the histogram either as stacked severity bars or, in lines
// mode, as a braille plot of the total and error counts per bucket.
type chart struct {
	width, height int
	lines         bool
	logScale      bool
	plot          *plot.Canvas
	plotData      [][]float64
}

func newChart(height int) *chart {
	c := &chart{height: height}
	c.resize(80)
	return c
}

func (c *chart) resize(width int) {
	c.width = max(1, width)
	p := plot.NewCanvas(c.width, c.height)
	p.ShowAxis = false
	p.LineColors = make([]plot.Color, 2)
	c.plot = &p
}

// view renders the chart area: height plot lines, the axis labels and the
// indicator line.
func (c *chart) view(s *explorer.Session) string {
	var body string
	if c.lines {
		body = c.linesView(s)
	} else {
		body = c.barsView(s)
	}
	return styles.JoinVertical(styles.Left, body, c.axisView(s), c.indicatorView(s))
}

func (c *chart) barsView(s *explorer.Session) string {
	grid := make([][]string, c.height)
	for i := range grid {
		grid[i] = make([]string, c.width)
		for j := range grid[i] {
			grid[i][j] = " "
		}
	}
	hovered := s.HoveredBucket()
	bw := s.Layout().BarWidth
	for _, b := range s.Buckets() {
		bar, ok := b.Handle.(*barView)
		if !ok {
			continue
		}
		for k, sev := range bar.cells {
			row := c.height - 1 - k
			if row < 0 {
				break
			}
			style := severityFg(sev)
			if b == hovered {
				style = selectedFg
			}
			cell := style.Render(barRune)
			for col := b.Offset; col < b.Offset+bw && col < c.width; col++ {
				grid[row][col] = cell
			}
		}
	}
	rows := make([]string, c.height)
	for i, r := range grid {
		rows[i] = strings.Join(r, "")
	}
	return strings.Join(rows, "\n")
}

func (c *chart) linesView(s *explorer.Session) string {
	buckets := s.Buckets()
	if len(buckets) < 2 || !s.Loaded() {
		return blank(c.width, c.height)
	}
	if len(c.plotData) != 2 || len(c.plotData[0]) != len(buckets) {
		c.plotData = [][]float64{make([]float64, len(buckets)), make([]float64, len(buckets))}
	}
	for i, b := range buckets {
		c.plotData[0][i] = c.scale(b.Count)
		c.plotData[1][i] = c.scale(b.Error)
	}
	if styles.DefaultRenderer().HasDarkBackground() {
		c.plot.LineColors[0], c.plot.LineColors[1] = plot.LightGray, plot.Red
	} else {
		c.plot.LineColors[0], c.plot.LineColors[1] = plot.Black, plot.Red
	}
	c.plot.NumDataPoints = len(buckets)
	c.plot.Fill(c.plotData)
	out := c.plot.String()
	if out == "" {
		return blank(c.width, c.height)
	}
	return out
}

func (c *chart) scale(v int64) float64 {
	if c.logScale {
		return math.Log(max(1, float64(v)))
	}
	return float64(v)
}

// axisView places the date labels; one that would overlap its left
// neighbour is skipped.
func (c *chart) axisView(s *explorer.Session) string {
	line := []rune(strings.Repeat(" ", c.width))
	next := 0
	for _, l := range s.Labels() {
		text := []rune(l.Text)
		if l.Offset < next || l.Offset+len(text) > c.width {
			continue
		}
		copy(line[l.Offset:], text)
		next = l.Offset + len(text) + 1
	}
	return borderFg.Render(string(line))
}

// indicatorView draws the needle with its label beside it, flipped to the
// left near the right edge.
func (c *chart) indicatorView(s *explorer.Session) string {
	ind, ok := s.Indicator()
	if !ok {
		return strings.Repeat(" ", c.width)
	}
	pos := max(0, min(c.width-1, ind.Position))
	label := runewidth.Truncate(ind.Label, max(0, c.width-2), "…")
	w := runewidth.StringWidth(label)
	var out string
	if pos+2+w <= c.width {
		out = strings.Repeat(" ", pos) + selectedFg.Render("▲") + " " + label
	} else {
		lead := max(0, pos-w-1)
		out = strings.Repeat(" ", lead) + label + " " + selectedFg.Render("▲")
	}
	return out
}

func blank(w, h int) string {
	row := strings.Repeat(" ", max(0, w))
	rows := make([]string, max(0, h))
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, "\n")
}
