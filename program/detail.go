package main

import (
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/bubbles/viewport"
	tui "github.com/charmbracelet/bubbletea"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/keilerkonzept/logscope/explorer"
)

const detailStyle = "monokai"

// detailPane shows the attributes of one entry: level, timestamp and the
// pretty-printed payload.
type detailPane struct {
	entry *explorer.Entry
	view  viewport.Model
	loc   *time.Location
	style *chroma.Style
}

func newDetailPane(loc *time.Location) *detailPane {
	return &detailPane{
		view:  viewport.New(20, 10),
		loc:   loc,
		style: chromastyles.Get(detailStyle),
	}
}

func (d *detailPane) show(e *explorer.Entry) {
	d.entry = e
	d.view.SetContent(d.content())
	d.view.GotoTop()
}

func (d *detailPane) setSize(w, h int) {
	d.view.Width, d.view.Height = w, h
	if d.entry != nil {
		d.view.SetContent(d.content())
	}
}

func (d *detailPane) content() string {
	e := d.entry
	var sb strings.Builder
	sb.WriteString(severityFg(e.Severity).Render(e.Severity.String()))
	sb.WriteString("  ")
	sb.WriteString(e.Time().In(d.loc).Format(time.RFC3339Nano))
	sb.WriteString("\n\n")
	sb.WriteString(highlightJSON(oj.JSON(e.Payload, &ojg.Options{Indent: 2, Sort: true}), d.style))
	return sb.String()
}

// highlightJSON colours src for a 256-colour terminal. The plain text is
// returned when tokenising fails.
func highlightJSON(src string, style *chroma.Style) string {
	lexer := lexers.Get("json")
	if lexer == nil {
		return src
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, src)
	if err != nil {
		return src
	}
	var sb strings.Builder
	if err := formatters.TTY256.Format(&sb, style, it); err != nil {
		return src
	}
	return sb.String()
}

func (d *detailPane) update(msg tui.Msg) tui.Cmd {
	var cmd tui.Cmd
	d.view, cmd = d.view.Update(msg)
	return cmd
}

func (d *detailPane) render() string { return d.view.View() }
