package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/keilerkonzept/logscope/explorer"
)

type focus int

const (
	focusFeed focus = iota
	focusInput
	focusTags
	focusDetail
)

// rangePresets are the window lengths behind keys 1..6.
var rangePresets = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

const (
	zoomPercent = 20
	panPercent  = 20
	wheelLines  = 3
)

type model struct {
	width, height  int
	leftPaneWidth  int
	rightPaneWidth int

	cfg     Config
	ctx     context.Context
	now     func() time.Time
	logger  *log.Logger
	backend explorer.Backend
	decoder *explorer.Decoder
	loc     *time.Location

	// session is created on the first window size message, once the chart
	// width is known.
	session  *explorer.Session
	initial  explorer.Filter
	render   *feedRenderer
	chart    *chart
	input    textinput.Model
	tags     *tagBoard
	detail   *detailPane
	help     help.Model
	metrics  *requestMetrics
	focus    focus
	selected *explorer.Entry
	showInfo bool
}

func newModel(ctx context.Context, cfg Config, be explorer.Backend, logger *log.Logger, now func() time.Time) (*model, error) {
	dec, err := explorer.NewDecoder(cfg.MessagePath)
	if err != nil {
		return nil, err
	}
	levels, err := parseLevels(cfg.Levels)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if cfg.UTC {
		loc = time.UTC
	}

	end := now()
	f := explorer.NewFilter(cfg.Expr, end.Add(-cfg.Since), end)
	f.Levels = levels

	in := textinput.New()
	in.Prompt = "/ "
	in.Placeholder = "filter, e.g. svc:api status:>=500"
	in.SetValue(f.Expression)

	r := newFeedRenderer(loc)
	r.height = cfg.ChartHeight
	r.logScale = cfg.LogScale
	c := newChart(cfg.ChartHeight)
	c.lines = cfg.Lines
	c.logScale = cfg.LogScale

	m := &model{
		cfg:     cfg,
		ctx:     ctx,
		now:     now,
		logger:  logger,
		backend: be,
		decoder: dec,
		loc:     loc,
		initial: f,
		render:  r,
		chart:   c,
		input:   in,
		tags:    newTagBoard(cfg.TagsK, 2*cfg.TagsRefresh),
		detail:  newDetailPane(loc),
		help:    help.New(),
		metrics: newRequestMetrics(cfg.StatsWindow, cfg.StatsEnabled),
	}
	return m, nil
}

func (m *model) leftWidth() int {
	if m.leftPaneWidth > 0 {
		return m.leftPaneWidth
	}
	left, _ := computePaneWidths(m.width, m.cfg.ViewSplit)
	return left
}

func (m *model) rightWidth() int {
	if m.rightPaneWidth > 0 {
		return m.rightPaneWidth
	}
	_, right := computePaneWidths(m.width, m.cfg.ViewSplit)
	return right
}

// Screen rows: header, chart (plot, axis, indicator), body, status, help.
func (m *model) chartTop() int   { return 1 }
func (m *model) feedTop() int    { return m.chartTop() + m.cfg.ChartHeight + 2 }
func (m *model) bodyHeight() int { return max(1, m.height-m.feedTop()-2) }

type tagsTickMsg time.Time

func (m *model) doTagsTick() tui.Cmd {
	return tui.Every(m.cfg.TagsRefresh, func(t time.Time) tui.Msg {
		return tagsTickMsg(t)
	})
}

func (m *model) Init() tui.Cmd {
	return m.doTagsTick()
}

func (m *model) Update(msg tui.Msg) (tui.Model, tui.Cmd) {
	switch msg := msg.(type) {
	case tui.WindowSizeMsg:
		return m, m.resize(msg.Width, msg.Height)
	case tagsTickMsg:
		return m, tui.Batch(m.tags.refresh(time.Time(msg)), m.doTagsTick())
	case tui.KeyMsg:
		cmd := m.handleKey(msg)
		m.dropEvictedSelection()
		return m, cmd
	case tui.MouseMsg:
		cmd := m.handleMouse(msg)
		m.dropEvictedSelection()
		return m, cmd
	}
	if m.session != nil {
		cmd := m.session.Update(msg)
		m.dropEvictedSelection()
		if m.focus == focusInput {
			var icmd tui.Cmd
			m.input, icmd = m.input.Update(msg)
			cmd = tui.Batch(cmd, icmd)
		}
		return m, cmd
	}
	return m, nil
}

func (m *model) resize(w, h int) tui.Cmd {
	m.width, m.height = w, h
	m.leftPaneWidth, m.rightPaneWidth = computePaneWidths(m.width, m.cfg.ViewSplit)
	m.render.width = max(1, m.leftWidth()-gutterWidth)
	m.chart.resize(m.width)
	m.input.Width = max(1, m.width/2)

	right := max(1, m.rightWidth()-2)
	paneHeight := max(1, m.bodyHeight()-m.statsHeight())
	m.tags.setSize(right, paneHeight)
	m.detail.setSize(right, paneHeight)

	if m.session == nil {
		m.session = explorer.New(m.ctx, explorer.Config{
			Backend:        m.backend,
			Renderer:       m.render,
			Decoder:        m.decoder,
			Observer:       observers{m.metrics, m.tags},
			Logger:         m.logger,
			Location:       m.loc,
			Width:          m.width,
			ViewHeight:     m.bodyHeight(),
			BarWidth:       m.cfg.BarWidth,
			BarGap:         m.cfg.BarGap,
			PrefetchLines:  m.cfg.PrefetchLines,
			ScrollDebounce: m.cfg.ScrollDebounce,
		}, m.initial)
		return m.session.Init()
	}
	// rows are re-created at the new width by Resize, so the selection
	// handle stays valid.
	return tui.Batch(m.session.Resize(m.width), m.session.SetViewHeight(m.bodyHeight()))
}

func (m *model) statsHeight() int {
	if !m.cfg.StatsEnabled {
		return 0
	}
	return len(snapshot{}.lines())
}

func (m *model) handleKey(msg tui.KeyMsg) tui.Cmd {
	if key.Matches(msg, keys.ForceQuit) {
		return tui.Quit
	}
	switch m.focus {
	case focusInput:
		return m.handleInputKey(msg)
	case focusTags:
		if cmd, ok := m.handleTagsKey(msg); ok {
			return cmd
		}
	case focusDetail:
		if key.Matches(msg, keys.Back) {
			m.focus = focusFeed
			return nil
		}
		if key.Matches(msg, keys.Up, keys.Down, keys.PageUp, keys.PageDown) {
			return m.detail.update(msg)
		}
	}
	if m.session == nil {
		if key.Matches(msg, keys.Quit) {
			return tui.Quit
		}
		return nil
	}
	s := m.session

	switch {
	case key.Matches(msg, keys.Quit):
		return tui.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Filter):
		m.focus = focusInput
		m.input.SetValue(s.Filter().Expression)
		m.input.CursorEnd()
		return m.input.Focus()
	case key.Matches(msg, keys.Tags):
		m.setFocus(focusTags)
	case key.Matches(msg, keys.Down):
		return m.moveSelection(1)
	case key.Matches(msg, keys.Up):
		return m.moveSelection(-1)
	case key.Matches(msg, keys.PageDown):
		return s.Scroll(s.ViewHeight())
	case key.Matches(msg, keys.PageUp):
		return s.Scroll(-s.ViewHeight())
	case key.Matches(msg, keys.Top):
		return s.Scroll(-s.Offset())
	case key.Matches(msg, keys.Bottom):
		return s.Scroll(s.ContentHeight())
	case key.Matches(msg, keys.BucketLeft):
		m.moveBucket(-1)
	case key.Matches(msg, keys.BucketRight):
		m.moveBucket(1)
	case key.Matches(msg, keys.Enter):
		if b := s.HoveredBucket(); b != nil {
			m.selected = nil
			return s.JumpTo(b.Index)
		}
		if e := m.currentEntry(); e != nil {
			m.openDetail(e)
		}
	case key.Matches(msg, keys.Back):
		s.ClearHover()
		m.selected = nil
	case key.Matches(msg, keys.Debug):
		return m.toggleLevel(explorer.Debug)
	case key.Matches(msg, keys.Info):
		return m.toggleLevel(explorer.Info)
	case key.Matches(msg, keys.Warn):
		return m.toggleLevel(explorer.Warn)
	case key.Matches(msg, keys.Error):
		return m.toggleLevel(explorer.Error)
	case key.Matches(msg, keys.ZoomIn):
		return s.Zoom(zoomPercent)
	case key.Matches(msg, keys.ZoomOut):
		return s.Zoom(-zoomPercent)
	case key.Matches(msg, keys.PanLeft):
		return s.Pan(-panPercent)
	case key.Matches(msg, keys.PanRight):
		return s.Pan(panPercent)
	case key.Matches(msg, keys.Refresh):
		end := m.now().Unix()
		return s.SetWindow(end-s.Filter().Span(), end)
	case key.Matches(msg, keys.Range) && len(msg.Runes) == 1:
		i := int(msg.Runes[0] - '1')
		if i >= 0 && i < len(rangePresets) {
			end := m.now()
			return s.SetWindow(end.Add(-rangePresets[i]).Unix(), end.Unix())
		}
	case key.Matches(msg, keys.Scale):
		m.render.logScale = !m.render.logScale
		m.chart.logScale = m.render.logScale
		s.Redraw()
	case key.Matches(msg, keys.Chart):
		m.chart.lines = !m.chart.lines
	case key.Matches(msg, keys.Verbose):
		m.showInfo = !m.showInfo
	}
	return nil
}

func (m *model) handleInputKey(msg tui.KeyMsg) tui.Cmd {
	switch msg.Type {
	case tui.KeyEnter:
		m.input.Blur()
		m.focus = focusFeed
		m.selected = nil
		return m.session.SetExpression(m.input.Value())
	case tui.KeyEsc:
		m.input.Blur()
		m.focus = focusFeed
		m.input.SetValue(m.session.Filter().Expression)
		return nil
	}
	var cmd tui.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// handleTagsKey reports false for keys the leaderboard leaves to the feed.
func (m *model) handleTagsKey(msg tui.KeyMsg) (tui.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Back), key.Matches(msg, keys.Tags):
		m.setFocus(focusFeed)
		return nil, true
	case key.Matches(msg, keys.Up):
		m.tags.list.CursorUp()
		return nil, true
	case key.Matches(msg, keys.Down):
		m.tags.list.CursorDown()
		return nil, true
	case key.Matches(msg, keys.Enter):
		t, ok := m.tags.selected()
		if !ok || m.session == nil {
			return nil, true
		}
		m.setFocus(focusFeed)
		m.selected = nil
		cmd := m.session.AddTerm(t.Key, t.Value)
		m.input.SetValue(m.session.Filter().Expression)
		return cmd, true
	}
	return nil, false
}

func (m *model) setFocus(f focus) {
	m.focus = f
	m.tags.setFocused(f == focusTags)
}

func (m *model) toggleLevel(sev explorer.Severity) tui.Cmd {
	cmd := m.session.ToggleLevel(sev)
	if cmd != nil {
		m.selected = nil
	}
	return cmd
}

func (m *model) openDetail(e *explorer.Entry) {
	m.selected = e
	m.session.HoverEntry(e)
	m.detail.show(e)
	m.focus = focusDetail
}

// currentEntry is the selected entry, or the topmost visible one.
func (m *model) currentEntry() *explorer.Entry {
	if m.selected != nil {
		return m.selected
	}
	return m.session.Visible()
}

// dropEvictedSelection forgets a selection whose row is gone.
func (m *model) dropEvictedSelection() {
	if m.selected != nil && m.selected.Handle == nil {
		m.selected = nil
		if m.focus == focusDetail {
			m.focus = focusFeed
		}
	}
}

// moveSelection steps the selection through the feed and scrolls it into
// view.
func (m *model) moveSelection(step int) tui.Cmd {
	s := m.session
	rows := s.Rows()
	if len(rows) == 0 {
		return nil
	}
	i := indexOf(rows, m.currentEntry())
	switch {
	case i < 0:
		i = 0
	case m.selected != nil:
		i = max(0, min(len(rows)-1, i+step))
	}
	m.selected = rows[i]
	s.HoverEntry(m.selected)

	top := 0
	for _, e := range rows[:i] {
		top += m.render.Height(e.Handle)
	}
	bottom := top + m.render.Height(m.selected.Handle)
	switch {
	case top < s.Offset():
		return s.Scroll(top - s.Offset())
	case bottom > s.Offset()+s.ViewHeight():
		return s.Scroll(bottom - s.Offset() - s.ViewHeight())
	}
	return nil
}

func indexOf(rows []*explorer.Entry, e *explorer.Entry) int {
	if e == nil {
		return -1
	}
	for i, r := range rows {
		if r == e {
			return i
		}
	}
	return -1
}

// moveBucket moves the chart cursor to the next populated bucket.
func (m *model) moveBucket(step int) {
	s := m.session
	from := -1
	if b := s.HoveredBucket(); b != nil {
		from = b.Index
	} else if step < 0 {
		from = len(s.Buckets())
	}
	if i := s.NextPopulated(from, step); i >= 0 {
		s.HoverBucket(s.Buckets()[i])
	}
}

func (m *model) handleMouse(msg tui.MouseMsg) tui.Cmd {
	if m.session == nil {
		return nil
	}
	s := m.session
	inFeed := msg.Y >= m.feedTop() && msg.Y < m.feedTop()+m.bodyHeight() && msg.X < m.leftWidth()
	inChart := msg.Y >= m.chartTop() && msg.Y < m.chartTop()+m.cfg.ChartHeight

	if tui.MouseEvent(msg).IsWheel() {
		switch {
		case inFeed && msg.Button == tui.MouseButtonWheelUp:
			return s.Scroll(-wheelLines)
		case inFeed && msg.Button == tui.MouseButtonWheelDown:
			return s.Scroll(wheelLines)
		case m.focus == focusDetail:
			return m.detail.update(msg)
		}
		return nil
	}

	switch {
	case inChart:
		b := s.BucketAt(msg.X)
		if b == nil || b.Count == 0 {
			if msg.Action == tui.MouseActionMotion {
				s.ClearHover()
			}
			return nil
		}
		if msg.Action == tui.MouseActionPress && msg.Button == tui.MouseButtonLeft {
			m.selected = nil
			return s.JumpTo(b.Index)
		}
		s.HoverBucket(b)
	case inFeed:
		e := s.EntryAt(msg.Y - m.feedTop())
		if e == nil {
			return nil
		}
		if msg.Action == tui.MouseActionPress && msg.Button == tui.MouseButtonLeft {
			m.openDetail(e)
			return nil
		}
		if m.selected == nil {
			s.HoverEntry(e)
		}
	}
	return nil
}

func (m *model) View() string {
	if m.session == nil {
		return "starting…"
	}
	header := m.headerView()
	chart := m.chart.view(m.session)
	left := styles.NewStyle().Width(m.leftWidth()).Height(m.bodyHeight()).Render(m.feedView())
	right := styles.NewStyle().
		Width(m.rightWidth()-1).
		Height(m.bodyHeight()).
		PaddingLeft(1).
		BorderStyle(styles.NormalBorder()).
		BorderLeft(true).
		BorderForeground(borderColor).
		Render(m.sideView())
	body := styles.JoinHorizontal(styles.Top, left, right)
	return styles.JoinVertical(styles.Left, header, chart, body, m.statusView(), m.help.View(keys))
}

func (m *model) headerView() string {
	s := m.session
	f := s.Filter()
	var levels []string
	for _, sev := range explorer.Severities {
		tag := sev.String()[:1]
		if f.Levels.Has(sev) {
			levels = append(levels, severityFg(sev).Render(tag))
		} else {
			levels = append(levels, borderFg.Render("·"))
		}
	}
	var query string
	if m.focus == focusInput {
		query = m.input.View()
	} else if f.Expression != "" {
		query = "/ " + f.Expression
	} else {
		query = borderFg.Render("/ (no filter)")
	}
	span := time.Duration(f.Span()) * time.Second
	total := countf("%d events", s.Total())
	window := fmt.Sprintf("%s → %s (%s)",
		time.Unix(f.Start, 0).In(m.loc).Format("01-02 15:04:05"),
		time.Unix(f.End, 0).In(m.loc).Format("01-02 15:04:05"),
		span)
	line := strings.Join([]string{query, strings.Join(levels, ""), total, borderFg.Render(window)}, "  ")
	return ansi.Truncate(line, m.width, "…")
}

// feedView draws the rows that intersect the viewport, newest first.
func (m *model) feedView() string {
	s := m.session
	h := s.ViewHeight()
	lines := make([]string, 0, h)
	skip := s.Offset()
	for _, e := range s.Rows() {
		rv, ok := e.Handle.(*rowView)
		if !ok {
			continue
		}
		gutter := "  "
		if e == m.selected || (m.selected == nil && e == s.Hovered()) {
			gutter = selectedFg.Render("▌ ")
		}
		for _, l := range rv.lines {
			if skip > 0 {
				skip--
				continue
			}
			lines = append(lines, gutter+l)
			if len(lines) == h {
				return strings.Join(lines, "\n")
			}
		}
	}
	if len(lines) == 0 {
		switch {
		case s.Loading(explorer.After) || s.Loading(explorer.Before) || !s.Loaded():
			lines = append(lines, borderFg.Render("  loading…"))
		default:
			lines = append(lines, borderFg.Render("  no entries in this window"))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) sideView() string {
	var pane string
	if m.focus == focusDetail {
		pane = m.detail.render()
	} else {
		pane = m.tags.view()
	}
	if !m.cfg.StatsEnabled {
		return pane
	}
	stats := borderFg.Render(strings.Join(m.metrics.snapshot().lines(), "\n"))
	return styles.JoinVertical(styles.Left, styles.NewStyle().Height(max(1, m.bodyHeight()-m.statsHeight())).Render(pane), stats)
}

func (m *model) statusView() string {
	s := m.session
	if err := s.Err(); err != nil {
		return ansi.Truncate(errorFg.Render("ERROR: "+oneLine(err.Error())), m.width, "…")
	}
	var parts []string
	if s.Loading(explorer.After) {
		parts = append(parts, "loading newer")
	}
	if s.Loading(explorer.Before) {
		parts = append(parts, "loading older")
	}
	parts = append(parts, countf("%d entries", s.Len()))
	if !s.HasMore(explorer.After) {
		parts = append(parts, "newest reached")
	}
	if !s.HasMore(explorer.Before) {
		parts = append(parts, "oldest reached")
	}
	if m.showInfo {
		l := s.Layout()
		parts = append(parts, fmt.Sprintf("%d buckets of %s", l.N, l.Label))
		if start, end, ok := s.PopulatedRange(); ok {
			parts = append(parts, "data "+start.In(m.loc).Format(time.DateTime)+" → "+end.In(m.loc).Format(time.DateTime))
		}
	}
	return ansi.Truncate(borderFg.Render(strings.Join(parts, " · ")), m.width, "…")
}

func computePaneWidths(totalWidth int, splitPercent int) (left, right int) {
	if totalWidth <= 1 {
		return 1, 1
	}
	left = totalWidth * splitPercent / 100
	left = max(1, min(totalWidth-1, left))
	right = totalWidth - left

	// Keep panes readable when the terminal is wide enough.
	const minPane = 24
	if totalWidth >= minPane*2 {
		if left < minPane {
			left = minPane
			right = totalWidth - left
		}
		if right < minPane {
			right = minPane
			left = totalWidth - right
		}
	}
	return max(1, left), max(1, right)
}
