package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/logscope/backend"
	"github.com/keilerkonzept/logscope/devserver"
	"github.com/keilerkonzept/logscope/explorer"
)

func TestMain(m *testing.M) {
	styles.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

var testEnd = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testEntries = 400

func testBackend(t *testing.T) *backend.Client {
	t.Helper()
	ctx := context.Background()
	store, err := devserver.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, devserver.Seed(ctx, store, devserver.GenerateConfig{
		Count: testEntries,
		End:   testEnd,
		Span:  time.Hour,
		Seed:  5,
	}))
	srv := httptest.NewServer(devserver.Handler(store, nil))
	t.Cleanup(srv.Close)

	c, err := backend.NewClient(srv.URL, backend.WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func testModel(t *testing.T) *model {
	t.Helper()
	cfg := defaultConfig
	cfg.UTC = true
	cfg.ScrollDebounce = 0
	cfg.TagsK = 10
	require.NoError(t, validateAndNormalizeConfig(&cfg))
	m, err := newModel(context.Background(), cfg, testBackend(t), nil, func() time.Time { return testEnd })
	require.NoError(t, err)
	return m
}

// drain runs cmd and every command it leads to, feeding the messages back
// into the model, until the session has nothing left in flight.
func drain(t *testing.T, m *model, cmd tui.Cmd) {
	t.Helper()
	queue := []tui.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 10_000, "the session keeps issuing requests")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tui.BatchMsg:
			queue = append(queue, msg...)
		case explorer.TicksMsg, explorer.PageMsg, explorer.ScrollCheckMsg:
			_, next := m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func press(t *testing.T, m *model, keys string) {
	t.Helper()
	for _, r := range keys {
		_, cmd := m.Update(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune{r}})
		drain(t, m, cmd)
	}
}

func pressType(t *testing.T, m *model, k tui.KeyType) {
	t.Helper()
	_, cmd := m.Update(tui.KeyMsg{Type: k})
	drain(t, m, cmd)
}

func loaded(t *testing.T) *model {
	t.Helper()
	m := testModel(t)
	_, cmd := m.Update(tui.WindowSizeMsg{Width: 120, Height: 40})
	drain(t, m, cmd)
	require.NotNil(t, m.session)
	require.NoError(t, m.session.Err())
	return m
}

func assertOrdered(t *testing.T, entries []*explorer.Entry, f explorer.Filter) {
	t.Helper()
	for i, e := range entries {
		assert.GreaterOrEqual(t, e.Epoch, f.Start)
		assert.LessOrEqual(t, e.Epoch, f.End)
		if i > 0 {
			assert.Negative(t, entries[i-1].Cursor.Compare(e.Cursor))
		}
	}
}

func TestModelLoadsWindow(t *testing.T) {
	m := loaded(t)
	s := m.session

	assert.EqualValues(t, testEntries, s.Total())
	assert.Positive(t, s.Len())
	assert.LessOrEqual(t, s.Len(), explorer.MaxEntries)
	assert.False(t, s.HasMore(explorer.After), "the window ends at now")
	assert.GreaterOrEqual(t, s.ContentHeight(), s.ViewHeight()+m.cfg.PrefetchLines)
	assertOrdered(t, s.Entries(), s.Filter())

	view := ansi.Strip(m.View())
	assert.Contains(t, view, "400 events")
	assert.Contains(t, view, "newest reached")
	assert.Contains(t, view, "REQUESTS")
	assert.Contains(t, view, s.Rows()[0].Message)
	assert.LessOrEqual(t, strings.Count(view, "\n")+1, 40)
}

func TestModelLevelKeys(t *testing.T) {
	m := loaded(t)
	gen := m.session.Generation()

	press(t, m, "e")
	s := m.session
	assert.Greater(t, s.Generation(), gen)
	assert.False(t, s.Filter().Levels.Has(explorer.Error))
	for _, e := range s.Entries() {
		assert.NotEqual(t, explorer.Error, e.Severity)
	}

	press(t, m, "diw")
	assert.Equal(t, explorer.LevelsOf(explorer.Warn), s.Filter().Levels, "the last level cannot be turned off")
	for _, e := range s.Entries() {
		assert.Equal(t, explorer.Warn, e.Severity)
	}

	press(t, m, "w")
	assert.Equal(t, explorer.LevelsOf(explorer.Warn), s.Filter().Levels)
}

func TestModelWindowKeys(t *testing.T) {
	m := loaded(t)
	s := m.session
	end := testEnd.Unix()

	press(t, m, "1")
	assert.EqualValues(t, 300, s.Filter().Span())
	assert.Equal(t, end, s.Filter().End)
	assertOrdered(t, s.Entries(), s.Filter())

	press(t, m, "+")
	assert.EqualValues(t, 180, s.Filter().Span())
	assert.Equal(t, end-60, s.Filter().End)

	press(t, m, "[")
	assert.Equal(t, end-60-36, s.Filter().End)
	assertOrdered(t, s.Entries(), s.Filter())

	press(t, m, "r")
	assert.Equal(t, end, s.Filter().End)
	assert.EqualValues(t, 180, s.Filter().Span())

	press(t, m, "6")
	assert.EqualValues(t, 24*3600, s.Filter().Span())
	assert.EqualValues(t, testEntries, s.Total())
}

func TestModelFilterInput(t *testing.T) {
	m := loaded(t)

	_, _ = m.Update(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune{'/'}})
	require.Equal(t, focusInput, m.focus)
	_, _ = m.Update(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune("svc:auth")})
	assert.Contains(t, ansi.Strip(m.View()), "/ svc:auth")
	pressType(t, m, tui.KeyEnter)

	s := m.session
	assert.Equal(t, focusFeed, m.focus)
	assert.Equal(t, "svc:auth", s.Filter().Expression)
	assert.Less(t, s.Total(), int64(testEntries))
	require.Positive(t, s.Len())
	for _, e := range s.Entries() {
		assert.Equal(t, "auth", e.Payload["svc"])
	}

	gen := s.Generation()
	_, _ = m.Update(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune{'/'}})
	_, _ = m.Update(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune(" level:x")})
	pressType(t, m, tui.KeyEsc)
	assert.Equal(t, focusFeed, m.focus)
	assert.Equal(t, "svc:auth", m.input.Value(), "escape restores the applied expression")
	assert.Equal(t, gen, s.Generation())
}

func TestModelTagNarrowsFilter(t *testing.T) {
	m := loaded(t)
	m.tags.refresh(testEnd)

	pressType(t, m, tui.KeyTab)
	require.Equal(t, focusTags, m.focus)
	tag, ok := m.tags.selected()
	require.True(t, ok)

	pressType(t, m, tui.KeyEnter)
	s := m.session
	assert.Equal(t, focusFeed, m.focus)
	assert.Equal(t, explorer.Term(tag.Key, tag.Value), s.Filter().Expression)
	assert.Equal(t, s.Filter().Expression, m.input.Value())
	require.Positive(t, s.Len())
	for _, e := range s.Entries() {
		assert.Contains(t, e.Tags(), tag)
	}
}

func TestModelSelectionAndDetail(t *testing.T) {
	m := loaded(t)
	s := m.session
	rows := s.Rows()

	press(t, m, "j")
	require.Same(t, rows[0], m.selected)
	press(t, m, "jj")
	require.Same(t, rows[2], m.selected)
	assert.Contains(t, ansi.Strip(m.feedView()), "▌ ")

	pressType(t, m, tui.KeyEnter)
	require.Equal(t, focusDetail, m.focus)
	detail := ansi.Strip(m.detail.render())
	assert.Contains(t, detail, rows[2].Severity.String())
	assert.Contains(t, detail, `"svc"`)

	pressType(t, m, tui.KeyEsc)
	assert.Equal(t, focusFeed, m.focus)
	pressType(t, m, tui.KeyEsc)
	assert.Nil(t, m.selected)
}

func TestModelChartClickJumps(t *testing.T) {
	m := loaded(t)
	s := m.session

	var target *explorer.Bucket
	for _, b := range s.Buckets() {
		if b.Count > 0 && b.Index > len(s.Buckets())/4 && b.Index < len(s.Buckets())/2 {
			target = b
			break
		}
	}
	require.NotNil(t, target)

	_, cmd := m.Update(tui.MouseMsg{X: target.Offset, Y: m.chartTop(), Action: tui.MouseActionMotion})
	drain(t, m, cmd)
	assert.Same(t, target, s.HoveredBucket())

	gen := s.Generation()
	_, cmd = m.Update(tui.MouseMsg{X: target.Offset, Y: m.chartTop(), Action: tui.MouseActionPress, Button: tui.MouseButtonLeft})
	drain(t, m, cmd)
	assert.Greater(t, s.Generation(), gen)
	assert.True(t, s.HasMore(explorer.After), "the feed starts inside the window")

	found := false
	for _, e := range s.Entries() {
		found = found || e.Bucket == target
	}
	assert.True(t, found, "entries of the clicked bucket are loaded")
	assertOrdered(t, s.Entries(), s.Filter())

	_, cmd = m.Update(tui.MouseMsg{X: 0, Y: m.feedTop(), Action: tui.MouseActionPress, Button: tui.MouseButtonLeft})
	drain(t, m, cmd)
	assert.Equal(t, focusDetail, m.focus)
	assert.Same(t, s.EntryAt(0), m.selected)
}

func TestModelMouseWheelScrollsFeed(t *testing.T) {
	m := loaded(t)
	s := m.session
	wheel := func(b tui.MouseButton, y int) tui.Cmd {
		_, cmd := m.Update(tui.MouseMsg{X: 1, Y: y, Action: tui.MouseActionPress, Button: b})
		return cmd
	}

	off := s.Offset()
	cmd := wheel(tui.MouseButtonWheelDown, m.feedTop()+1)
	assert.Equal(t, off+wheelLines, s.Offset())
	drain(t, m, cmd)

	off = s.Offset()
	cmd = wheel(tui.MouseButtonWheelUp, m.feedTop()+1)
	assert.Equal(t, max(0, off-wheelLines), s.Offset())
	drain(t, m, cmd)

	off = s.Offset()
	assert.Nil(t, wheel(tui.MouseButtonWheelDown, m.chartTop()), "the wheel only scrolls over the feed")
	assert.Equal(t, off, s.Offset())
}

func TestModelScrollEvictsAndRefills(t *testing.T) {
	m := loaded(t)
	s := m.session

	for i := 0; i < 30 && s.HasMore(explorer.Before); i++ {
		_, cmd := m.Update(tui.KeyMsg{Type: tui.KeyPgDown})
		drain(t, m, cmd)
		require.LessOrEqual(t, s.Len(), explorer.MaxEntries)
	}
	assert.True(t, s.HasMore(explorer.After), "scrolling down evicts the newest entries")
	assertOrdered(t, s.Entries(), s.Filter())

	_, cmd := m.Update(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune{'g'}})
	drain(t, m, cmd)
	for i := 0; i < 100 && s.HasMore(explorer.After); i++ {
		_, cmd := m.Update(tui.KeyMsg{Type: tui.KeyPgUp})
		drain(t, m, cmd)
	}
	assert.False(t, s.HasMore(explorer.After))
	assertOrdered(t, s.Entries(), s.Filter())
}

func TestProgramEndToEnd(t *testing.T) {
	m := testModel(t)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("400 events"))
	}, teatest.WithDuration(5*time.Second))

	tm.Send(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune{'/'}})
	tm.Send(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune("svc:api")})
	tm.Send(tui.KeyMsg{Type: tui.KeyEnter})
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("/ svc:api")) && bytes.Contains(bts, []byte("newest reached"))
	}, teatest.WithDuration(5*time.Second))

	tm.Send(tui.KeyMsg{Type: tui.KeyRunes, Runes: []rune{'q'}})
	tm.WaitFinished(t, teatest.WithFinalTimeout(5*time.Second))

	fm, ok := tm.FinalModel(t).(*model)
	require.True(t, ok)
	assert.Equal(t, "svc:api", fm.session.Filter().Expression)
	for _, e := range fm.session.Entries() {
		assert.Equal(t, "api", e.Payload["svc"])
	}
}

func TestModelChartModes(t *testing.T) {
	m := loaded(t)
	s := m.session
	h := m.cfg.ChartHeight

	bars := m.chart.view(s)
	assert.Len(t, strings.Split(bars, "\n"), h+2)
	assert.Contains(t, bars, barRune)

	press(t, m, "s")
	assert.True(t, m.render.logScale)
	for _, b := range s.Buckets() {
		if b.Count > 0 {
			assert.GreaterOrEqual(t, len(b.Handle.(*barView).cells), len(stackCells(b, s.RenderMax(), h, false)))
		}
	}

	press(t, m, "c")
	require.True(t, m.chart.lines)
	lines := m.chart.view(s)
	assert.NotContains(t, lines, barRune)
	assert.NotEmpty(t, strings.TrimSpace(ansi.Strip(lines)))

	press(t, m, "l")
	require.NotNil(t, s.HoveredBucket())
	assert.Contains(t, ansi.Strip(m.chart.view(s)), "▲")
}
