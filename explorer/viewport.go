package explorer

import (
	"time"

	tui "github.com/charmbracelet/bubbletea"
)

// EntryTimeFormat is the layout of an entry's exact timestamp.
const EntryTimeFormat = "06-01-02 15:04:05.000"

type viewport struct {
	offset    int // lines scrolled past the top of the feed
	height    int
	threshold int
	debounce  time.Duration
	seq       int
	heading   Direction // direction of the last scroll

	visible     *Entry
	hoverEntry  *Entry
	hoverBucket *Bucket
}

func (s *Session) Offset() int     { return s.view.offset }
func (s *Session) ViewHeight() int { return s.view.height }

// ContentHeight is the total height of every rendered row.
func (s *Session) ContentHeight() int {
	h := 0
	for _, e := range s.buf.entries {
		h += s.cfg.Renderer.Height(e.Handle)
	}
	return h
}

// SetViewHeight sets the feed height in lines and re-checks both edges.
func (s *Session) SetViewHeight(h int) tui.Cmd {
	s.view.height = max(0, h)
	s.clampOffset()
	return s.checkScroll()
}

func (s *Session) clampOffset() {
	s.view.offset = min(s.view.offset, max(0, s.ContentHeight()-s.view.height))
	s.view.offset = max(0, s.view.offset)
}

// Scroll moves the viewport by delta lines. The edge check runs once the
// scrolling has settled for the debounce period.
func (s *Session) Scroll(delta int) tui.Cmd {
	s.view.offset += delta
	s.clampOffset()
	switch {
	case delta < 0:
		s.view.heading = After
	case delta > 0:
		s.view.heading = Before
	}
	s.view.seq++
	seq := s.view.seq
	if s.view.debounce <= 0 {
		return func() tui.Msg { return ScrollCheckMsg{seq: seq} }
	}
	return tui.Tick(s.view.debounce, func(time.Time) tui.Msg {
		return ScrollCheckMsg{seq: seq}
	})
}

// checkScroll tracks the topmost visible entry and prefetches at whichever
// edge is within the threshold.
func (s *Session) checkScroll() tui.Cmd {
	s.view.visible = s.firstVisible()
	nearTop := s.view.offset < s.view.threshold
	nearBottom := s.ContentHeight()-(s.view.height+s.view.offset) < s.view.threshold
	if len(s.buf.entries) >= MaxEntries && s.ContentHeight() < s.view.height+2*s.view.threshold {
		// a full buffer cannot cover the view and both margins, and each page
		// evicts at the far end; only grow the end the user scrolls towards
		nearTop = nearTop && s.view.heading == After
		nearBottom = nearBottom && s.view.heading == Before
	}
	var cmds []tui.Cmd
	if nearTop {
		cmds = append(cmds, s.Load(After))
	}
	if nearBottom {
		cmds = append(cmds, s.Load(Before))
	}
	return tui.Batch(cmds...)
}

// firstVisible is the first row, in display order, whose top is at or below
// the scroll offset.
func (s *Session) firstVisible() *Entry {
	top := 0
	for i := len(s.buf.entries) - 1; i >= 0; i-- {
		e := s.buf.entries[i]
		if top >= s.view.offset {
			return e
		}
		top += s.cfg.Renderer.Height(e.Handle)
	}
	return nil
}

// Visible is the topmost entry in view, or nil.
func (s *Session) Visible() *Entry { return s.view.visible }

// EntryAt returns the entry drawn on line of the viewport.
func (s *Session) EntryAt(line int) *Entry {
	if line < 0 || line >= s.view.height {
		return nil
	}
	target := s.view.offset + line
	top := 0
	for i := len(s.buf.entries) - 1; i >= 0; i-- {
		e := s.buf.entries[i]
		top += s.cfg.Renderer.Height(e.Handle)
		if target < top {
			return e
		}
	}
	return nil
}

// BucketAt returns the bucket whose bar covers chart column x.
func (s *Session) BucketAt(x int) *Bucket {
	pitch := s.hist.layout.Pitch()
	if x < 0 || pitch <= 0 {
		return nil
	}
	i := x / pitch
	if i >= len(s.hist.buckets) || x-i*pitch >= s.hist.layout.BarWidth {
		return nil
	}
	return s.hist.buckets[i]
}

func (s *Session) HoverEntry(e *Entry)    { s.view.hoverEntry, s.view.hoverBucket = e, nil }
func (s *Session) HoverBucket(b *Bucket)  { s.view.hoverBucket, s.view.hoverEntry = b, nil }
func (s *Session) ClearHover()            { s.view.hoverEntry, s.view.hoverBucket = nil, nil }
func (s *Session) Hovered() *Entry        { return s.view.hoverEntry }
func (s *Session) HoveredBucket() *Bucket { return s.view.hoverBucket }

// NextPopulated walks from bucket i in steps of step and returns the first
// non-empty bucket index, or -1.
func (s *Session) NextPopulated(i, step int) int {
	if step == 0 {
		return -1
	}
	for i += step; i >= 0 && i < len(s.hist.buckets); i += step {
		if s.hist.buckets[i].Count > 0 {
			return i
		}
	}
	return -1
}

// Indicator is the needle drawn over the chart.
type Indicator struct {
	Bucket   *Bucket
	Entry    *Entry
	Label    string
	Position int // chart column
	Exact    bool
}

// Indicator places the needle for the hovered entry, the hovered bucket or,
// failing both, the topmost visible entry. It reports false when there is
// nothing to point at.
func (s *Session) Indicator() (Indicator, bool) {
	if b := s.view.hoverBucket; b != nil {
		return Indicator{
			Bucket:   b,
			Label:    s.hist.layout.Label + " @ " + s.formatBucket(b),
			Position: b.Offset,
		}, true
	}
	e := s.view.hoverEntry
	exact := e != nil
	if e == nil {
		e = s.view.visible
	}
	if e == nil || e.Bucket == nil {
		return Indicator{}, false
	}
	b := e.Bucket
	ind := Indicator{Bucket: b, Entry: e, Exact: exact, Position: b.Offset}
	if span := b.End - b.Start; span > 0 {
		frac := float64(e.Epoch-b.Start) / float64(span)
		frac = max(0, min(1, frac))
		ind.Position = b.Offset + int(frac*float64(s.hist.layout.BarWidth-1))
	}
	if exact {
		ind.Label = e.Time().In(s.cfg.Location).Format(EntryTimeFormat)
	} else {
		ind.Label = s.hist.layout.Label + " @ " + s.formatBucket(b)
	}
	return ind, true
}

func (s *Session) formatBucket(b *Bucket) string {
	return time.Unix(b.Start, 0).In(s.cfg.Location).Format(DateFormat(s.hist.layout.Unit))
}
