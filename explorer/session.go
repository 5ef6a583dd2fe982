package explorer

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	tui "github.com/charmbracelet/bubbletea"

	"github.com/keilerkonzept/logscope/backend"
)

// Backend is the query service behind the explorer.
type Backend interface {
	Ticks(ctx context.Context, q backend.TicksQuery) ([]backend.Tick, error)
	Entries(ctx context.Context, q backend.EntriesQuery) ([]backend.Row, error)
}

type RequestKind int

const (
	TicksRequest RequestKind = iota
	PageRequest
)

func (k RequestKind) String() string {
	if k == PageRequest {
		return "page"
	}
	return "ticks"
}

// Response describes a completed request, whether or not it was applied.
type Response struct {
	Kind      RequestKind
	Direction Direction
	Elapsed   time.Duration
	Rows      int
	Stale     bool
	Err       error
}

// Observer is told about every completed request, every generation change and
// every batch of entries added to the feed.
type Observer interface {
	Observe(r Response)
	Reset(generation uint64)
	Added(entries []*Entry)
}

type nopObserver struct{}

func (nopObserver) Observe(Response) {}
func (nopObserver) Reset(uint64)     {}
func (nopObserver) Added([]*Entry)   {}

type Config struct {
	Backend  Backend
	Renderer Renderer
	Decoder  *Decoder
	Observer Observer
	Logger   *log.Logger
	Location *time.Location

	Width          int // chart width in columns
	ViewHeight     int // feed height in lines
	BarWidth       int
	BarGap         int
	PrefetchLines  int
	ScrollDebounce time.Duration
}

// Session owns every piece of mutable explorer state: the filter, the
// generation token, the bucket layout, the entry buffer and the viewport.
// It must only be used from the program's event loop; requests run as
// commands and come back as messages through Update.
type Session struct {
	cfg    Config
	ctx    context.Context
	gen    uint64
	filter Filter
	width  int
	hist   histogram
	buf    buffer
	view   viewport
	seed   *Cursor
	err    error
}

func New(ctx context.Context, cfg Config, f Filter) *Session {
	if cfg.Renderer == nil {
		cfg.Renderer = lineRenderer{}
	}
	if cfg.Decoder == nil {
		cfg.Decoder, _ = NewDecoder(DefaultMessagePath)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.BarWidth < 1 {
		cfg.BarWidth = 1
	}
	if f.Levels.Empty() {
		f.Levels = AllLevels
	}
	s := &Session{
		cfg:    cfg,
		ctx:    ctx,
		filter: f,
		width:  cfg.Width,
		view: viewport{
			height:    max(0, cfg.ViewHeight),
			threshold: cfg.PrefetchLines,
			debounce:  cfg.ScrollDebounce,
		},
	}
	s.buf.reset()
	s.hist = newHistogram(s.newLayout())
	return s
}

// Init lays out the chart and requests the first aggregation.
func (s *Session) Init() tui.Cmd {
	s.reset(false)
	return s.relayout()
}

// Messages produced by the session's commands.
type (
	TicksMsg struct {
		gen     uint64
		ticks   []backend.Tick
		err     error
		elapsed time.Duration
	}
	PageMsg struct {
		gen     uint64
		dir     Direction
		entries []*Entry
		skipped int
		err     error
		elapsed time.Duration
	}
	ScrollCheckMsg struct{ seq int }
)

type response interface {
	generation() uint64
	describe() Response
}

func (m TicksMsg) generation() uint64 { return m.gen }
func (m PageMsg) generation() uint64  { return m.gen }

func (m TicksMsg) describe() Response {
	return Response{Kind: TicksRequest, Elapsed: m.elapsed, Rows: len(m.ticks), Err: m.err}
}

func (m PageMsg) describe() Response {
	return Response{Kind: PageRequest, Direction: m.dir, Elapsed: m.elapsed, Rows: len(m.entries), Err: m.err}
}

// Update applies a session message. Responses from an older generation are
// dropped here, before any state is touched.
func (s *Session) Update(msg tui.Msg) tui.Cmd {
	if r, ok := msg.(response); ok {
		resp := r.describe()
		resp.Stale = r.generation() != s.gen
		s.cfg.Observer.Observe(resp)
		if resp.Stale {
			return nil
		}
	}
	switch msg := msg.(type) {
	case TicksMsg:
		return s.applyTicks(msg)
	case PageMsg:
		return s.applyPage(msg)
	case ScrollCheckMsg:
		if msg.seq != s.view.seq {
			return nil
		}
		return s.checkScroll()
	}
	return nil
}

// reset starts a new generation. A full reset drops every entry; otherwise
// entries inside the window survive.
func (s *Session) reset(full bool) {
	s.gen++
	s.seed = nil
	s.err = nil
	s.buf.reset()
	s.view.visible, s.view.hoverEntry, s.view.hoverBucket = nil, nil, nil

	var removed []*Entry
	if full {
		removed, s.buf.entries = s.buf.entries, nil
		s.view.offset = 0
	} else {
		removed = s.buf.retain(s.filter.Start, s.filter.End)
	}
	above := 0
	for _, e := range removed {
		if e.Epoch > s.filter.End {
			above += s.cfg.Renderer.Height(e.Handle)
		}
		s.destroyRow(e)
	}
	s.view.offset = max(0, s.view.offset-above)
	s.cfg.Observer.Reset(s.gen)
}

func (s *Session) newLayout() Layout {
	return NewLayout(s.width, s.cfg.BarWidth, s.cfg.BarGap, s.filter.Start, s.filter.End)
}

func (s *Session) relayout() tui.Cmd {
	for _, b := range s.hist.buckets {
		s.destroyBar(b)
	}
	s.hist = newHistogram(s.newLayout())
	s.assignBuckets()
	return s.requestTicks()
}

func (s *Session) requestTicks() tui.Cmd {
	var (
		gen = s.gen
		be  = s.cfg.Backend
		ctx = s.ctx
		q   = backend.TicksQuery{
			Expr:     s.filter.Expression,
			Levels:   s.filter.Levels.Params(),
			Epoch:    s.filter.End,
			Interval: s.hist.layout.Interval,
			Limit:    s.hist.layout.N,
		}
	)
	return func() tui.Msg {
		start := time.Now()
		ticks, err := be.Ticks(ctx, q)
		return TicksMsg{gen: gen, ticks: ticks, err: err, elapsed: time.Since(start)}
	}
}

func (s *Session) applyTicks(msg TicksMsg) tui.Cmd {
	if msg.err != nil {
		s.fail("histogram", msg.err)
		return nil
	}
	if len(msg.ticks) == 0 {
		// nothing in range: neither direction can produce entries
		s.hist.loaded = true
		s.buf.hasMore = [2]bool{}
		return nil
	}
	s.hist.apply(msg.ticks)
	for _, b := range s.hist.buckets {
		if b.Count > 0 {
			b.Handle = s.cfg.Renderer.CreateBar(b, s.hist.renderMax)
		}
	}
	s.hist.placeLabels(s.cfg.Location)
	s.assignBuckets()
	return tui.Batch(s.Load(After), s.Load(Before))
}

// Load requests the next page in dir. It is a no-op while a request in dir is
// in flight or once dir is exhausted.
func (s *Session) Load(dir Direction) tui.Cmd {
	if s.buf.loading[dir] || !s.buf.hasMore[dir] {
		return nil
	}
	s.buf.loading[dir] = true

	cursor := s.cursorFor(dir)
	var (
		gen = s.gen
		be  = s.cfg.Backend
		dec = s.cfg.Decoder
		ctx = s.ctx
		q   = backend.EntriesQuery{
			Expr:      s.filter.Expression,
			Levels:    s.filter.Levels.Params(),
			Direction: dir.String(),
			Epoch:     cursor.Epoch,
			Nanos:     cursor.Nanos,
			Limit:     PageSize,
		}
	)
	return func() tui.Msg {
		start := time.Now()
		rows, err := be.Entries(ctx, q)
		msg := PageMsg{gen: gen, dir: dir}
		if err == nil {
			msg.entries, msg.skipped, err = dec.DecodeAll(rows)
		}
		msg.err, msg.elapsed = err, time.Since(start)
		return msg
	}
}

func (s *Session) cursorFor(dir Direction) Cursor {
	if e := s.buf.edge(dir); e != nil {
		return e.Cursor
	}
	if s.seed != nil {
		return *s.seed
	}
	return Cursor{Epoch: s.filter.End}
}

func (s *Session) applyPage(msg PageMsg) tui.Cmd {
	dir := msg.dir
	s.buf.loading[dir] = false
	if msg.skipped > 0 && msg.err == nil {
		s.cfg.Logger.Printf("%s page: skipped %d undecodable rows", dir, msg.skipped)
	}
	switch {
	case msg.err != nil:
		s.fail(dir.String()+" page", msg.err)
	case len(msg.entries) == 0:
		s.buf.hasMore[dir] = false
		s.assignBuckets()
	default:
		s.addPage(msg.entries, dir)
	}
	return s.checkScroll()
}

func (s *Session) addPage(page []*Entry, dir Direction) {
	page, clipped := clipPage(page, dir, s.filter.Start, s.filter.End)
	if clipped {
		s.buf.hasMore[dir] = false
	}
	sortPage(page)
	added := s.buf.splice(page, dir)
	s.assignBuckets()

	height := 0
	for _, e := range added {
		e.Handle = s.cfg.Renderer.CreateRow(e)
		height += s.cfg.Renderer.Height(e.Handle)
	}
	if dir == After {
		// newer rows go in above the viewport; keep the visible ones still
		s.view.offset += height
	}
	if len(added) > 0 {
		s.cfg.Observer.Added(added)
	}

	far := dir.Opposite()
	if n := len(s.buf.entries) - MaxEntries; n > 0 && !s.buf.loading[far] {
		s.trim(far, n)
	}
}

// trim evicts n entries from edge; they can be fetched again later.
func (s *Session) trim(edge Direction, n int) {
	height := 0
	for _, e := range s.buf.evict(edge, n) {
		height += s.cfg.Renderer.Height(e.Handle)
		s.destroyRow(e)
	}
	s.buf.hasMore[edge] = true
	if edge == After {
		s.view.offset = max(0, s.view.offset-height)
	}
}

func (s *Session) assignBuckets() {
	for _, e := range s.buf.entries {
		e.Bucket = s.hist.bucketOf(e.Epoch)
	}
}

func (s *Session) destroyRow(e *Entry) {
	if e.Handle != nil {
		s.cfg.Renderer.Destroy(e.Handle)
		e.Handle = nil
	}
	e.Bucket = nil
	if s.view.hoverEntry == e {
		s.view.hoverEntry = nil
	}
	if s.view.visible == e {
		s.view.visible = nil
	}
}

func (s *Session) destroyBar(b *Bucket) {
	if b.Handle != nil {
		s.cfg.Renderer.Destroy(b.Handle)
		b.Handle = nil
	}
}

func (s *Session) fail(what string, err error) {
	s.err = err
	s.cfg.Logger.Printf("%s request failed: %v", what, err)
}

// SetExpression replaces the filter expression and fully resets.
func (s *Session) SetExpression(expr string) tui.Cmd {
	expr = strings.TrimSpace(expr)
	if expr == s.filter.Expression {
		return nil
	}
	s.filter.Expression = expr
	s.reset(true)
	return s.relayout()
}

// AddTerm narrows the expression with field:value.
func (s *Session) AddTerm(field, value string) tui.Cmd {
	return s.SetExpression(withTerm(s.filter.Expression, Term(field, value)))
}

// ToggleLevel flips one severity. Deselecting the last one is refused.
func (s *Session) ToggleLevel(sev Severity) tui.Cmd {
	return s.SetLevels(s.filter.Levels.Toggle(sev))
}

func (s *Session) SetLevels(l Levels) tui.Cmd {
	if l.Empty() || l == s.filter.Levels {
		return nil
	}
	s.filter.Levels = l
	s.reset(true)
	return s.relayout()
}

// SetWindow moves the time window, keeping loaded entries that still fall
// inside it.
func (s *Session) SetWindow(start, end int64) tui.Cmd {
	if end <= start {
		return nil
	}
	s.filter.Start, s.filter.End = start, end
	s.reset(false)
	return s.relayout()
}

// Zoom narrows (percent > 0) or widens (percent < 0) the window around its
// centre. A zoom that would invert the window is ignored.
func (s *Session) Zoom(percent int) tui.Cmd {
	f, ok := s.filter.zoomed(percent)
	if !ok {
		return nil
	}
	return s.SetWindow(f.Start, f.End)
}

func (s *Session) Pan(percent int) tui.Cmd {
	f, ok := s.filter.panned(percent)
	if !ok {
		return nil
	}
	return s.SetWindow(f.Start, f.End)
}

// Resize re-lays the chart out for a new width over the same window.
func (s *Session) Resize(width int) tui.Cmd {
	if width == s.width && s.hist.layout.Width == width {
		return nil
	}
	s.width = width
	s.reset(false)
	s.redrawRows()
	return s.relayout()
}

// JumpTo reloads the feed around the middle of a populated bucket.
func (s *Session) JumpTo(index int) tui.Cmd {
	if index < 0 || index >= len(s.hist.buckets) || s.hist.buckets[index].Count == 0 {
		return nil
	}
	mid := Cursor{Epoch: s.hist.buckets[index].Midpoint()}
	s.reset(true)
	s.seed = &mid
	s.assignBuckets()
	return tui.Batch(s.Load(After), s.Load(Before))
}

// Redraw recreates every handle, e.g. after the renderer's style changed.
func (s *Session) Redraw() {
	s.redrawRows()
	for _, b := range s.hist.buckets {
		s.destroyBar(b)
		if b.Count > 0 {
			b.Handle = s.cfg.Renderer.CreateBar(b, s.hist.renderMax)
		}
	}
}

func (s *Session) redrawRows() {
	for _, e := range s.buf.entries {
		if e.Handle != nil {
			s.cfg.Renderer.Destroy(e.Handle)
		}
		e.Handle = s.cfg.Renderer.CreateRow(e)
	}
	s.clampOffset()
}

func (s *Session) Filter() Filter           { return s.filter }
func (s *Session) Generation() uint64       { return s.gen }
func (s *Session) Err() error               { return s.err }
func (s *Session) Layout() Layout           { return s.hist.layout }
func (s *Session) Buckets() []*Bucket       { return s.hist.buckets }
func (s *Session) Labels() []AxisLabel      { return s.hist.labels }
func (s *Session) Loaded() bool             { return s.hist.loaded }
func (s *Session) Total() int64             { return s.hist.total }
func (s *Session) RenderMax() int64         { return s.hist.renderMax }
func (s *Session) Len() int                 { return len(s.buf.entries) }
func (s *Session) HasMore(d Direction) bool { return s.buf.hasMore[d] }
func (s *Session) Loading(d Direction) bool { return s.buf.loading[d] }

// PopulatedRange is the time span covered by non-empty buckets.
func (s *Session) PopulatedRange() (start, end time.Time, ok bool) {
	if s.hist.maxEpoch == 0 {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(s.hist.minEpoch, 0), time.Unix(s.hist.maxEpoch, 0), true
}

// Entries returns the buffer oldest first.
func (s *Session) Entries() []*Entry { return s.buf.entries }

// Rows returns the buffer in display order, newest first.
func (s *Session) Rows() []*Entry {
	out := make([]*Entry, len(s.buf.entries))
	for i, e := range s.buf.entries {
		out[len(out)-1-i] = e
	}
	return out
}
