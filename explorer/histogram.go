package explorer

import (
	"math"
	"strconv"
	"time"

	"github.com/keilerkonzept/logscope/backend"
)

// Bucket is one histogram column. [Start, End) is half-open, in epoch seconds.
type Bucket struct {
	Index  int
	Start  int64
	End    int64
	Offset int // column of the bar's left edge inside the chart

	Count int64
	Debug int64
	Info  int64
	Warn  int64
	Error int64

	Handle Handle
}

func (b *Bucket) Contains(epoch int64) bool {
	return epoch >= b.Start && epoch < b.End
}

// CountOf returns the count of one severity.
func (b *Bucket) CountOf(s Severity) int64 {
	switch s {
	case Debug:
		return b.Debug
	case Info:
		return b.Info
	case Warn:
		return b.Warn
	case Error:
		return b.Error
	}
	return 0
}

// Midpoint is where a jump into the bucket seeds both page directions.
func (b *Bucket) Midpoint() int64 {
	return b.Start + ceilDiv(b.End-b.Start, 2)
}

// Interval units.
const (
	UnitSeconds = "s"
	UnitMinutes = "m"
	UnitHours   = "h"
	UnitDays    = "d"
)

// ClassifyInterval picks the coarsest unit the interval still fits under and
// formats the interval in it, rounding up.
func ClassifyInterval(seconds int64) (unit, label string) {
	s := float64(seconds)
	minutes := round1(s / 60)
	hours := round1(s / 3600)
	days := round1(s / 86400)
	switch {
	case s < 60:
		return UnitSeconds, strconv.FormatInt(seconds, 10) + UnitSeconds
	case minutes < 60:
		return UnitMinutes, ceilLabel(minutes) + UnitMinutes
	case hours < 24:
		return UnitHours, ceilLabel(hours) + UnitHours
	}
	return UnitDays, ceilLabel(days) + UnitDays
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }

func ceilLabel(x float64) string { return strconv.FormatInt(int64(math.Ceil(x)), 10) }

// DateFormat is the time layout used for axis and highlight labels of a unit.
func DateFormat(unit string) string {
	switch unit {
	case UnitHours:
		return "01-02 15:04"
	case UnitDays:
		return "2006-01-02 15:04"
	}
	return "01-02 15:04:05"
}

// Layout is the bucket geometry for one chart width and window.
type Layout struct {
	Width    int
	BarWidth int
	BarGap   int

	Start, End int64
	N          int
	Interval   int64
	Unit       string
	Label      string
}

func NewLayout(width, barWidth, barGap int, start, end int64) Layout {
	l := Layout{
		Width:    width,
		BarWidth: max(1, barWidth),
		BarGap:   max(0, barGap),
		Start:    start,
		End:      end,
	}
	l.N = max(1, width/l.Pitch())
	l.Interval = max(1, ceilDiv(end-start, int64(l.N)))
	l.Unit, l.Label = ClassifyInterval(l.Interval)
	return l
}

// Pitch is bar width plus inter-bar gap.
func (l Layout) Pitch() int { return l.BarWidth + l.BarGap }

// Buckets builds the empty columns. They span the same series the backend
// aggregates: N intervals ending at the window end.
func (l Layout) Buckets() []*Bucket {
	out := make([]*Bucket, l.N)
	for i := range out {
		start := l.End - int64(l.N-i)*l.Interval
		out[i] = &Bucket{
			Index:  i,
			Start:  start,
			End:    start + l.Interval,
			Offset: i * l.Pitch(),
		}
	}
	return out
}

// AxisLabel is a date mark under the chart.
type AxisLabel struct {
	Index  int
	Offset int
	Text   string
}

// WideChart is the chart width from which the dense label set is used.
const WideChart = 60

var (
	wideLabelPercents   = []int{5, 15, 25, 35, 50, 65, 75, 85, 95}
	narrowLabelPercents = []int{5, 50, 95}
)

// histogram is the aggregator state of one layout.
type histogram struct {
	layout    Layout
	buckets   []*Bucket
	loaded    bool
	total     int64
	renderMax int64
	minEpoch  int64 // populated range; zero when nothing is populated
	maxEpoch  int64
	labels    []AxisLabel
}

func newHistogram(l Layout) histogram {
	return histogram{layout: l, buckets: l.Buckets()}
}

// apply fills counts from a non-empty aggregation result.
func (h *histogram) apply(ticks []backend.Tick) {
	var top int64
	for _, t := range ticks {
		if t.Index < 0 || t.Index >= len(h.buckets) {
			continue
		}
		b := h.buckets[t.Index]
		b.Count, b.Debug, b.Info, b.Warn, b.Error = t.Count, t.Debug, t.Info, t.Warn, t.Error
		if t.End > t.Start {
			b.Start, b.End = t.Start, t.End
		}
		h.total += t.Count
		top = max(top, t.Count)
	}
	// headroom so the tallest bar never touches the top
	h.renderMax = int64(math.Floor(float64(top) * 1.2))
	h.loaded = true

	h.minEpoch, h.maxEpoch = 0, 0
	for _, b := range h.buckets {
		if b.Count == 0 {
			continue
		}
		if h.minEpoch == 0 || b.Start < h.minEpoch {
			h.minEpoch = b.Start
		}
		h.maxEpoch = max(h.maxEpoch, b.End)
	}
}

// placeLabels resolves each percentile to the nearest populated bucket.
func (h *histogram) placeLabels(loc *time.Location) {
	h.labels = h.labels[:0]
	pcts := narrowLabelPercents
	if h.layout.Width >= WideChart {
		pcts = wideLabelPercents
	}
	format := DateFormat(h.layout.Unit)
	seen := map[int]bool{}
	for _, p := range pcts {
		i := h.nearestPopulated((len(h.buckets) - 1) * p / 100)
		if i < 0 || seen[i] {
			continue
		}
		seen[i] = true
		b := h.buckets[i]
		h.labels = append(h.labels, AxisLabel{
			Index:  i,
			Offset: b.Offset,
			Text:   time.Unix(b.Start, 0).In(loc).Format(format),
		})
	}
}

func (h *histogram) nearestPopulated(i int) int {
	for d := 0; d < len(h.buckets); d++ {
		if lo := i - d; lo >= 0 && lo < len(h.buckets) && h.buckets[lo].Count > 0 {
			return lo
		}
		if hi := i + d; hi < len(h.buckets) && h.buckets[hi].Count > 0 {
			return hi
		}
	}
	return -1
}

// bucketOf is a linear scan; bucket count is bounded by the display width.
func (h *histogram) bucketOf(epoch int64) *Bucket {
	for _, b := range h.buckets {
		if b.Contains(epoch) {
			return b
		}
	}
	if n := len(h.buckets); n > 0 && epoch == h.buckets[n-1].End {
		return h.buckets[n-1]
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}
