package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	"github.com/keilerkonzept/topk"
	"github.com/keilerkonzept/topk/heap"

	"github.com/keilerkonzept/logscope/explorer"
)

// tagRanker keeps a ranked view of the sketch's heavy hitters. A full
// re-sort happens every fullRefresh; in between only the counts of the first
// partialSize items are re-read and re-sorted.
type tagRanker struct {
	k           int
	fullRefresh time.Duration
	partialSize int

	lastFullRefresh time.Time
	items           []heap.Item
}

func newTagRanker(k int, fullRefresh time.Duration, partialSize int) *tagRanker {
	if k < 1 {
		k = 1
	}
	if fullRefresh < 0 {
		fullRefresh = 2 * time.Second
	}
	if partialSize < 0 {
		partialSize = 0
	}
	return &tagRanker{
		k:           k,
		fullRefresh: fullRefresh,
		partialSize: partialSize,
	}
}

// reset forces the next refresh to be a full one.
func (r *tagRanker) reset() {
	r.items = nil
	r.lastFullRefresh = time.Time{}
}

// refresh returns the current ranking. sortedFn returns the sketch's full
// top-k view; updateCountsFn re-reads the counts of the first limit items.
func (r *tagRanker) refresh(now time.Time, visibleItems int, sortedFn func() []heap.Item, updateCountsFn func(items []heap.Item, limit int)) (items []heap.Item, didFull bool) {
	needFull := len(r.items) == 0 || r.lastFullRefresh.IsZero()
	if r.fullRefresh == 0 || now.Sub(r.lastFullRefresh) >= r.fullRefresh {
		needFull = true
	}
	if needFull {
		r.items = sortedFn()
		if len(r.items) > r.k {
			r.items = r.items[:r.k]
		}
		r.lastFullRefresh = now
		return cloneItems(r.items), true
	}

	limit := len(r.items)
	if visibleItems > 0 && visibleItems < limit {
		limit = visibleItems
	}
	if r.partialSize > 0 && r.partialSize < limit {
		limit = r.partialSize
	}
	updateCountsFn(r.items, limit)
	sort.SliceStable(r.items[:limit], func(i, j int) bool {
		li, lj := r.items[i], r.items[j]
		if li.Count != lj.Count {
			return li.Count > lj.Count
		}
		return li.Item < lj.Item
	})
	return cloneItems(r.items), false
}

func cloneItems(in []heap.Item) []heap.Item {
	out := make([]heap.Item, len(in))
	copy(out, in)
	return out
}

// tagBoard ranks the payload tags of every entry loaded in the current
// generation and shows them as a selectable leaderboard.
type tagBoard struct {
	k      int
	sketch *topk.Sketch
	ranker *tagRanker
	tags   map[string]explorer.Tag
	dirty  bool

	list     list.Model
	delegate *list.DefaultDelegate
}

func newTagBoard(k int, fullRefresh time.Duration) *tagBoard {
	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = styles.NewStyle().
		Border(styles.NormalBorder(), false, false, false, true).
		BorderForeground(borderColor).
		Foreground(selectedColor).
		Padding(0, 0, 0, 1)
	d.Styles.SelectedDesc = d.Styles.SelectedTitle
	d.ShowDescription = true

	l := list.New(nil, d, 20, 10)
	l.Styles.NoItems = l.Styles.NoItems.Padding(0, 2)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)

	b := &tagBoard{
		k:        k,
		ranker:   newTagRanker(k, fullRefresh, k/2),
		list:     l,
		delegate: &d,
	}
	b.Reset(0)
	return b
}

func (b *tagBoard) newSketch() *topk.Sketch {
	return topk.New(b.k, topk.WithWidth(1024), topk.WithDepth(3), topk.WithDecay(0.9))
}

func (b *tagBoard) Observe(explorer.Response) {}

// Reset starts counting from scratch for a new generation.
func (b *tagBoard) Reset(uint64) {
	b.sketch = b.newSketch()
	b.tags = make(map[string]explorer.Tag)
	b.ranker.reset()
	b.dirty = true
}

func (b *tagBoard) Added(entries []*explorer.Entry) {
	for _, e := range entries {
		for _, t := range e.Tags() {
			item := t.String()
			b.tags[item] = t
			b.sketch.Incr(item)
		}
	}
	b.dirty = len(entries) > 0 || b.dirty
}

// refresh re-ranks the tags and updates the list. It is a no-op when nothing
// was added since the last full refresh.
func (b *tagBoard) refresh(now time.Time) tui.Cmd {
	if !b.dirty {
		return nil
	}
	items, didFull := b.ranker.refresh(now, b.list.Height(),
		b.sketch.SortedSlice,
		func(items []heap.Item, limit int) {
			for i := 0; i < limit; i++ {
				items[i].Count = b.sketch.Count(items[i].Item)
			}
		},
	)
	if didFull {
		b.dirty = false
	}
	return b.setItems(items)
}

func (b *tagBoard) setItems(items []heap.Item) tui.Cmd {
	numDecimals := 1 + int(math.Ceil(math.Log10(float64(b.k+1))))
	pad := strings.Repeat(" ", numDecimals+1)
	rankFormat := "#%-" + fmt.Sprint(numDecimals) + "d"

	var (
		selected = b.list.SelectedItem()
		out      = make([]list.Item, 0, len(items))
		keep     = -1
	)
	for i, item := range items {
		if item.Count == 0 {
			continue
		}
		t, ok := b.tags[item.Item]
		if !ok {
			continue
		}
		li := tagItem{TitlePrefix: fmt.Sprintf(rankFormat, i+1), DescriptionPrefix: pad, Tag: t, Count: item.Count}
		if s, ok := selected.(tagItem); ok && s.Tag == t {
			keep = len(out)
		}
		out = append(out, li)
	}
	cmd := b.list.SetItems(out)
	if keep >= 0 {
		b.list.Select(keep)
	}
	return cmd
}

// selected is the highlighted tag, if any.
func (b *tagBoard) selected() (explorer.Tag, bool) {
	it, ok := b.list.SelectedItem().(tagItem)
	if !ok {
		return explorer.Tag{}, false
	}
	return it.Tag, true
}

func (b *tagBoard) setSize(w, h int) { b.list.SetSize(w, h) }

func (b *tagBoard) setFocused(focused bool) {
	b.delegate.Styles.SelectedTitle = b.delegate.Styles.SelectedTitle.Bold(focused)
	b.delegate.Styles.SelectedDesc = b.delegate.Styles.SelectedDesc.Bold(focused)
	b.list.SetDelegate(b.delegate)
}

func (b *tagBoard) view() string { return b.list.View() }

type tagItem struct {
	TitlePrefix       string
	DescriptionPrefix string
	explorer.Tag
	Count uint32
}

func (i tagItem) Title() string       { return fmt.Sprintf("%s %s", i.TitlePrefix, i.Tag.String()) }
func (i tagItem) Description() string { return countf("%s %d", i.DescriptionPrefix, i.Count) }
func (i tagItem) FilterValue() string { return i.Tag.String() }
