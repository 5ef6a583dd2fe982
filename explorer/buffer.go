package explorer

import "sort"

type Direction int

const (
	// Before pages towards older entries (bottom of the feed).
	Before Direction = iota
	// After pages towards newer entries (top of the feed).
	After
)

func (d Direction) String() string {
	if d == After {
		return "after"
	}
	return "before"
}

func (d Direction) Opposite() Direction { return 1 - d }

const (
	PageSize   = 10
	MaxEntries = 60
)

// buffer holds entries in strictly ascending cursor order together with the
// per-direction paging flags.
type buffer struct {
	entries []*Entry
	hasMore [2]bool
	loading [2]bool
}

func (b *buffer) reset() {
	b.hasMore = [2]bool{true, true}
	b.loading = [2]bool{}
}

// edge returns the entry a page in dir continues from.
func (b *buffer) edge(dir Direction) *Entry {
	if len(b.entries) == 0 {
		return nil
	}
	if dir == After {
		return b.entries[len(b.entries)-1]
	}
	return b.entries[0]
}

// clipPage drops every entry past the window on the paging side, wherever it
// sits in the page. It reports whether anything was dropped.
func clipPage(page []*Entry, dir Direction, start, end int64) ([]*Entry, bool) {
	out := page[:0:0]
	clipped := false
	for _, e := range page {
		if (dir == After && e.Epoch > end) || (dir == Before && e.Epoch < start) {
			clipped = true
			continue
		}
		out = append(out, e)
	}
	return out, clipped
}

func sortPage(page []*Entry) {
	sort.SliceStable(page, func(i, j int) bool {
		return page[i].Cursor.Compare(page[j].Cursor) < 0
	})
}

// splice adds a sorted page at the dir end and returns the entries actually
// added. Entries that are not strictly beyond the current edge, or that repeat
// a cursor inside the page, are dropped.
func (b *buffer) splice(page []*Entry, dir Direction) []*Entry {
	added := make([]*Entry, 0, len(page))
	var last *Entry
	edge := b.edge(dir)
	for _, e := range page {
		if last != nil && last.Cursor.Compare(e.Cursor) == 0 {
			continue
		}
		if edge != nil {
			c := e.Cursor.Compare(edge.Cursor)
			if (dir == After && c <= 0) || (dir == Before && c >= 0) {
				continue
			}
		}
		added = append(added, e)
		last = e
	}
	if dir == After {
		b.entries = append(b.entries, added...)
	} else {
		grown := make([]*Entry, 0, len(added)+len(b.entries))
		b.entries = append(append(grown, added...), b.entries...)
	}
	return added
}

// evict removes n entries from the dir end and returns them.
func (b *buffer) evict(dir Direction, n int) []*Entry {
	n = min(n, len(b.entries))
	if n <= 0 {
		return nil
	}
	var out []*Entry
	if dir == After {
		cut := len(b.entries) - n
		out = append(out, b.entries[cut:]...)
		b.entries = b.entries[:cut]
	} else {
		out = append(out, b.entries[:n]...)
		b.entries = append(b.entries[:0:0], b.entries[n:]...)
	}
	return out
}

// retain keeps the entries with start <= epoch <= end and returns the rest.
func (b *buffer) retain(start, end int64) (removed []*Entry) {
	kept := b.entries[:0:0]
	for _, e := range b.entries {
		if e.Epoch < start || e.Epoch > end {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return removed
}
