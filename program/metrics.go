package main

import (
	"time"

	"github.com/keilerkonzept/logscope/explorer"
)

type durationRing struct {
	buf   []time.Duration
	idx   int
	count int
}

func newDurationRing(n int) *durationRing {
	if n < 1 {
		n = 1
	}
	return &durationRing{buf: make([]time.Duration, n)}
}

func (r *durationRing) add(d time.Duration) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.idx] = d
	r.idx++
	if r.idx >= len(r.buf) {
		r.idx = 0
	}
	if r.count < len(r.buf) {
		r.count++
	}
}

type durationStats struct {
	last time.Duration
	max  time.Duration
	avg  time.Duration
	n    int
}

func (r *durationRing) snapshot() durationStats {
	if r.count == 0 {
		return durationStats{}
	}
	var sum time.Duration
	var max time.Duration
	for i := 0; i < r.count; i++ {
		d := r.buf[i]
		sum += d
		if d > max {
			max = d
		}
	}

	lastIdx := r.idx - 1
	if lastIdx < 0 {
		lastIdx = len(r.buf) - 1
	}
	return durationStats{
		last: r.buf[lastIdx],
		max:  max,
		avg:  sum / time.Duration(r.count),
		n:    r.count,
	}
}

// requestMetrics observes the session's requests. It is only touched from
// the event loop.
type requestMetrics struct {
	enabled bool

	ticks *durationRing
	pages *durationRing

	requests   uint64
	stale      uint64
	failures   uint64
	rows       uint64
	generation uint64
}

func newRequestMetrics(window int, enabled bool) *requestMetrics {
	return &requestMetrics{
		enabled: enabled,
		ticks:   newDurationRing(window),
		pages:   newDurationRing(window),
	}
}

func (m *requestMetrics) Observe(r explorer.Response) {
	if !m.enabled {
		return
	}
	m.requests++
	switch {
	case r.Stale:
		m.stale++
		return
	case r.Err != nil:
		m.failures++
	}
	if r.Kind == explorer.TicksRequest {
		m.ticks.add(r.Elapsed)
	} else {
		m.pages.add(r.Elapsed)
	}
	m.rows += uint64(r.Rows)
}

func (m *requestMetrics) Reset(generation uint64) { m.generation = generation }

func (m *requestMetrics) Added([]*explorer.Entry) {}

type snapshot struct {
	requests   uint64
	stale      uint64
	failures   uint64
	rows       uint64
	generation uint64
	ticks      durationStats
	pages      durationStats
}

func (m *requestMetrics) snapshot() snapshot {
	if !m.enabled {
		return snapshot{}
	}
	return snapshot{
		requests:   m.requests,
		stale:      m.stale,
		failures:   m.failures,
		rows:       m.rows,
		generation: m.generation,
		ticks:      m.ticks.snapshot(),
		pages:      m.pages.snapshot(),
	}
}

func (s snapshot) lines() []string {
	return []string{
		"REQUESTS",
		"ticks avg/max: " + formatMetricDuration(s.ticks.avg) + " / " + formatMetricDuration(s.ticks.max),
		"pages avg/max: " + formatMetricDuration(s.pages.avg) + " / " + formatMetricDuration(s.pages.max),
		countf("sent %d  stale %d  failed %d", s.requests, s.stale, s.failures),
		countf("rows %d  generation %d", s.rows, s.generation),
	}
}

// observers fans every session notification out to each member.
type observers []explorer.Observer

func (o observers) Observe(r explorer.Response) {
	for _, x := range o {
		x.Observe(r)
	}
}

func (o observers) Reset(generation uint64) {
	for _, x := range o {
		x.Reset(generation)
	}
}

func (o observers) Added(entries []*explorer.Entry) {
	for _, x := range o {
		x.Added(entries)
	}
}
