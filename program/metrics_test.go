package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keilerkonzept/logscope/explorer"
)

func TestDurationRingSnapshot(t *testing.T) {
	r := newDurationRing(3)
	assert.Equal(t, durationStats{}, r.snapshot())

	for _, ms := range []int{10, 40, 20, 30} {
		r.add(time.Duration(ms) * time.Millisecond)
	}
	s := r.snapshot()
	assert.Equal(t, 3, s.n)
	assert.Equal(t, 30*time.Millisecond, s.last)
	assert.Equal(t, 40*time.Millisecond, s.max)
	assert.Equal(t, 30*time.Millisecond, s.avg, "the oldest sample was overwritten")
}

func TestRequestMetricsObserve(t *testing.T) {
	m := newRequestMetrics(16, true)
	m.Reset(3)
	m.Observe(explorer.Response{Kind: explorer.TicksRequest, Elapsed: 4 * time.Millisecond, Rows: 120})
	m.Observe(explorer.Response{Kind: explorer.PageRequest, Elapsed: 8 * time.Millisecond, Rows: 10})
	m.Observe(explorer.Response{Kind: explorer.PageRequest, Elapsed: time.Second, Stale: true, Rows: 10})
	m.Observe(explorer.Response{Kind: explorer.PageRequest, Elapsed: 2 * time.Millisecond, Err: errors.New("boom")})

	s := m.snapshot()
	assert.EqualValues(t, 4, s.requests)
	assert.EqualValues(t, 1, s.stale)
	assert.EqualValues(t, 1, s.failures)
	assert.EqualValues(t, 130, s.rows, "stale responses are not counted as rows")
	assert.EqualValues(t, 3, s.generation)
	assert.Equal(t, 4*time.Millisecond, s.ticks.max)
	assert.Equal(t, 8*time.Millisecond, s.pages.max)
	assert.Equal(t, 5*time.Millisecond, s.pages.avg)

	lines := s.lines()
	assert.Len(t, lines, 5)
	assert.Equal(t, "ticks avg/max: 4.000ms / 4.000ms", lines[1])
	assert.Equal(t, "sent 4  stale 1  failed 1", lines[3])
}

func TestRequestMetricsDisabled(t *testing.T) {
	m := newRequestMetrics(16, false)
	m.Observe(explorer.Response{Rows: 5})
	assert.Equal(t, snapshot{}, m.snapshot())
}

func TestObserversFanOut(t *testing.T) {
	a, b := newRequestMetrics(16, true), newRequestMetrics(16, true)
	o := observers{a, b}
	o.Reset(7)
	o.Observe(explorer.Response{Rows: 2})
	o.Added(nil)
	for _, m := range []*requestMetrics{a, b} {
		assert.EqualValues(t, 7, m.generation)
		assert.EqualValues(t, 2, m.rows)
	}
}

func TestFormatMetricDuration(t *testing.T) {
	assert.Equal(t, "0.000ms", formatMetricDuration(0))
	assert.Equal(t, "1.500ms", formatMetricDuration(1500*time.Microsecond))
}
