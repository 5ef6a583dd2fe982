package main

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/logscope/explorer"
)

func TestStackCells(t *testing.T) {
	E, W, I := explorer.Error, explorer.Warn, explorer.Info
	b := &explorer.Bucket{Count: 10, Error: 2, Warn: 3, Info: 5}
	assert.Equal(t, []explorer.Severity{E, E, W, W, I, I, I, I}, stackCells(b, 10, 8, false))
	assert.Len(t, stackCells(b, 20, 8, false), 4)
	assert.Len(t, stackCells(b, 1000, 8, true), 3)

	tiny := &explorer.Bucket{Count: 1, Info: 1}
	assert.Equal(t, []explorer.Severity{I}, stackCells(tiny, 1000, 8, false), "a non-empty bucket always shows")

	assert.Nil(t, stackCells(&explorer.Bucket{}, 10, 8, false))
	assert.Nil(t, stackCells(b, 0, 8, false))
	assert.Nil(t, stackCells(b, 10, 0, false))
}

func TestFeedRendererRows(t *testing.T) {
	r := newFeedRenderer(time.UTC)
	r.width = 40
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := &explorer.Entry{
		Cursor:   explorer.Cursor{Epoch: at.Unix()},
		Severity: explorer.Warn,
		Message:  "hello\nworld",
		Payload:  map[string]any{"msg": "hello\nworld", "svc": "api"},
	}

	h := r.CreateRow(e)
	rv, ok := h.(*rowView)
	require.True(t, ok)
	require.Len(t, rv.lines, 2)
	assert.Equal(t, "24-05-01 12:00:00.000 WARN  hello world", ansi.Strip(rv.lines[0]))
	assert.Equal(t, "  svc=api", ansi.Strip(rv.lines[1]))
	assert.Equal(t, 2, r.Height(h))

	e.Message = strings.Repeat("x", 100)
	e.Payload = map[string]any{"msg": e.Message}
	rv = r.CreateRow(e).(*rowView)
	require.Len(t, rv.lines, 1, "no tag line without tags")
	line := ansi.Strip(rv.lines[0])
	assert.Equal(t, 40, runewidth.StringWidth(line))
	assert.True(t, strings.HasSuffix(line, "…"))

	bar := r.CreateBar(&explorer.Bucket{Count: 1, Error: 1}, 1)
	assert.Equal(t, r.height, r.Height(bar))
	assert.Equal(t, 3, r.live)
	r.Destroy(h)
	r.Destroy(bar)
	assert.Equal(t, 1, r.live)
	assert.Equal(t, 0, r.Height(nil))
}
