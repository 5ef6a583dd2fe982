package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keilerkonzept/logscope/backend"
)

func TestHandlerThroughClient(t *testing.T) {
	s := openStore(t,
		rec(t0+1, 0, 0, `{"msg":"hello","svc":"api"}`),
		rec(t0+2, 5, 8, `{"msg":"boom","svc":"api"}`),
	)
	srv := httptest.NewServer(Handler(s, nil))
	defer srv.Close()

	c, err := backend.NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	ticks, err := c.Ticks(ctx, backend.TicksQuery{Epoch: t0 + 10, Interval: 5, Limit: 2})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.EqualValues(t, 2, ticks[0].Count)
	assert.EqualValues(t, 1, ticks[0].Error)

	rows, err := c.Entries(ctx, backend.EntriesQuery{Direction: "before", Epoch: t0 + 10, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, backend.Row{Epoch: t0 + 2, Nanos: 5, Level: 8, Payload: `{"msg":"boom","svc":"api"}`}, rows[0])

	rows, err = c.Entries(ctx, backend.EntriesQuery{Direction: "after", Epoch: t0 + 10, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = c.Entries(ctx, backend.EntriesQuery{Direction: "after", Expr: "(oops", Limit: 10})
	require.ErrorIs(t, err, backend.ErrStatus)
	assert.Contains(t, err.Error(), "unbalanced")

	_, err = c.Ticks(ctx, backend.TicksQuery{Epoch: t0})
	assert.ErrorIs(t, err, backend.ErrStatus)
}

func TestHandlerEchoesRequestID(t *testing.T) {
	s := openStore(t)
	srv := httptest.NewServer(Handler(s, nil))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/entries?dir=after&epoch=1", nil)
	require.NoError(t, err)
	req.Header.Set(backend.RequestIDHeader, "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", resp.Header.Get(backend.RequestIDHeader))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestDemoServesSeededData(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	end := time.Now()
	d, err := StartDemo(ctx, GenerateConfig{Count: 300, End: end, Span: 10 * time.Minute, Seed: 1}, 10*time.Millisecond, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	c, err := backend.NewClient(d.URL())
	require.NoError(t, err)
	rows, err := c.Entries(ctx, backend.EntriesQuery{Direction: "before", Epoch: end.Unix() + 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	require.Eventually(t, func() bool {
		n, err := d.Store().Count(ctx)
		return err == nil && n > 300
	}, 2*time.Second, 10*time.Millisecond, "live records keep arriving")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("demo did not stop")
	}
}
