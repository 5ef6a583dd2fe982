package explorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewFilter(t *testing.T) {
	end := time.Unix(t0, 0)
	f := NewFilter("  timeout  ", end.Add(-time.Hour), end)
	assert.Equal(t, "timeout", f.Expression)
	assert.Equal(t, AllLevels, f.Levels)
	assert.Equal(t, int64(3600), f.Span())
}

func TestFilterZoom(t *testing.T) {
	f := Filter{Start: 0, End: 1000}

	in, ok := f.zoomed(10)
	assert.True(t, ok)
	assert.Equal(t, int64(100), in.Start)
	assert.Equal(t, int64(900), in.End)

	out, ok := f.zoomed(-10)
	assert.True(t, ok)
	assert.Equal(t, int64(-100), out.Start)
	assert.Equal(t, int64(1100), out.End)

	_, ok = f.zoomed(50)
	assert.False(t, ok, "zooming by half from both sides empties the window")

	_, ok = Filter{Start: 5, End: 5}.zoomed(-10)
	assert.False(t, ok)
}

func TestFilterPan(t *testing.T) {
	f, ok := Filter{Start: 0, End: 1000}.panned(25)
	assert.True(t, ok)
	assert.Equal(t, int64(250), f.Start)
	assert.Equal(t, int64(1250), f.End)

	_, ok = Filter{Start: 0, End: 0}.panned(25)
	assert.False(t, ok)
}

func TestTerm(t *testing.T) {
	assert.Equal(t, "svc:api", Term("svc", "api"))
	assert.Equal(t, `msg:"disk full"`, Term("msg", "disk full"))
	assert.Equal(t, `user:""`, Term("user", ""))
	assert.Equal(t, `q:"f(x)"`, Term("q", "f(x)"))
}

func TestWithTerm(t *testing.T) {
	for _, tc := range []struct{ expr, want string }{
		{"", "svc:api"},
		{"  ", "svc:api"},
		{"timeout", "timeout AND svc:api"},
		{`msg:"disk full"`, `msg:"disk full" AND svc:api`},
		{"timeout refused", "(timeout refused) AND svc:api"},
		{"(timeout refused)", "(timeout refused) AND svc:api"},
		{"(a) (b)", "((a) (b)) AND svc:api"},
	} {
		assert.Equal(t, tc.want, withTerm(tc.expr, "svc:api"), tc.expr)
	}
}
