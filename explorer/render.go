package explorer

// Handle is an opaque reference to something a Renderer drew.
type Handle any

// Renderer is the display capability the session needs: create a row or a
// bar, measure it, and destroy it. Heights are in display lines.
type Renderer interface {
	CreateRow(e *Entry) Handle
	CreateBar(b *Bucket, renderMax int64) Handle
	Height(h Handle) int
	Destroy(h Handle)
}

// lineRenderer gives every row a height of one line and draws nothing.
type lineRenderer struct{}

func (lineRenderer) CreateRow(e *Entry) Handle           { return e.Cursor }
func (lineRenderer) CreateBar(b *Bucket, _ int64) Handle { return b.Index }
func (lineRenderer) Height(Handle) int                   { return 1 }
func (lineRenderer) Destroy(Handle)                      {}
