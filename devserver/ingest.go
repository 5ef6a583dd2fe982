package devserver

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

const defaultBatch = 500

// Ingester buffers slog records as JSON lines and writes them to the store in
// batches.
type Ingester struct {
	store *Store
	batch int

	mu      sync.Mutex
	buf     bytes.Buffer
	pending []Record
}

func NewIngester(store *Store, batch int) *Ingester {
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Ingester{store: store, batch: batch}
}

// Handler returns a slog.Handler that ingests every record it handles.
func (in *Ingester) Handler(opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	return &ingestHandler{in: in, json: slog.NewJSONHandler(&in.buf, opts)}
}

// Flush writes pending records.
func (in *Ingester) Flush(ctx context.Context) error {
	in.mu.Lock()
	records := in.pending
	in.pending = nil
	in.mu.Unlock()
	return in.store.Insert(ctx, records)
}

func (in *Ingester) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}

type ingestHandler struct {
	in   *Ingester
	json slog.Handler
}

func (h *ingestHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.json.Enabled(ctx, l)
}

func (h *ingestHandler) Handle(ctx context.Context, r slog.Record) error {
	in := h.in
	r.Time = r.Time.UTC()

	in.mu.Lock()
	in.buf.Reset()
	if err := h.json.Handle(ctx, r); err != nil {
		in.mu.Unlock()
		return err
	}
	in.pending = append(in.pending, Record{
		Time:    r.Time,
		Level:   int(r.Level),
		Content: string(bytes.TrimSpace(in.buf.Bytes())),
	})
	full := len(in.pending) >= in.batch
	in.mu.Unlock()

	if full {
		return in.Flush(ctx)
	}
	return nil
}

func (h *ingestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ingestHandler{in: h.in, json: h.json.WithAttrs(attrs)}
}

func (h *ingestHandler) WithGroup(name string) slog.Handler {
	return &ingestHandler{in: h.in, json: h.json.WithGroup(name)}
}
