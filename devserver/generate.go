package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// GenerateConfig shapes a synthetic data set.
type GenerateConfig struct {
	Count int
	End   time.Time
	Span  time.Duration
	Seed  uint64
	// Bursts is the number of short incidents with elevated error rates.
	Bursts int
}

type service struct {
	name     string
	messages []string
}

var services = []service{
	{"api", []string{"request served", "request served", "request served", "slow request", "upstream timeout", "client closed request"}},
	{"auth", []string{"login ok", "login failed", "token refreshed", "session expired"}},
	{"worker", []string{"job started", "job finished", "job retried", "queue backlog high"}},
	{"billing", []string{"invoice created", "payment captured", "payment declined", "card expired"}},
}

var (
	hosts = []string{"node-1", "node-2", "node-3", "node-4"}
	users = []string{"alice", "bob", "carol", "dave", "erin"}
	paths = []string{"/v1/orders", "/v1/users", "/v1/search", "/healthz"}
)

// Generator emits synthetic records through a slog handler.
type Generator struct {
	handler slog.Handler
	rng     *rand.Rand
}

func NewGenerator(h slog.Handler, seed uint64) *Generator {
	return &Generator{handler: h, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Backfill emits cfg.Count records spread over [End-Span, End).
func (g *Generator) Backfill(ctx context.Context, cfg GenerateConfig) error {
	if cfg.Span <= 0 {
		return fmt.Errorf("span must be positive")
	}
	start := cfg.End.Add(-cfg.Span)

	type burst struct {
		at  time.Time
		len time.Duration
	}
	bursts := make([]burst, cfg.Bursts)
	for i := range bursts {
		bursts[i] = burst{
			at:  start.Add(time.Duration(g.rng.Int64N(int64(cfg.Span)))),
			len: cfg.Span / 50,
		}
	}

	for i := 0; i < cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			t       time.Time
			inBurst bool
		)
		// a fifth of the traffic lands inside incidents
		if len(bursts) > 0 && g.rng.IntN(5) == 0 {
			b := bursts[g.rng.IntN(len(bursts))]
			t = b.at.Add(time.Duration(g.rng.Int64N(int64(b.len) + 1)))
			inBurst = true
		} else {
			t = start.Add(time.Duration(g.rng.Int64N(int64(cfg.Span))))
		}
		if !t.Before(cfg.End) {
			t = cfg.End.Add(-time.Nanosecond)
		}
		if err := g.emit(ctx, t, inBurst); err != nil {
			return err
		}
	}
	return nil
}

// Stream emits one record stamped with the current time every interval until
// ctx is done.
func (g *Generator) Stream(ctx context.Context, interval time.Duration, flush func(context.Context) error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			err := g.emit(ctx, now, false)
			if err == nil {
				err = flush(ctx)
			}
			if err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

func (g *Generator) level(inBurst bool) slog.Level {
	n := g.rng.IntN(100)
	if inBurst {
		n += 40
	}
	switch {
	case n < 15:
		return slog.LevelDebug
	case n < 80:
		return slog.LevelInfo
	case n < 92:
		return slog.LevelWarn
	}
	return slog.LevelError
}

func (g *Generator) emit(ctx context.Context, t time.Time, inBurst bool) error {
	svc := services[g.rng.IntN(len(services))]
	lvl := g.level(inBurst)
	r := slog.NewRecord(t, lvl, svc.messages[g.rng.IntN(len(svc.messages))], 0)
	r.AddAttrs(
		slog.String("svc", svc.name),
		slog.String("host", hosts[g.rng.IntN(len(hosts))]),
		slog.String("trace_id", g.traceID()),
	)
	switch svc.name {
	case "api":
		status := 200
		if lvl >= slog.LevelError {
			status = 500 + g.rng.IntN(4)
		} else if lvl == slog.LevelWarn {
			status = 404
		}
		r.AddAttrs(
			slog.Int("status", status),
			slog.Int("latency_ms", 5+g.rng.IntN(400)),
			slog.Group("req",
				slog.String("method", "GET"),
				slog.String("path", paths[g.rng.IntN(len(paths))]),
			),
		)
	case "auth", "billing":
		r.AddAttrs(slog.String("user", users[g.rng.IntN(len(users))]))
	case "worker":
		r.AddAttrs(slog.Int("attempt", 1+g.rng.IntN(3)))
	}
	return g.handler.Handle(ctx, r)
}

func (g *Generator) traceID() string {
	var b [16]byte
	for i := range b {
		b[i] = byte(g.rng.UintN(256))
	}
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		return ""
	}
	return id.String()
}

// Seed fills store with a synthetic data set.
func Seed(ctx context.Context, store *Store, cfg GenerateConfig) error {
	in := NewIngester(store, defaultBatch)
	g := NewGenerator(in.Handler(nil), cfg.Seed)
	if err := g.Backfill(ctx, cfg); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := in.Flush(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
