package devserver

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Demo is an in-memory store seeded with synthetic data, served on a
// loopback port, that keeps receiving live records.
type Demo struct {
	store    *Store
	server   *Server
	ingester *Ingester
	gen      *Generator
	live     time.Duration
}

// StartDemo seeds a fresh store and binds its server. Live records are
// emitted every live interval once Run is called; zero disables them.
func StartDemo(ctx context.Context, cfg GenerateConfig, live time.Duration, logger *log.Logger) (*Demo, error) {
	store, err := Open("")
	if err != nil {
		return nil, err
	}
	if err := Seed(ctx, store, cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	srv, err := Listen("127.0.0.1:0", store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	in := NewIngester(store, 1)
	return &Demo{
		store:    store,
		server:   srv,
		ingester: in,
		gen:      NewGenerator(in.Handler(nil), cfg.Seed+1),
		live:     live,
	}, nil
}

func (d *Demo) URL() string   { return d.server.URL() }
func (d *Demo) Store() *Store { return d.store }

// Run serves until ctx is done.
func (d *Demo) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Run(ctx) })
	if d.live > 0 {
		g.Go(func() error {
			if err := d.gen.Stream(ctx, d.live, d.ingester.Flush); err != nil {
				return fmt.Errorf("live records: %w", err)
			}
			return nil
		})
	}
	err := g.Wait()
	if cerr := d.store.Close(); err == nil {
		err = cerr
	}
	return err
}
