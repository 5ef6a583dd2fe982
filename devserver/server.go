package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keilerkonzept/logscope/backend"
)

// Handler serves the ticks and entries endpoints from store.
func Handler(store *Store, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ticks", func(w http.ResponseWriter, r *http.Request) {
		q, err := backend.ParseTicksQuery(r.URL.Query())
		if err != nil {
			sendJSON(w, r, logger, nil, err)
			return
		}
		ticks, err := store.Ticks(r.Context(), q)
		if ticks == nil {
			ticks = []backend.Tick{}
		}
		sendJSON(w, r, logger, map[string]any{"ticks": ticks}, err)
	})
	mux.HandleFunc("GET /api/entries", func(w http.ResponseWriter, r *http.Request) {
		q, err := backend.ParseEntriesQuery(r.URL.Query())
		if err != nil {
			sendJSON(w, r, logger, nil, err)
			return
		}
		rows, err := store.Entries(r.Context(), q)
		if rows == nil {
			rows = []backend.Row{}
		}
		sendJSON(w, r, logger, map[string]any{"entries": rows}, err)
	})
	return mux
}

func sendJSON(w http.ResponseWriter, r *http.Request, logger *log.Logger, data any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if id := r.Header.Get(backend.RequestIDHeader); id != "" {
		w.Header().Set(backend.RequestIDHeader, id)
	}
	if err != nil {
		logger.Printf("%s %s [%s]: %v", r.Method, r.URL.Path, r.Header.Get(backend.RequestIDHeader), err)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// Server runs Handler on a listener.
type Server struct {
	ln   net.Listener
	http *http.Server
}

// Listen binds addr; use "127.0.0.1:0" for any free loopback port.
func Listen(addr string, store *Store, logger *log.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		ln: ln,
		http: &http.Server{
			Handler:           Handler(store, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *Server) URL() string { return "http://" + s.ln.Addr().String() }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(s.ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
