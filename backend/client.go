package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrStatus wraps every non-2xx response.
var ErrStatus = errors.New("unexpected status")

const RequestIDHeader = "X-Request-Id"

// Client queries a log backend exposing /api/ticks and /api/entries.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		h := *c.http
		h.Timeout = d
		c.http = &h
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend url %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", base)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{},
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) URL() string { return c.base.String() }

// Ticks returns the non-empty buckets of the requested series. An empty
// result means there is no data in range.
func (c *Client) Ticks(ctx context.Context, q TicksQuery) ([]Tick, error) {
	var out struct {
		Ticks []Tick `json:"ticks"`
	}
	if err := c.get(ctx, "ticks", q.Values(), &out); err != nil {
		return nil, err
	}
	return out.Ticks, nil
}

// Entries returns one keyset page. An empty result means the direction is
// exhausted.
func (c *Client) Entries(ctx context.Context, q EntriesQuery) ([]Row, error) {
	var out struct {
		Entries []Row `json:"entries"`
	}
	if err := c.get(ctx, "entries", q.Values(), &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.base.JoinPath("api", endpoint)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	id := uuid.NewString()
	req.Header.Set(RequestIDHeader, id)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("request %s %s failed: %v", id, endpoint, err)
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		c.logger.Printf("request %s %s: status %d: %s", id, endpoint, resp.StatusCode, msg)
		return fmt.Errorf("%s: %w %d: %s", endpoint, ErrStatus, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		c.logger.Printf("request %s %s: decode: %v", id, endpoint, err)
		return fmt.Errorf("%s: decode: %w", endpoint, err)
	}
	return nil
}
