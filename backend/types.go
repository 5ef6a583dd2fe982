package backend

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Tick is one aggregated histogram bucket as returned by /api/ticks.
type Tick struct {
	Index int   `json:"index"`
	Start int64 `json:"epoch_start"`
	End   int64 `json:"epoch_end"`
	Count int64 `json:"count"`
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
}

// Row is one log entry as returned by /api/entries. On the wire it is the
// tuple [epoch, nanos, level, payload].
type Row struct {
	Epoch   int64
	Nanos   int
	Level   int
	Payload string
}

func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Epoch, r.Nanos, r.Level, r.Payload})
}

func (r *Row) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("entry row: %w", err)
	}
	if len(parts) != 4 {
		return fmt.Errorf("entry row: want 4 fields, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &r.Epoch); err != nil {
		return fmt.Errorf("entry row epoch: %w", err)
	}
	if err := json.Unmarshal(parts[1], &r.Nanos); err != nil {
		return fmt.Errorf("entry row nanos: %w", err)
	}
	if err := json.Unmarshal(parts[2], &r.Level); err != nil {
		return fmt.Errorf("entry row level: %w", err)
	}
	// Some backends send the payload as an embedded object instead of text.
	if len(parts[3]) > 0 && parts[3][0] == '{' {
		r.Payload = string(parts[3])
		return nil
	}
	if err := json.Unmarshal(parts[3], &r.Payload); err != nil {
		return fmt.Errorf("entry row payload: %w", err)
	}
	return nil
}

type TicksQuery struct {
	Expr     string
	Levels   []string // nil means all levels
	Epoch    int64    // end of the window
	Interval int64    // seconds per bucket
	Limit    int      // bucket count
}

func (q TicksQuery) Values() url.Values {
	v := url.Values{}
	v.Set("expr", q.Expr)
	if len(q.Levels) > 0 {
		v.Set("level", strings.Join(q.Levels, ","))
	}
	v.Set("epoch", strconv.FormatInt(q.Epoch, 10))
	v.Set("interval", strconv.FormatInt(q.Interval, 10))
	v.Set("limit", strconv.Itoa(q.Limit))
	return v
}

func ParseTicksQuery(v url.Values) (TicksQuery, error) {
	q := TicksQuery{
		Expr:   v.Get("expr"),
		Levels: splitLevels(v.Get("level")),
	}
	var err error
	if q.Epoch, err = int64Param(v, "epoch"); err != nil {
		return q, err
	}
	if q.Interval, err = int64Param(v, "interval"); err != nil {
		return q, err
	}
	limit, err := int64Param(v, "limit")
	if err != nil {
		return q, err
	}
	q.Limit = int(limit)
	if q.Interval < 1 {
		return q, fmt.Errorf("interval must be >= 1")
	}
	if q.Limit < 1 {
		return q, fmt.Errorf("limit must be >= 1")
	}
	return q, nil
}

type EntriesQuery struct {
	Expr      string
	Levels    []string
	Direction string // "before" or "after"
	Epoch     int64
	Nanos     int
	Limit     int
}

func (q EntriesQuery) Values() url.Values {
	v := url.Values{}
	v.Set("expr", q.Expr)
	if len(q.Levels) > 0 {
		v.Set("level", strings.Join(q.Levels, ","))
	}
	v.Set("dir", q.Direction)
	v.Set("epoch", strconv.FormatInt(q.Epoch, 10))
	v.Set("nanos", strconv.Itoa(q.Nanos))
	v.Set("limit", strconv.Itoa(q.Limit))
	return v
}

func ParseEntriesQuery(v url.Values) (EntriesQuery, error) {
	q := EntriesQuery{
		Expr:      v.Get("expr"),
		Levels:    splitLevels(v.Get("level")),
		Direction: v.Get("dir"),
	}
	if q.Direction != "before" && q.Direction != "after" {
		return q, fmt.Errorf("dir must be before or after, got %q", q.Direction)
	}
	var err error
	if q.Epoch, err = int64Param(v, "epoch"); err != nil {
		return q, err
	}
	nanos, err := int64Param(v, "nanos")
	if err != nil {
		return q, err
	}
	limit, err := int64Param(v, "limit")
	if err != nil {
		return q, err
	}
	q.Nanos, q.Limit = int(nanos), int(limit)
	return q, nil
}

func splitLevels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func int64Param(v url.Values, key string) (int64, error) {
	s := v.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
