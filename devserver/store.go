// Package devserver is a small SQLite-backed log backend serving the ticks and
// entries endpoints the explorer queries. It backs demo mode and the
// end-to-end tests.
package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keilerkonzept/logscope/backend"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    epoch_secs INTEGER NOT NULL,
    nanos      INTEGER NOT NULL,
    level      INTEGER NOT NULL,
    content    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_epoch ON entries(epoch_secs, nanos);
`

const (
	minPage     = 10
	maxPage     = 100
	maxBuckets  = 4096
	maxExprSize = 4096
)

// Record is one stored log line.
type Record struct {
	Time    time.Time
	Level   int
	Content string
}

type Store struct {
	db *sql.DB
}

// Open opens (and creates) the store at path. An empty path keeps everything
// in memory.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = "file:" + path +
			"?_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", dsn, err)
	}
	if path == "" {
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Insert stores records in one transaction.
func (s *Store) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO entries (epoch_secs, nanos, level, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Time.Unix(), r.Time.Nanosecond(), r.Level, r.Content); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n)
	return n, err
}

// The series runs backwards from the window end: index limit-1 is the newest
// bucket [end-interval, end). The JOIN leaves empty buckets out.
const ticksQuery = `
WITH RECURSIVE series(idx, epoch_start, epoch_end) AS (
    SELECT ? - 1, ? - ?, ?
    UNION ALL
    SELECT idx - 1, epoch_start - ?, epoch_end - ? FROM series LIMIT ?
)
SELECT
    c.idx,
    c.epoch_start,
    c.epoch_end,
    COUNT(e.epoch_secs),
    COUNT(CASE WHEN e.level < 0 THEN 1 END),
    COUNT(CASE WHEN e.level >= 0 AND e.level < 4 THEN 1 END),
    COUNT(CASE WHEN e.level >= 4 AND e.level < 8 THEN 1 END),
    COUNT(CASE WHEN e.level >= 8 THEN 1 END)
FROM series c
JOIN entries e ON e.epoch_secs >= c.epoch_start AND e.epoch_secs < c.epoch_end
`

func (s *Store) Ticks(ctx context.Context, q backend.TicksQuery) ([]backend.Tick, error) {
	if q.Limit > maxBuckets {
		return nil, fmt.Errorf("limit %d exceeds %d buckets", q.Limit, maxBuckets)
	}
	if q.Epoch == 0 {
		q.Epoch = time.Now().Unix()
	}
	where, args, err := filterClause(q.Expr, q.Levels)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(ticksQuery)
	if where != "" {
		b.WriteString("WHERE " + where + "\n")
	}
	b.WriteString("GROUP BY c.idx, c.epoch_start, c.epoch_end ORDER BY c.idx")
	args = append([]any{q.Limit, q.Epoch, q.Interval, q.Epoch, q.Interval, q.Interval, q.Limit}, args...)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("ticks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []backend.Tick
	for rows.Next() {
		var t backend.Tick
		if err := rows.Scan(&t.Index, &t.Start, &t.End, &t.Count, &t.Debug, &t.Info, &t.Warn, &t.Error); err != nil {
			return nil, fmt.Errorf("ticks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const (
	seekAfter   = "SELECT e.epoch_secs, e.nanos, e.level, e.content FROM entries e WHERE (e.epoch_secs > ? OR (e.epoch_secs = ? AND e.nanos > ?))"
	seekBefore  = "SELECT e.epoch_secs, e.nanos, e.level, e.content FROM entries e WHERE (e.epoch_secs < ? OR (e.epoch_secs = ? AND e.nanos < ?))"
	orderAfter  = " ORDER BY e.epoch_secs ASC, e.nanos ASC LIMIT ?"
	orderBefore = " ORDER BY e.epoch_secs DESC, e.nanos DESC LIMIT ?"
)

// Entries returns one keyset page, nearest entries first.
func (s *Store) Entries(ctx context.Context, q backend.EntriesQuery) ([]backend.Row, error) {
	if q.Epoch == 0 {
		q.Epoch = time.Now().Unix()
	}
	where, args, err := filterClause(q.Expr, q.Levels)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	seek, order := seekAfter, orderAfter
	if q.Direction == "before" {
		seek, order = seekBefore, orderBefore
	}
	b.WriteString(seek)
	if where != "" {
		b.WriteString(" AND " + where)
	}
	b.WriteString(order)
	args = append([]any{q.Epoch, q.Epoch, q.Nanos}, args...)
	args = append(args, min(max(q.Limit, minPage), maxPage))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []backend.Row
	for rows.Next() {
		var r backend.Row
		if err := rows.Scan(&r.Epoch, &r.Nanos, &r.Level, &r.Payload); err != nil {
			return nil, fmt.Errorf("entries: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// filterClause combines the level and expression filters into one condition.
func filterClause(expr string, levels []string) (string, []any, error) {
	var parts []string
	lv, err := levelClause(levels)
	if err != nil {
		return "", nil, err
	}
	if lv != "" {
		parts = append(parts, lv)
	}
	if len(expr) > maxExprSize {
		return "", nil, fmt.Errorf("expression longer than %d bytes", maxExprSize)
	}
	x, err := Compile(expr)
	if err != nil {
		return "", nil, fmt.Errorf("expression: %w", err)
	}
	if x.SQL != "" {
		parts = append(parts, "("+x.SQL+")")
	}
	return strings.Join(parts, " AND "), x.Args, nil
}

var levelRanges = map[string]string{
	"debug": "e.level < 0",
	"info":  "(e.level BETWEEN 0 AND 3)",
	"warn":  "(e.level BETWEEN 4 AND 7)",
	"error": "e.level >= 8",
}

var levelOrder = []string{"debug", "info", "warn", "error"}

func levelClause(levels []string) (string, error) {
	if len(levels) == 0 {
		return "", nil
	}
	set := map[string]bool{}
	for _, l := range levels {
		l = strings.ToLower(strings.TrimSpace(l))
		if _, ok := levelRanges[l]; !ok {
			return "", fmt.Errorf("unknown level %q", l)
		}
		set[l] = true
	}
	if len(set) == len(levelRanges) {
		return "", nil
	}
	var ors []string
	for _, l := range levelOrder {
		if set[l] {
			ors = append(ors, levelRanges[l])
		}
	}
	return "(" + strings.Join(ors, " OR ") + ")", nil
}
