package explorer

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/keilerkonzept/logscope/backend"
)

// Cursor is the keyset pagination position of an entry. It is only unique as
// a pair.
type Cursor struct {
	Epoch int64
	Nanos int
}

func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.Epoch < o.Epoch:
		return -1
	case c.Epoch > o.Epoch:
		return 1
	case c.Nanos < o.Nanos:
		return -1
	case c.Nanos > o.Nanos:
		return 1
	}
	return 0
}

func (c Cursor) Time() time.Time { return time.Unix(c.Epoch, int64(c.Nanos)) }

type Entry struct {
	Cursor
	Severity Severity
	Message  string
	Payload  map[string]any
	Raw      string

	// Bucket is the histogram bucket the entry falls in under the current
	// layout. It is recomputed after every buffer mutation and may be nil.
	Bucket *Bucket
	Handle Handle
}

// Tag is a scalar payload attribute shown next to the message.
type Tag struct {
	Key   string
	Value string
}

func (t Tag) String() string { return t.Key + "=" + t.Value }

var reservedKeys = map[string]bool{"level": true, "time": true, "msg": true}

// Tags returns the scalar payload fields, except level, time and msg, sorted by key.
func (e *Entry) Tags() []Tag {
	var tags []Tag
	for k, v := range e.Payload {
		if reservedKeys[k] {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		tags = append(tags, Tag{Key: k, Value: s})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })
	return tags
}

func scalarString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "null", true
	}
	return "", false
}

// Decoder turns backend rows into entries. The message is read from the
// payload with a JSONPath expression.
type Decoder struct {
	message jp.Expr
}

const DefaultMessagePath = "$.msg"

func NewDecoder(messagePath string) (*Decoder, error) {
	if messagePath == "" {
		messagePath = DefaultMessagePath
	}
	x, err := jp.ParseString(messagePath)
	if err != nil {
		return nil, fmt.Errorf("message path %q: %w", messagePath, err)
	}
	return &Decoder{message: x}, nil
}

func (d *Decoder) Decode(row backend.Row) (*Entry, error) {
	v, err := oj.ParseString(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("entry %d.%09d: payload: %w", row.Epoch, row.Nanos, err)
	}
	payload, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("entry %d.%09d: payload is %T, not an object", row.Epoch, row.Nanos, v)
	}
	e := &Entry{
		Cursor:   Cursor{Epoch: row.Epoch, Nanos: row.Nanos},
		Severity: SeverityFromCode(row.Level),
		Payload:  payload,
		Raw:      row.Payload,
	}
	if res := d.message.Get(v); len(res) > 0 {
		if s, ok := scalarString(res[0]); ok {
			e.Message = s
		} else {
			e.Message = oj.JSON(res[0])
		}
	}
	return e, nil
}

// DecodeAll decodes a page, skipping rows that fail to decode. It only
// fails when no row of a non-empty page decodes.
func (d *Decoder) DecodeAll(rows []backend.Row) (entries []*Entry, skipped int, err error) {
	entries = make([]*Entry, 0, len(rows))
	var first error
	for _, r := range rows {
		e, derr := d.Decode(r)
		if derr != nil {
			if first == nil {
				first = derr
			}
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 && first != nil {
		return nil, skipped, first
	}
	return entries, skipped, nil
}
