package devserver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Expr is a compiled filter: a SQL condition over the entries table (aliased
// e) and its bind arguments.
type Expr struct {
	SQL  string
	Args []any
}

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokOp
	tokOpen
	tokClose
)

type token struct {
	kind   tokenKind
	pos    int
	field  string
	value  string
	quoted bool
	array  []string
}

// Compile translates a filter expression into SQL. Terms are joined with
// AND unless an explicit AND or OR sits between them; a term without a field
// matches the msg attribute.
func Compile(expr string) (Expr, error) {
	toks, err := tokenize(strings.TrimSpace(expr))
	if err != nil {
		return Expr{}, err
	}
	c := &compiler{}
	if err := c.compile(toks); err != nil {
		return Expr{}, err
	}
	return Expr{SQL: c.sql.String(), Args: c.args}, nil
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		switch s[i] {
		case ' ', '\t', '\n':
			i++
		case '(':
			toks = append(toks, token{kind: tokOpen, pos: i})
			i++
		case ')':
			toks = append(toks, token{kind: tokClose, pos: i})
			i++
		default:
			t, n, err := scanTerm(s, i)
			if err != nil {
				return nil, err
			}
			if up := strings.ToUpper(t.value); t.field == "" && !t.quoted && (up == "AND" || up == "OR") {
				t.kind, t.value = tokOp, up
			}
			toks = append(toks, t)
			i += n
		}
	}
	return toks, nil
}

// scanTerm reads one term starting at s[start] and returns it with the number
// of bytes consumed.
func scanTerm(s string, start int) (token, int, error) {
	t := token{kind: tokTerm, pos: start}
	var buf strings.Builder
	i := start
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			buf.WriteByte(s[i+1])
			i += 2
			continue
		case c == ' ' || c == '\t' || c == '\n' || c == '(' || c == ')':
			t.value = buf.String()
			return t, i - start, nil
		case c == ':':
			if t.field != "" || buf.Len() == 0 {
				return t, 0, fmt.Errorf("unexpected `:` at %d", i)
			}
			t.field = buf.String()
			buf.Reset()
		case c == '"' && buf.Len() == 0:
			v, n, err := scanQuoted(s, i)
			if err != nil {
				return t, 0, err
			}
			t.value, t.quoted = v, true
			return t, i + n - start, nil
		case c == '[' && buf.Len() == 0 && t.field != "":
			parts, n, err := scanArray(s, i)
			if err != nil {
				return t, 0, err
			}
			t.array = parts
			return t, i + n - start, nil
		default:
			buf.WriteByte(c)
		}
		i++
	}
	t.value = buf.String()
	return t, i - start, nil
}

func scanQuoted(s string, start int) (string, int, error) {
	var buf strings.Builder
	for i := start + 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && i+1 < len(s):
			i++
			buf.WriteByte(s[i])
		case c == '"':
			return buf.String(), i + 1 - start, nil
		default:
			buf.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated quote at %d", start)
}

func scanArray(s string, start int) ([]string, int, error) {
	end := strings.IndexByte(s[start:], ']')
	if end < 0 {
		return nil, 0, fmt.Errorf("unterminated `[` at %d", start)
	}
	var parts []string
	for _, p := range strings.Fields(s[start+1 : start+end]) {
		parts = append(parts, strings.Trim(p, `"`))
	}
	if len(parts) == 0 {
		return nil, 0, fmt.Errorf("empty list at %d", start)
	}
	return parts, end + 1, nil
}

type compiler struct {
	sql  strings.Builder
	args []any
	op   string
}

func (c *compiler) compile(toks []token) error {
	depth := 0
	joined := false // something was written at the current nesting level
	for _, t := range toks {
		switch t.kind {
		case tokOp:
			if !joined || c.op != "" {
				return fmt.Errorf("unexpected %s at %d", t.value, t.pos)
			}
			c.op = t.value
		case tokOpen:
			c.join(joined)
			c.sql.WriteByte('(')
			depth++
			joined = false
		case tokClose:
			if depth == 0 {
				return fmt.Errorf("unexpected `)` at %d", t.pos)
			}
			if !joined || c.op != "" {
				return fmt.Errorf("incomplete group before %d", t.pos)
			}
			c.sql.WriteByte(')')
			depth--
		case tokTerm:
			c.join(joined)
			if err := c.term(t); err != nil {
				return err
			}
			joined = true
		}
	}
	switch {
	case depth > 0:
		return errors.New("unbalanced `(`")
	case c.op != "":
		return fmt.Errorf("dangling %s", c.op)
	}
	return nil
}

func (c *compiler) join(joined bool) {
	if joined {
		op := c.op
		if op == "" {
			op = "AND"
		}
		c.sql.WriteString(" " + op + " ")
	}
	c.op = ""
}

const (
	textCol    = "json_extract(e.content, ?)"
	numericCol = "CAST(json_extract(e.content, ?) AS NUMERIC)"
)

func (c *compiler) term(t token) error {
	field := t.field
	if field == "" {
		field = "msg"
	}
	path := "$." + field

	switch {
	case t.array != nil:
		return c.list(path, t.array)
	case t.quoted:
		if hasWildcard(t.value) {
			c.write(textCol+" GLOB ?", path, t.value)
		} else {
			c.write(textCol+" = ?", path, t.value)
		}
		return nil
	case t.value == "":
		return fmt.Errorf("empty value for %s at %d", field, t.pos)
	}

	if t.field != "" {
		for _, cond := range []string{">=", "<=", ">", "<"} {
			if rest, ok := strings.CutPrefix(t.value, cond); ok {
				n, err := strconv.ParseFloat(rest, 64)
				if err != nil {
					return fmt.Errorf("%s: %q is not a number", field, rest)
				}
				c.write(numericCol+" "+cond+" ?", path, n)
				return nil
			}
		}
		if n, err := strconv.ParseFloat(t.value, 64); err == nil {
			c.write(numericCol+" = ?", path, n)
			return nil
		}
	}
	if hasWildcard(t.value) {
		c.write(textCol+" GLOB ?", path, t.value)
	} else {
		c.write(textCol+" GLOB ?", path, "*"+t.value+"*")
	}
	return nil
}

// list handles field:[a b c] and field:[x TO y].
func (c *compiler) list(path string, parts []string) error {
	if len(parts) == 3 && parts[1] == "TO" {
		x, errX := strconv.ParseFloat(parts[0], 64)
		y, errY := strconv.ParseFloat(parts[2], 64)
		if errX != nil || errY != nil {
			return fmt.Errorf("invalid range [%s]", strings.Join(parts, " "))
		}
		c.write(numericCol+" BETWEEN ? AND ?", path, x, y)
		return nil
	}
	var nums, texts []any
	for _, p := range parts {
		if n, err := strconv.ParseFloat(p, 64); err == nil {
			nums = append(nums, n)
		} else {
			texts = append(texts, p)
		}
	}
	both := len(nums) > 0 && len(texts) > 0
	if both {
		c.sql.WriteByte('(')
	}
	if len(nums) > 0 {
		c.write(numericCol+" IN ("+placeholders(len(nums))+")", append([]any{path}, nums...)...)
	}
	if both {
		c.sql.WriteString(" OR ")
	}
	if len(texts) > 0 {
		c.write(textCol+" IN ("+placeholders(len(texts))+")", append([]any{path}, texts...)...)
	}
	if both {
		c.sql.WriteByte(')')
	}
	return nil
}

func (c *compiler) write(sql string, args ...any) {
	c.sql.WriteString(sql)
	c.args = append(c.args, args...)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}
