package explorer

import (
	"strconv"
	"strings"
	"time"
)

// Filter is the live query: expression, severity set and time window
// [Start, End] in epoch seconds.
type Filter struct {
	Expression string
	Levels     Levels
	Start, End int64
}

func NewFilter(expr string, start, end time.Time) Filter {
	return Filter{
		Expression: strings.TrimSpace(expr),
		Levels:     AllLevels,
		Start:      start.Unix(),
		End:        end.Unix(),
	}
}

func (f Filter) Span() int64 { return f.End - f.Start }

// zoomed shrinks (percent > 0) or grows (percent < 0) the window on both
// sides by percent of its span.
func (f Filter) zoomed(percent int) (Filter, bool) {
	if percent == 0 {
		return f, false
	}
	delta := ceilDiv(f.Span()*int64(abs(percent)), 100)
	if delta < 1 {
		return f, false
	}
	if percent < 0 {
		delta = -delta
	}
	f.Start += delta
	f.End -= delta
	return f, f.Start < f.End
}

// panned shifts the window by percent of its span; positive moves forward
// in time.
func (f Filter) panned(percent int) (Filter, bool) {
	delta := ceilDiv(f.Span()*int64(abs(percent)), 100)
	if delta < 1 {
		return f, false
	}
	if percent < 0 {
		delta = -delta
	}
	f.Start += delta
	f.End += delta
	return f, true
}

// Term formats a field match the way the query language expects it.
func Term(field, value string) string {
	if value == "" || strings.ContainsAny(value, " \t\"()") {
		return field + ":" + strconv.Quote(value)
	}
	return field + ":" + value
}

// withTerm appends term to an expression with an explicit AND.
func withTerm(expr, term string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return term
	}
	// the expression may contain OR, so anything but a single term is grouped
	if !singleTerm(expr) {
		expr = "(" + expr + ")"
	}
	return expr + " AND " + term
}

// singleTerm reports whether expr has no whitespace outside quotes, or is
// one parenthesised group.
func singleTerm(expr string) bool {
	depth, quoted := 0, false
	for i, r := range expr {
		switch {
		case r == '"' && (i == 0 || expr[i-1] != '\\'):
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return false
			}
		case (r == ' ' || r == '\t') && depth == 0:
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
