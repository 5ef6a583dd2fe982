package explorer

import "strings"

type Severity int8

const (
	Debug Severity = iota
	Info
	Warn
	Error
)

// Severities lists every severity from least to most severe.
var Severities = [...]Severity{Debug, Info, Warn, Error}

// SeverityFromCode maps a numeric level (slog-style: -4 debug, 0 info, 4 warn,
// 8 error) onto a severity using fixed thresholds.
func SeverityFromCode(code int) Severity {
	switch {
	case code < 0:
		return Debug
	case code < 4:
		return Info
	case code < 8:
		return Warn
	}
	return Error
}

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Param is the token the backend expects in the level parameter.
func (s Severity) Param() string {
	return strings.ToLower(s.String())
}

// ParseSeverity accepts either the display or the parameter spelling.
func ParseSeverity(s string) (Severity, bool) {
	for _, sev := range Severities {
		if strings.EqualFold(s, sev.String()) {
			return sev, true
		}
	}
	return 0, false
}

// Levels is a set of severities.
type Levels uint8

const AllLevels Levels = 1<<Debug | 1<<Info | 1<<Warn | 1<<Error

func LevelsOf(sevs ...Severity) Levels {
	var l Levels
	for _, s := range sevs {
		l |= 1 << s
	}
	return l
}

func (l Levels) Has(s Severity) bool { return l&(1<<s) != 0 }
func (l Levels) All() bool           { return l&AllLevels == AllLevels }
func (l Levels) Empty() bool         { return l&AllLevels == 0 }

func (l Levels) Toggle(s Severity) Levels {
	return l ^ (1 << s)
}

// Params returns the backend tokens of the set, or nil when every level is
// selected (the backend treats a missing parameter as "all").
func (l Levels) Params() []string {
	if l.All() {
		return nil
	}
	var out []string
	for _, s := range Severities {
		if l.Has(s) {
			out = append(out, s.Param())
		}
	}
	return out
}
