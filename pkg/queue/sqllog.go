package queue

import (
	"fmt"
	"strings"
	"time"
)

// maxLoggedArg keeps JSON payload columns from flooding debug logs.
const maxLoggedArg = 120

// renderSQL inlines positional arguments into stmt for log output only.
func renderSQL(stmt string, args ...any) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(args) == 0 {
		return stmt
	}
	var b strings.Builder
	b.Grow(len(stmt) + len(args)*16)
	next := 0
	for _, ch := range stmt {
		if ch == '?' && next < len(args) {
			b.WriteString(renderArg(args[next]))
			next++
			continue
		}
		b.WriteRune(ch)
	}
	for ; next < len(args); next++ {
		b.WriteString(" /* extra arg: ")
		b.WriteString(renderArg(args[next]))
		b.WriteString(" */")
	}
	return b.String()
}

func renderArg(arg any) string {
	var s string
	switch v := arg.(type) {
	case nil:
		return "NULL"
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		s = v.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		s = v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
	if len(s) > maxLoggedArg {
		s = s[:maxLoggedArg] + "..."
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
