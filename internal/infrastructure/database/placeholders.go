package database

import (
	"strconv"
	"strings"
)

// RewritePlaceholders converts positional "?" markers to PostgreSQL's
// numbered "$N" form in a single left-to-right pass. The Nth "?" in the
// input becomes "$N". Every "?" is rewritten, including any inside string
// literals, so queries must not embed literal question marks.
func RewritePlaceholders(query string) string {
	n := strings.Count(query, "?")
	if n == 0 {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + n*2)

	count := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '?' {
			b.WriteByte(c)
			continue
		}
		count++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(count))
	}
	return b.String()
}
