// ABOUTME: SQL dialect detection and placeholder rebinding
// ABOUTME: Operations are written with '?' and rewritten to $N for PostgreSQL

package pool

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour spoken by the backing store.
type Dialect string

// Supported dialects
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func dialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite":
		return DialectSQLite, nil
	case "postgres":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Operations never contain literal question marks, so no quoting is tracked.
func Rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
