package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL engine behind a DATABASE_URL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDatabaseURL maps a connection string to a dialect and the DSN the
// database/sql driver expects.
//
//	postgres://u:p@host/db  -> postgres, unchanged
//	sqlite://./data/x.db    -> sqlite, ./data/x.db
//	file:./x.db?mode=rwc    -> sqlite, unchanged
//	./x.db                  -> sqlite, unchanged
func ParseDatabaseURL(url string) (Dialect, string, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return "", "", fmt.Errorf("empty database url")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DialectPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite url without path")
		}
		return DialectSQLite, path, nil
	case strings.Contains(url, "://"):
		return "", "", fmt.Errorf("unsupported database scheme in %q", url)
	default:
		return DialectSQLite, url, nil
	}
}

// driverName returns the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
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
