package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name       string
	driverName string
	types      *strings.Replacer
	returning  bool
	numbered   bool
}

var (
	SQLite = Dialect{
		Name:       "sqlite",
		driverName: "sqlite",
		types: strings.NewReplacer(
			"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{int}}", "INTEGER",
			"{{real}}", "REAL",
		),
	}
	Postgres = Dialect{
		Name:       "postgres",
		driverName: "postgres",
		types: strings.NewReplacer(
			"{{pk}}", "SERIAL PRIMARY KEY",
			"{{int}}", "BIGINT",
			"{{real}}", "DOUBLE PRECISION",
		),
		returning: true,
		numbered:  true,
	}
)

// DialectFor maps a driver name from configuration to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("store: unsupported driver %q", driver)
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) ddl(stmt string) string {
	return d.types.Replace(stmt)
}

// placeholders returns "?, ?, ?" with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
