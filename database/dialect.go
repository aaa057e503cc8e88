package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names a supported database/sql driver and hides its SQL quirks.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	case "postgresql", "pq":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", name)
}

// Rebind rewrites ? placeholders for drivers that use numbered ones.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
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

// ForUpdate is the row lock suffix. SQLite locks the whole database on write
// and has no row locks.
func (d Dialect) ForUpdate() string {
	if d == SQLite {
		return ""
	}
	return " FOR UPDATE"
}

// Returning reports whether inserted ids come back through RETURNING rather
// than LastInsertId.
func (d Dialect) Returning() bool {
	return d == Postgres
}

// Upsert appends the conflict clause that adds one to each column in
// increments, or overwrites each column in replace.
func (d Dialect) Upsert(table string, key []string, increments []string, replace []string) string {
	var sets []string
	if d == MySQL {
		for _, c := range increments {
			sets = append(sets, fmt.Sprintf("%s = %s + 1", c, c))
		}
		for _, c := range replace {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}

	for _, c := range increments {
		sets = append(sets, fmt.Sprintf("%s = %s.%s + 1", c, table, c))
	}
	for _, c := range replace {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(key, ", "), strings.Join(sets, ", "))
}

// Classify maps driver errors onto the store sentinels of the services
// package, keeping the driver error in the chain.
func (d Dialect) Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrConflict) || errors.Is(err, services.ErrDeadlock) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", services.ErrNotFound, err)
	}

	if sentinel := sentinelFor(err); sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func sentinelFor(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			return services.ErrConflict
		case 1213, 1205:
			return services.ErrDeadlock
		case 1452:
			return services.ErrNotFound
		}
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return services.ErrConflict
		case "40P01", "40001", "55P03":
			return services.ErrDeadlock
		case "23503":
			return services.ErrNotFound
		}
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return services.ErrConflict
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return services.ErrNotFound
		}
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return services.ErrDeadlock
		case sqlite3.SQLITE_CONSTRAINT:
			if strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed") {
				return services.ErrConflict
			}
			if strings.Contains(sqliteErr.Error(), "FOREIGN KEY constraint failed") {
				return services.ErrNotFound
			}
		}
	}

	return nil
}
