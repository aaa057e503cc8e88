package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DSN builds the connection string for driver from the individual settings.
// For sqlite, name is the database file path.
func DSN(driver Dialect, user string, password string, name string, host string) string {
	switch driver {
	case Postgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(user, password),
			Host:     host,
			Path:     "/" + name,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	case SQLite:
		return SQLiteDSN(name)
	}

	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.DBName = name
	cfg.Net, cfg.Addr = splitMySQLHost(host)
	return withMySQLParams(cfg).FormatDSN()
}

// SQLiteDSN enables foreign keys and a time format that sorts lexically.
func SQLiteDSN(path string) string {
	return path + "?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

func withMySQLParams(cfg *mysql.Config) *mysql.Config {
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC
	return cfg
}

// splitMySQLHost understands the "tcp(host:port)" and
// "unix(/path)" notations as well as a bare "host:port".
func splitMySQLHost(host string) (string, string) {
	for _, network := range []string{"tcp", "unix"} {
		prefix := network + "("
		if len(host) > len(prefix) && host[:len(prefix)] == prefix && host[len(host)-1] == ')' {
			return network, host[len(prefix) : len(host)-1]
		}
	}
	return "tcp", host
}

// Open connects to the store. A mysql dsn given verbatim gets parseTime and
// clientFoundRows forced on, the repository relies on both.
func Open(driver Dialect, dsn string) (*sql.DB, error) {
	driverName := string(driver)

	switch driver {
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		dsn = withMySQLParams(cfg).FormatDSN()
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	if driver == SQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	db.SetMaxIdleConns(1)

	return db, nil
}
