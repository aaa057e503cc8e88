package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(191) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		locale VARCHAR(16) NOT NULL DEFAULT 'en',
		created_at {{datetime}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_statistics (
		user_id VARCHAR(191) NOT NULL,
		day VARCHAR(10) NOT NULL,
		votes INTEGER NOT NULL DEFAULT 0,
		callbacks INTEGER NOT NULL DEFAULT 0,
		created_polls INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS polls (
		id {{id}},
		uuid CHAR(36) NOT NULL UNIQUE,
		owner_id VARCHAR(191) NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		locale VARCHAR(16) NOT NULL,
		mode VARCHAR(16) NOT NULL,
		vote_limit INTEGER NOT NULL DEFAULT 0,
		created BOOLEAN NOT NULL DEFAULT FALSE,
		anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		results_visible BOOLEAN NOT NULL DEFAULT TRUE,
		allow_new_options BOOLEAN NOT NULL DEFAULT FALSE,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		summarize BOOLEAN NOT NULL DEFAULT FALSE,
		permanently_summarized BOOLEAN NOT NULL DEFAULT FALSE,
		compact_buttons BOOLEAN NOT NULL DEFAULT FALSE,
		show_percentage BOOLEAN NOT NULL DEFAULT TRUE,
		show_option_votes BOOLEAN NOT NULL DEFAULT FALSE,
		sort_by_percentage BOOLEAN NOT NULL DEFAULT FALSE,
		sort_votes_by_name BOOLEAN NOT NULL DEFAULT FALSE,
		due_date {{datetime}} NULL,
		next_notification {{datetime}} NULL,
		created_at {{datetime}} NOT NULL
	)`,
	`CREATE INDEX {{if_not_exists}}idx_polls_owner ON polls(owner_id)`,
	`CREATE TABLE IF NOT EXISTS poll_options (
		id {{id}},
		poll_id BIGINT NOT NULL,
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		is_date BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT uq_poll_options_index UNIQUE (poll_id, idx){{deferrable}},
		FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id {{id}},
		user_id VARCHAR(191) NOT NULL,
		poll_id BIGINT NOT NULL,
		option_id BIGINT NOT NULL,
		vote_count INTEGER NOT NULL DEFAULT 1,
		answer VARCHAR(8) NULL,
		priority INTEGER NULL,
		created_at {{datetime}} NOT NULL,
		CONSTRAINT uq_votes_user_option UNIQUE (user_id, option_id),
		CONSTRAINT uq_votes_user_priority UNIQUE (user_id, poll_id, priority),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE,
		FOREIGN KEY (option_id) REFERENCES poll_options(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX {{if_not_exists}}idx_votes_poll_user ON votes(poll_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS poll_references (
		id {{id}},
		poll_id BIGINT NOT NULL,
		kind VARCHAR(16) NOT NULL,
		handle VARCHAR(191) NOT NULL UNIQUE,
		chat_id VARCHAR(191) NOT NULL DEFAULT '',
		message_id VARCHAR(191) NOT NULL DEFAULT '',
		inline_id VARCHAR(191) NOT NULL DEFAULT '',
		user_id VARCHAR(191) NOT NULL DEFAULT '',
		failures INTEGER NOT NULL DEFAULT 0,
		rendered_hash VARCHAR(32) NOT NULL DEFAULT '',
		created_at {{datetime}} NOT NULL,
		FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX {{if_not_exists}}idx_poll_references_poll ON poll_references(poll_id)`,
	`CREATE TABLE IF NOT EXISTS updates (
		id {{id}},
		poll_id BIGINT NOT NULL UNIQUE,
		next_update_at {{datetime}} NOT NULL,
		pending_count INTEGER NOT NULL DEFAULT 0,
		created_at {{datetime}} NOT NULL,
		FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX {{if_not_exists}}idx_updates_next ON updates(next_update_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id {{id}},
		poll_id BIGINT NOT NULL,
		chat_id VARCHAR(191) NOT NULL,
		notified_step {{datetime}} NULL,
		created_at {{datetime}} NOT NULL,
		CONSTRAINT uq_notifications_poll_chat UNIQUE (poll_id, chat_id),
		FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
	)`,
}

func (d Dialect) schemaReplacer() *strings.Replacer {
	switch d {
	case MySQL:
		return strings.NewReplacer(
			"{{id}}", "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
			"{{datetime}}", "DATETIME(6)",
			"{{deferrable}}", "",
			// MySQL has no IF NOT EXISTS for indexes, duplicates are skipped in Migrate.
			"{{if_not_exists}}", "",
		)
	case Postgres:
		return strings.NewReplacer(
			"{{id}}", "BIGSERIAL PRIMARY KEY",
			"{{datetime}}", "TIMESTAMP",
			"{{deferrable}}", " DEFERRABLE INITIALLY IMMEDIATE",
			"{{if_not_exists}}", "IF NOT EXISTS ",
		)
	}
	return strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{datetime}}", "DATETIME",
		"{{deferrable}}", "",
		"{{if_not_exists}}", "IF NOT EXISTS ",
	)
}

// Migrate creates every table and index. It is safe to call on an already
// migrated database.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	replacer := dialect.schemaReplacer()

	for _, m := range migrations {
		statement := replacer.Replace(m)
		if _, err := db.ExecContext(ctx, statement); err != nil {
			if dialect == MySQL && isDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("exec migration: %w\nSQL: %s", err, statement)
		}
	}

	return nil
}

func isDuplicateIndex(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1061
}
