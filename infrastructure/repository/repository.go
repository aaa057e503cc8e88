package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/CedricFinance/paulpoll/database"
	"github.com/CedricFinance/paulpoll/domain/services"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries implements services.Queries on top of a *sql.DB or a *sql.Tx.
type queries struct {
	db      querier
	dialect database.Dialect
}

type repository struct {
	queries
	conn *sql.DB
}

func New(db *sql.DB, dialect database.Dialect) services.Repository {
	return &repository{
		queries: queries{db: db, dialect: dialect},
		conn:    db,
	}
}

func (r *repository) WithTx(ctx context.Context, fn func(q services.Queries) error) (err error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return r.dialect.Classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&queries{db: tx, dialect: r.dialect}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return r.dialect.Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (q *queries) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := q.db.ExecContext(ctx, q.dialect.Rebind(query), args...)
	return res, q.dialect.Classify(err)
}

// execOne runs a statement that must touch exactly one row, anything else
// means the row disappeared.
func (q *queries) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (q *queries) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(query), args...)
	return rows, q.dialect.Classify(err)
}

// insert runs an INSERT and returns the generated id.
func (q *queries) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if q.dialect.Returning() {
		var id int64
		err := q.db.QueryRowContext(ctx, q.dialect.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, q.dialect.Classify(err)
	}

	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// timestamp normalises a time before it reaches the driver. SQLite compares
// stored times as text, a single location and precision keep that ordering
// right.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTimestamp(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: timestamp(*t), Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
