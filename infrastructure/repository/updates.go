package repository

import (
	"context"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
)

const updateColumns = "id,poll_id,next_update_at,pending_count,created_at"

func scanUpdate(scan func(dest ...interface{}) error) (entities.Update, error) {
	var u entities.Update
	err := scan(&u.ID, &u.PollID, &u.NextUpdateAt, &u.PendingCount, &u.CreatedAt)
	u.NextUpdateAt = u.NextUpdateAt.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	return u, err
}

func (q *queries) FindUpdate(ctx context.Context, pollID int64, lock bool) (entities.Update, error) {
	query := "SELECT " + updateColumns + " FROM updates WHERE poll_id=?"
	if lock {
		query += q.dialect.ForUpdate()
	}
	update, err := scanUpdate(q.db.QueryRowContext(ctx, q.dialect.Rebind(query), pollID).Scan)
	return update, q.dialect.Classify(err)
}

// SaveUpdate fails with services.ErrConflict when the poll already has a ticket.
func (q *queries) SaveUpdate(ctx context.Context, update *entities.Update) error {
	update.NextUpdateAt = timestamp(update.NextUpdateAt)
	update.CreatedAt = timestamp(update.CreatedAt)

	id, err := q.insert(
		ctx,
		"INSERT INTO updates(poll_id,next_update_at,pending_count,created_at) VALUES(?,?,?,?)",
		update.PollID,
		update.NextUpdateAt,
		update.PendingCount,
		update.CreatedAt,
	)
	if err != nil {
		return err
	}
	update.ID = id
	return nil
}

// IncrementUpdate folds one more change into the ticket. It fails with
// services.ErrNotFound when the ticket was drained in the meantime.
func (q *queries) IncrementUpdate(ctx context.Context, id int64, nextUpdateAt time.Time) error {
	return q.execOne(
		ctx,
		"UPDATE updates SET pending_count=pending_count+1,next_update_at=? WHERE id=?",
		timestamp(nextUpdateAt),
		id,
	)
}

func (q *queries) DeferUpdate(ctx context.Context, id int64, nextUpdateAt time.Time) error {
	return q.execOne(ctx, "UPDATE updates SET next_update_at=? WHERE id=?", timestamp(nextUpdateAt), id)
}

// DueUpdates returns the tickets whose time has come, oldest first.
func (q *queries) DueUpdates(ctx context.Context, now time.Time, limit int) ([]entities.Update, error) {
	rows, err := q.query(
		ctx,
		"SELECT "+updateColumns+" FROM updates WHERE next_update_at<=? ORDER BY next_update_at, id LIMIT ?",
		timestamp(now),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []entities.Update
	for rows.Next() {
		u, err := scanUpdate(rows.Scan)
		if err != nil {
			return updates, err
		}
		updates = append(updates, u)
	}
	return updates, q.dialect.Classify(rows.Err())
}

func (q *queries) DeleteUpdate(ctx context.Context, id int64, pendingCount int) (bool, error) {
	res, err := q.exec(ctx, "DELETE FROM updates WHERE id=? AND pending_count=?", id, pendingCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q *queries) PruneUpdates(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := q.exec(ctx, "DELETE FROM updates WHERE created_at<?", timestamp(createdBefore))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
