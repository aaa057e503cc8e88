package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
)

// SaveNotification subscribes a chat to a poll's reminders. A chat that is
// already subscribed yields services.ErrConflict.
func (q *queries) SaveNotification(ctx context.Context, notification *entities.Notification) error {
	notification.CreatedAt = timestamp(notification.CreatedAt)

	id, err := q.insert(
		ctx,
		"INSERT INTO notifications(poll_id,chat_id,created_at) VALUES(?,?,?)",
		notification.PollID,
		notification.ChatID,
		notification.CreatedAt,
	)
	if err != nil {
		return err
	}
	notification.ID = id
	return nil
}

func (q *queries) GetNotifications(ctx context.Context, pollID int64) ([]entities.Notification, error) {
	rows, err := q.query(ctx, "SELECT id,poll_id,chat_id,notified_step,created_at FROM notifications WHERE poll_id=? ORDER BY id", pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []entities.Notification
	for rows.Next() {
		var n entities.Notification
		var step sql.NullTime
		if err := rows.Scan(&n.ID, &n.PollID, &n.ChatID, &step, &n.CreatedAt); err != nil {
			return results, err
		}
		n.NotifiedStep = fromNullTime(step)
		n.CreatedAt = n.CreatedAt.UTC()
		results = append(results, n)
	}
	return results, q.dialect.Classify(rows.Err())
}

func (q *queries) MarkNotified(ctx context.Context, id int64, step time.Time) error {
	_, err := q.exec(ctx, "UPDATE notifications SET notified_step=? WHERE id=?", timestamp(step), id)
	return err
}

func (q *queries) DeleteNotification(ctx context.Context, id int64) error {
	_, err := q.exec(ctx, "DELETE FROM notifications WHERE id=?", id)
	return err
}
