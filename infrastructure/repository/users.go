package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
)

// SaveUser inserts the user or refreshes its name and locale.
func (q *queries) SaveUser(ctx context.Context, user entities.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.Locale == "" {
		user.Locale = "en"
	}

	_, err := q.exec(
		ctx,
		"INSERT INTO users(id,name,locale,created_at) VALUES(?,?,?,?)"+
			q.dialect.Upsert("users", []string{"id"}, nil, []string{"name", "locale"}),
		user.ID,
		user.Name,
		user.Locale,
		timestamp(user.CreatedAt),
	)
	return err
}

func (q *queries) FindUser(ctx context.Context, id string) (entities.User, error) {
	var u entities.User
	err := q.db.QueryRowContext(ctx, q.dialect.Rebind("SELECT id,name,locale,created_at FROM users WHERE id=?"), id).
		Scan(&u.ID, &u.Name, &u.Locale, &u.CreatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, q.dialect.Classify(err)
}

// IncrementDailyStatistic adds one to a counter of the user's day with a
// row-level upsert and returns the row as it is after the increment.
func (q *queries) IncrementDailyStatistic(ctx context.Context, userID string, day string, field entities.StatisticField) (entities.DailyStatistic, error) {
	switch field {
	case entities.StatisticVotes, entities.StatisticCallbacks, entities.StatisticCreatedPolls:
	default:
		return entities.DailyStatistic{}, fmt.Errorf("unknown statistic %q", field)
	}
	column := string(field)

	_, err := q.exec(
		ctx,
		"INSERT INTO daily_statistics(user_id,day,"+column+") VALUES(?,?,1)"+
			q.dialect.Upsert("daily_statistics", []string{"user_id", "day"}, []string{column}, nil),
		userID,
		day,
	)
	if err != nil {
		return entities.DailyStatistic{}, err
	}

	stat := entities.DailyStatistic{UserID: userID, Day: day}
	err = q.db.QueryRowContext(
		ctx,
		q.dialect.Rebind("SELECT votes,callbacks,created_polls FROM daily_statistics WHERE user_id=? AND day=?"),
		userID,
		day,
	).Scan(&stat.Votes, &stat.Callbacks, &stat.CreatedPolls)
	return stat, q.dialect.Classify(err)
}
