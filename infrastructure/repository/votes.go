package repository

import (
	"context"
	"database/sql"

	"github.com/CedricFinance/paulpoll/domain/entities"
)

type dbVote struct {
	entities.Vote
	answer   sql.NullString
	priority sql.NullInt64
}

func (v *dbVote) toEntity() entities.Vote {
	vote := v.Vote
	if v.answer.Valid {
		vote.Answer = entities.DoodleAnswer(v.answer.String)
	}
	if v.priority.Valid {
		vote.SetPriority(int(v.priority.Int64))
	}
	vote.CreatedAt = vote.CreatedAt.UTC()
	return vote
}

func (q *queries) findVotes(ctx context.Context, query string, args ...interface{}) ([]entities.Vote, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []entities.Vote
	for rows.Next() {
		var v dbVote
		err = rows.Scan(&v.ID, &v.UserID, &v.UserName, &v.PollID, &v.OptionID, &v.Count, &v.answer, &v.priority, &v.CreatedAt)
		if err != nil {
			return results, err
		}
		results = append(results, v.toEntity())
	}

	return results, q.dialect.Classify(rows.Err())
}

// GetAllVotes returns the votes of a poll in insertion order, with the voter names.
func (q *queries) GetAllVotes(ctx context.Context, pollID int64) ([]entities.Vote, error) {
	return q.findVotes(
		ctx,
		"SELECT v.id,v.user_id,COALESCE(u.name,''),v.poll_id,v.option_id,v.vote_count,v.answer,v.priority,v.created_at "+
			"FROM votes v LEFT JOIN users u ON u.id=v.user_id WHERE v.poll_id=? ORDER BY v.created_at, v.id",
		pollID,
	)
}

// GetUserVotes returns one voter's votes. With lock the rows stay locked
// until the transaction ends.
func (q *queries) GetUserVotes(ctx context.Context, pollID int64, userID string, lock bool) ([]entities.Vote, error) {
	query := "SELECT id,user_id,'',poll_id,option_id,vote_count,answer,priority,created_at " +
		"FROM votes WHERE poll_id=? AND user_id=? ORDER BY created_at, id"
	if lock {
		query += q.dialect.ForUpdate()
	}
	return q.findVotes(ctx, query, pollID, userID)
}

func (q *queries) SaveVote(ctx context.Context, vote *entities.Vote) error {
	vote.CreatedAt = timestamp(vote.CreatedAt)

	id, err := q.insert(
		ctx,
		"INSERT INTO votes(user_id,poll_id,option_id,vote_count,answer,priority,created_at) VALUES(?,?,?,?,?,?,?)",
		vote.UserID,
		vote.PollID,
		vote.OptionID,
		vote.Count,
		nullAnswer(vote.Answer),
		nullPriority(vote.Priority),
		vote.CreatedAt,
	)
	if err != nil {
		return err
	}
	vote.ID = id
	return nil
}

// UpdateVote fails with services.ErrNotFound when the vote was deleted
// concurrently.
func (q *queries) UpdateVote(ctx context.Context, vote entities.Vote) error {
	return q.execOne(
		ctx,
		"UPDATE votes SET option_id=?,vote_count=?,answer=?,priority=? WHERE id=?",
		vote.OptionID,
		vote.Count,
		nullAnswer(vote.Answer),
		nullPriority(vote.Priority),
		vote.ID,
	)
}

func (q *queries) DeleteVote(ctx context.Context, id int64) error {
	return q.execOne(ctx, "DELETE FROM votes WHERE id=?", id)
}

func nullAnswer(a entities.DoodleAnswer) sql.NullString {
	return sql.NullString{String: string(a), Valid: a != entities.AnswerNone}
}

func nullPriority(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
