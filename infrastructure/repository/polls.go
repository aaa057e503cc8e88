package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/google/uuid"
)

const pollColumns = "id,uuid,owner_id,name,description,locale,mode,vote_limit," +
	"created,anonymous,results_visible,allow_new_options,closed,deleted,summarize," +
	"permanently_summarized,compact_buttons,show_percentage,show_option_votes," +
	"sort_by_percentage,sort_votes_by_name,due_date,next_notification,created_at"

type dbPoll struct {
	entities.Poll
	uuid             string
	mode             string
	dueDate          sql.NullTime
	nextNotification sql.NullTime
}

func (p *dbPoll) fields() []interface{} {
	return []interface{}{
		&p.ID, &p.uuid, &p.OwnerID, &p.Name, &p.Description, &p.Locale, &p.mode, &p.VoteLimit,
		&p.Created, &p.Anonymous, &p.ResultsVisible, &p.AllowNewOptions, &p.Closed, &p.Deleted, &p.Summarize,
		&p.PermanentlySummarized, &p.CompactButtons, &p.ShowPercentage, &p.ShowOptionVotes,
		&p.SortByPercentage, &p.SortVotesByName, &p.dueDate, &p.nextNotification, &p.CreatedAt,
	}
}

func (p *dbPoll) toEntity() (entities.Poll, error) {
	poll := p.Poll

	id, err := uuid.Parse(p.uuid)
	if err != nil {
		return entities.Poll{}, err
	}
	poll.UUID = id

	poll.Mode, err = entities.ParseVotingMode(p.mode)
	if err != nil {
		return entities.Poll{}, err
	}

	poll.DueDate = fromNullTime(p.dueDate)
	poll.NextNotification = fromNullTime(p.nextNotification)
	poll.CreatedAt = poll.CreatedAt.UTC()
	return poll, nil
}

// findPolls reads polls and then their options, the rows are closed before
// the options are queried so a single connection is enough.
func (q *queries) findPolls(ctx context.Context, query string, args ...interface{}) ([]entities.Poll, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var polls []entities.Poll
	for rows.Next() {
		var p dbPoll
		if err := rows.Scan(p.fields()...); err != nil {
			rows.Close()
			return nil, err
		}
		poll, err := p.toEntity()
		if err != nil {
			rows.Close()
			return nil, err
		}
		polls = append(polls, poll)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, q.dialect.Classify(err)
	}
	rows.Close()

	for i := range polls {
		polls[i].Options, err = q.findOptions(ctx, polls[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (q *queries) findPoll(ctx context.Context, id string, query string, args ...interface{}) (entities.Poll, error) {
	polls, err := q.findPolls(ctx, query, args...)
	if err != nil {
		return entities.Poll{}, err
	}
	if len(polls) == 0 {
		return entities.Poll{}, services.PollNotFound{ID: id}
	}
	return polls[0], nil
}

func (q *queries) FindPollByID(ctx context.Context, id int64) (entities.Poll, error) {
	return q.findPoll(ctx, strconv.FormatInt(id, 10), "SELECT "+pollColumns+" FROM polls WHERE id=?", id)
}

func (q *queries) FindPollByUUID(ctx context.Context, id uuid.UUID) (entities.Poll, error) {
	return q.findPoll(ctx, id.String(), "SELECT "+pollColumns+" FROM polls WHERE uuid=?", id.String())
}

func (q *queries) LockPoll(ctx context.Context, id int64) (entities.Poll, error) {
	return q.findPoll(ctx, strconv.FormatInt(id, 10), "SELECT "+pollColumns+" FROM polls WHERE id=?"+q.dialect.ForUpdate(), id)
}

func (q *queries) FindPollsByOwner(ctx context.Context, ownerID string, search string, limit int) ([]entities.Poll, error) {
	return q.findPolls(
		ctx,
		"SELECT "+pollColumns+" FROM polls WHERE owner_id=? AND deleted=? AND name LIKE ? ORDER BY created_at DESC, id DESC LIMIT ?",
		ownerID,
		false,
		"%"+stripWildcards(search)+"%",
		limit,
	)
}

func (q *queries) FindPollsDueForNotification(ctx context.Context, now time.Time) ([]entities.Poll, error) {
	return q.findPolls(
		ctx,
		"SELECT "+pollColumns+" FROM polls WHERE closed=? AND deleted=? AND next_notification IS NOT NULL AND next_notification<=? ORDER BY next_notification, id",
		false,
		false,
		timestamp(now),
	)
}

func (q *queries) SavePoll(ctx context.Context, poll *entities.Poll) error {
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now()
	}
	poll.CreatedAt = timestamp(poll.CreatedAt)

	id, err := q.insert(
		ctx,
		"INSERT INTO polls("+pollColumns[len("id,"):]+") VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		poll.UUID.String(),
		poll.OwnerID,
		poll.Name,
		poll.Description,
		poll.Locale,
		poll.Mode.String(),
		poll.VoteLimit,
		poll.Created,
		poll.Anonymous,
		poll.ResultsVisible,
		poll.AllowNewOptions,
		poll.Closed,
		poll.Deleted,
		poll.Summarize,
		poll.PermanentlySummarized,
		poll.CompactButtons,
		poll.ShowPercentage,
		poll.ShowOptionVotes,
		poll.SortByPercentage,
		poll.SortVotesByName,
		nullTimestamp(poll.DueDate),
		nullTimestamp(poll.NextNotification),
		poll.CreatedAt,
	)
	if err != nil {
		return err
	}
	poll.ID = id

	for i := range poll.Options {
		poll.Options[i].PollID = id
		if err := q.AddOption(ctx, &poll.Options[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePoll writes every mutable column. Options are not touched.
func (q *queries) UpdatePoll(ctx context.Context, poll entities.Poll) error {
	err := q.execOne(
		ctx,
		"UPDATE polls SET name=?,description=?,locale=?,mode=?,vote_limit=?,created=?,anonymous=?,results_visible=?,"+
			"allow_new_options=?,closed=?,deleted=?,summarize=?,permanently_summarized=?,compact_buttons=?,"+
			"show_percentage=?,show_option_votes=?,sort_by_percentage=?,sort_votes_by_name=?,due_date=?,next_notification=? WHERE id=?",
		poll.Name,
		poll.Description,
		poll.Locale,
		poll.Mode.String(),
		poll.VoteLimit,
		poll.Created,
		poll.Anonymous,
		poll.ResultsVisible,
		poll.AllowNewOptions,
		poll.Closed,
		poll.Deleted,
		poll.Summarize,
		poll.PermanentlySummarized,
		poll.CompactButtons,
		poll.ShowPercentage,
		poll.ShowOptionVotes,
		poll.SortByPercentage,
		poll.SortVotesByName,
		nullTimestamp(poll.DueDate),
		nullTimestamp(poll.NextNotification),
		poll.ID,
	)
	if errors.Is(err, services.ErrNotFound) {
		return services.PollNotFound{ID: strconv.FormatInt(poll.ID, 10)}
	}
	return err
}

func (q *queries) MarkPermanentlySummarized(ctx context.Context, id int64) error {
	_, err := q.exec(ctx, "UPDATE polls SET permanently_summarized=? WHERE id=?", true, id)
	return err
}

// DeletePoll removes the poll row; options, votes, references, tickets and
// notifications go with it.
func (q *queries) DeletePoll(ctx context.Context, id int64) error {
	_, err := q.exec(ctx, "DELETE FROM polls WHERE id=?", id)
	return err
}

func (q *queries) AddOption(ctx context.Context, option *entities.Option) error {
	id, err := q.insert(
		ctx,
		"INSERT INTO poll_options(poll_id,idx,name,description,is_date) VALUES(?,?,?,?,?)",
		option.PollID,
		option.Index,
		option.Name,
		option.Description,
		option.IsDate,
	)
	if err != nil {
		return err
	}
	option.ID = id
	return nil
}

func (q *queries) FindOptionByID(ctx context.Context, id int64) (entities.Option, error) {
	var o entities.Option
	err := q.db.QueryRowContext(
		ctx,
		q.dialect.Rebind("SELECT id,poll_id,idx,name,description,is_date FROM poll_options WHERE id=?"),
		id,
	).Scan(&o.ID, &o.PollID, &o.Index, &o.Name, &o.Description, &o.IsDate)
	return o, q.dialect.Classify(err)
}

func (q *queries) findOptions(ctx context.Context, pollID int64) ([]entities.Option, error) {
	rows, err := q.query(ctx, "SELECT id,poll_id,idx,name,description,is_date FROM poll_options WHERE poll_id=? ORDER BY idx", pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []entities.Option
	for rows.Next() {
		var o entities.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Index, &o.Name, &o.Description, &o.IsDate); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, q.dialect.Classify(rows.Err())
}

func stripWildcards(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
