package repository

import (
	"context"

	"github.com/CedricFinance/paulpoll/domain/entities"
)

const referenceColumns = "id,poll_id,kind,chat_id,message_id,inline_id,user_id,failures,rendered_hash,created_at"

func scanReference(scan func(dest ...interface{}) error) (entities.Reference, error) {
	var ref entities.Reference
	var kind string
	err := scan(
		&ref.ID, &ref.PollID, &kind, &ref.Handle.ChatID, &ref.Handle.MessageID, &ref.Handle.InlineID,
		&ref.UserID, &ref.Failures, &ref.RenderedHash, &ref.CreatedAt,
	)
	ref.Kind = entities.ReferenceKind(kind)
	ref.CreatedAt = ref.CreatedAt.UTC()
	return ref, err
}

// SaveReference fails with services.ErrConflict when the handle is already
// registered.
func (q *queries) SaveReference(ctx context.Context, ref *entities.Reference) error {
	ref.CreatedAt = timestamp(ref.CreatedAt)

	id, err := q.insert(
		ctx,
		"INSERT INTO poll_references(poll_id,kind,handle,chat_id,message_id,inline_id,user_id,failures,rendered_hash,created_at) VALUES(?,?,?,?,?,?,?,?,?,?)",
		ref.PollID,
		string(ref.Kind),
		ref.Handle.Key(),
		ref.Handle.ChatID,
		ref.Handle.MessageID,
		ref.Handle.InlineID,
		ref.UserID,
		ref.Failures,
		ref.RenderedHash,
		ref.CreatedAt,
	)
	if err != nil {
		return err
	}
	ref.ID = id
	return nil
}

func (q *queries) FindReferenceByHandle(ctx context.Context, handle entities.MessageHandle) (entities.Reference, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind("SELECT "+referenceColumns+" FROM poll_references WHERE handle=?"), handle.Key())
	ref, err := scanReference(row.Scan)
	return ref, q.dialect.Classify(err)
}

// GetReferences lists the mirrors of a poll in registration order.
func (q *queries) GetReferences(ctx context.Context, pollID int64) ([]entities.Reference, error) {
	rows, err := q.query(ctx, "SELECT "+referenceColumns+" FROM poll_references WHERE poll_id=? ORDER BY id", pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []entities.Reference
	for rows.Next() {
		ref, err := scanReference(rows.Scan)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}
	return refs, q.dialect.Classify(rows.Err())
}

// UpdateReference stores the delivery bookkeeping of a mirror.
func (q *queries) UpdateReference(ctx context.Context, ref entities.Reference) error {
	return q.execOne(
		ctx,
		"UPDATE poll_references SET failures=?,rendered_hash=? WHERE id=?",
		ref.Failures,
		ref.RenderedHash,
		ref.ID,
	)
}

func (q *queries) DeleteReference(ctx context.Context, id int64) error {
	_, err := q.exec(ctx, "DELETE FROM poll_references WHERE id=?", id)
	return err
}
