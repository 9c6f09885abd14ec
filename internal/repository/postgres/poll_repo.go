package postgres

import (
	"context"
	"errors"

	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PollRepo implements PollRepository using PostgreSQL.
type PollRepo struct{ db *DB }

// NewPollRepo constructs a poll repository.
func NewPollRepo(db *DB) *PollRepo { return &PollRepo{db: db} }

// Create inserts a poll row.
func (r *PollRepo) Create(ctx context.Context, p *model.Poll) error {
	const q = `
INSERT INTO polls (id, user_id, question, options)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, p.ID, p.UserID, p.Question, p.Options).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

// Get returns a single poll by id.
func (r *PollRepo) Get(ctx context.Context, id uuid.UUID) (*model.Poll, error) {
	const q = `
SELECT id, user_id, question, options, created_at, updated_at
FROM polls WHERE id=$1`
	var p model.Poll
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.UserID, &p.Question, &p.Options, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns a page of polls, newest first.
func (r *PollRepo) List(ctx context.Context, limit, offset int) ([]model.Poll, error) {
	const q = `
SELECT id, user_id, question, options, created_at, updated_at
FROM polls
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Poll, 0, limit)
	for rows.Next() {
		var p model.Poll
		if err = rows.Scan(&p.ID, &p.UserID, &p.Question, &p.Options, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the total number of polls.
func (r *PollRepo) Count(ctx context.Context) (int64, error) {
	const q = `SELECT count(*) FROM polls`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Update rewrites question/options and prunes votes for options that no longer exist.
func (r *PollRepo) Update(ctx context.Context, p *model.Poll) error {
	const upd = `UPDATE polls SET question=$2, options=$3, updated_at=now() WHERE id=$1 RETURNING updated_at`
	const prune = `DELETE FROM votes WHERE poll_id=$1 AND option_index >= $2`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, upd, p.ID, p.Question, p.Options).Scan(&p.UpdatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		_, err := tx.Exec(ctx, prune, p.ID, len(p.Options))
		return err
	})
}

// Delete removes dependent votes before the poll itself.
func (r *PollRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const delVotes = `DELETE FROM votes WHERE poll_id=$1`
	const delPoll = `DELETE FROM polls WHERE id=$1`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, delVotes, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, delPoll, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
