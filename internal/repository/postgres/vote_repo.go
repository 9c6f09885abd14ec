package postgres

import (
	"context"
	"errors"

	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// VoteRepo implements VoteRepository using PostgreSQL.
type VoteRepo struct{ db *DB }

// NewVoteRepo constructs a vote repository.
func NewVoteRepo(db *DB) *VoteRepo { return &VoteRepo{db: db} }

// Insert is an atomic insert-if-absent keyed on (poll_id, user_id). The row is
// only written while the poll exists and has an option at v.OptionIndex.
func (r *VoteRepo) Insert(ctx context.Context, v *model.Vote) error {
	const q = `
INSERT INTO votes (poll_id, user_id, option_index)
SELECT $1, $2, $3 FROM polls
WHERE id = $1 AND cardinality(options) > $3
ON CONFLICT (poll_id, user_id) DO NOTHING
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, v.PollID, v.UserID, v.OptionIndex).Scan(&v.CreatedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.whyNotInserted(ctx, v)
	case isForeignKeyViolation(err):
		// poll deleted between lookup and insert
		return errs.ErrNotFound
	default:
		return err
	}
}

// whyNotInserted tells a missing poll and a stale index apart from a conflict.
func (r *VoteRepo) whyNotInserted(ctx context.Context, v *model.Vote) error {
	const q = `SELECT cardinality(options) FROM polls WHERE id=$1`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, v.PollID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	if v.OptionIndex < 0 || v.OptionIndex >= n {
		return errs.ErrOutOfRange
	}
	return errs.ErrAlreadyExists
}

// Get returns the vote a user cast on a poll.
func (r *VoteRepo) Get(ctx context.Context, pollID, userID uuid.UUID) (*model.Vote, error) {
	const q = `
SELECT poll_id, user_id, option_index, created_at
FROM votes WHERE poll_id=$1 AND user_id=$2`
	var v model.Vote
	if err := r.db.Pool.QueryRow(ctx, q, pollID, userID).Scan(&v.PollID, &v.UserID, &v.OptionIndex, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// CountByOption tallies votes per option index.
func (r *VoteRepo) CountByOption(ctx context.Context, pollID uuid.UUID) (map[int]int64, error) {
	const q = `
SELECT option_index, count(*)
FROM votes
WHERE poll_id=$1
GROUP BY option_index`
	rows, err := r.db.Pool.Query(ctx, q, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var (
			idx int
			n   int64
		)
		if err = rows.Scan(&idx, &n); err != nil {
			return nil, err
		}
		out[idx] = n
	}
	return out, rows.Err()
}
