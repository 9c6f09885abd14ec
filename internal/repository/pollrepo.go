package repository

import (
	"context"

	"github.com/and161185/pollbox/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PollRepository provides access to the polls table.
type PollRepository interface {
	// Create inserts a poll; CreatedAt/UpdatedAt are filled from the row.
	Create(ctx context.Context, p *model.Poll) error

	// Get returns a single poll by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Poll, error)

	// List returns polls newest first.
	List(ctx context.Context, limit, offset int) ([]model.Poll, error)

	// Count returns the number of polls.
	Count(ctx context.Context) (int64, error)

	// Update replaces question and options, dropping votes whose option index
	// no longer exists, in one transaction.
	Update(ctx context.Context, p *model.Poll) error

	// Delete removes the poll's votes and then the poll, in one transaction.
	Delete(ctx context.Context, id uuid.UUID) error
}

// VoteRepository provides access to the votes table.
type VoteRepository interface {
	// Insert stores the vote unless (poll_id, user_id) already exists,
	// in which case it returns errs.ErrAlreadyExists.
	Insert(ctx context.Context, v *model.Vote) error

	// Get returns the vote cast by userID on pollID.
	Get(ctx context.Context, pollID, userID uuid.UUID) (*model.Vote, error)

	// CountByOption returns vote counts keyed by option index.
	CountByOption(ctx context.Context, pollID uuid.UUID) (map[int]int64, error)
}
