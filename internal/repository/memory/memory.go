// Package memory implements the repository interfaces in process memory.
// It backs the server when started with -dsn memory: and the HTTP tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
	"github.com/and161185/pollbox/internal/repository"
)

// DB is the shared state behind all three repositories.
type DB struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
	polls map[uuid.UUID]model.Poll
	votes map[voteKey]model.Vote
	now   func() time.Time
}

type voteKey struct{ poll, user uuid.UUID }

// New returns an empty database.
func New() *DB {
	return &DB{
		users: make(map[uuid.UUID]model.User),
		polls: make(map[uuid.UUID]model.Poll),
		votes: make(map[voteKey]model.Vote),
		now:   time.Now,
	}
}

type (
	UserRepo struct{ db *DB }
	PollRepo struct{ db *DB }
	VoteRepo struct{ db *DB }
)

var (
	_ repository.UserRepository = UserRepo{}
	_ repository.PollRepository = PollRepo{}
	_ repository.VoteRepository = VoteRepo{}
)

func (db *DB) Users() UserRepo { return UserRepo{db} }
func (db *DB) Polls() PollRepo { return PollRepo{db} }
func (db *DB) Votes() VoteRepo { return VoteRepo{db} }

// Ping always succeeds.
func (db *DB) Ping(context.Context) error { return nil }

func (r UserRepo) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, x := range r.db.users {
		if x.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	u.CreatedAt = r.db.now()
	r.db.users[u.ID] = *u
	return nil
}

func (r UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (r UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

// SetRole changes a user's role, for tests and admin tooling.
func (r UserRepo) SetRole(id uuid.UUID, role model.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Role = role
	r.db.users[id] = u
	return nil
}

func (r PollRepo) Create(_ context.Context, p *model.Poll) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[p.UserID]; !ok {
		return errs.ErrNotFound
	}
	p.CreatedAt = r.db.now()
	p.UpdatedAt = p.CreatedAt
	r.db.polls[p.ID] = clonePoll(*p)
	return nil
}

func (r PollRepo) Get(_ context.Context, id uuid.UUID) (*model.Poll, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	p, ok := r.db.polls[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	p = clonePoll(p)
	return &p, nil
}

func (r PollRepo) List(_ context.Context, limit, offset int) ([]model.Poll, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.Poll, 0, len(r.db.polls))
	for _, p := range r.db.polls {
		out = append(out, clonePoll(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if offset >= len(out) {
		return []model.Poll{}, nil
	}
	return out[offset:min(len(out), offset+limit)], nil
}

func (r PollRepo) Count(context.Context) (int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return int64(len(r.db.polls)), nil
}

func (r PollRepo) Update(_ context.Context, p *model.Poll) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.polls[p.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Question = p.Question
	cur.Options = append([]string(nil), p.Options...)
	cur.UpdatedAt = r.db.now()
	r.db.polls[p.ID] = cur
	p.UpdatedAt = cur.UpdatedAt
	for k, v := range r.db.votes {
		if k.poll == p.ID && v.OptionIndex >= len(p.Options) {
			delete(r.db.votes, k)
		}
	}
	return nil
}

func (r PollRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.polls[id]; !ok {
		return errs.ErrNotFound
	}
	for k := range r.db.votes {
		if k.poll == id {
			delete(r.db.votes, k)
		}
	}
	delete(r.db.polls, id)
	return nil
}

func (r VoteRepo) Insert(_ context.Context, v *model.Vote) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.polls[v.PollID]
	if !ok {
		return errs.ErrNotFound
	}
	if v.OptionIndex < 0 || v.OptionIndex >= len(p.Options) {
		return errs.ErrOutOfRange
	}
	k := voteKey{v.PollID, v.UserID}
	if _, ok := r.db.votes[k]; ok {
		return errs.ErrAlreadyExists
	}
	v.CreatedAt = r.db.now()
	r.db.votes[k] = *v
	return nil
}

func (r VoteRepo) Get(_ context.Context, pollID, userID uuid.UUID) (*model.Vote, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	v, ok := r.db.votes[voteKey{pollID, userID}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &v, nil
}

func (r VoteRepo) CountByOption(_ context.Context, pollID uuid.UUID) (map[int]int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make(map[int]int64)
	for k, v := range r.db.votes {
		if k.poll == pollID {
			out[v.OptionIndex]++
		}
	}
	return out, nil
}

func clonePoll(p model.Poll) model.Poll {
	p.Options = append([]string(nil), p.Options...)
	return p
}
