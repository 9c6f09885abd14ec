package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/limiter"
	"github.com/and161185/pollbox/internal/model"
	"github.com/and161185/pollbox/internal/repository"
)

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byEmail[u.Email] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// store is an in-memory poll and vote store sharing one lock, like the two
// tables sharing one database.
type store struct {
	mu    sync.Mutex
	polls map[uuid.UUID]model.Poll
	votes map[[2]uuid.UUID]model.Vote

	ops []string // mutation log, in order

	failWith error
}

func newStore() *store {
	return &store{polls: map[uuid.UUID]model.Poll{}, votes: map[[2]uuid.UUID]model.Vote{}}
}

type fakePolls struct{ *store }
type fakeVotes struct{ *store }

var (
	_ repository.PollRepository = fakePolls{}
	_ repository.VoteRepository = fakeVotes{}
)

func (f fakePolls) Create(_ context.Context, p *model.Poll) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.polls[p.ID] = *p
	f.ops = append(f.ops, "create poll")
	return nil
}

func (f fakePolls) Get(_ context.Context, id uuid.UUID) (*model.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	p, ok := f.polls[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	p.Options = append([]string(nil), p.Options...)
	return &p, nil
}

func (f fakePolls) List(_ context.Context, limit, offset int) ([]model.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]model.Poll, 0, len(f.polls))
	for _, p := range f.polls {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []model.Poll{}, nil
	}
	return out[offset:min(len(out), offset+limit)], nil
}

func (f fakePolls) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.polls)), f.failWith
}

func (f fakePolls) Update(_ context.Context, p *model.Poll) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.polls[p.ID]; !ok {
		return errs.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	f.polls[p.ID] = *p
	for k, v := range f.votes {
		if v.PollID == p.ID && v.OptionIndex >= len(p.Options) {
			delete(f.votes, k)
		}
	}
	f.ops = append(f.ops, "update poll")
	return nil
}

func (f fakePolls) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for k, v := range f.votes {
		if v.PollID == id {
			delete(f.votes, k)
		}
	}
	f.ops = append(f.ops, "delete votes")
	if _, ok := f.polls[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.polls, id)
	f.ops = append(f.ops, "delete poll")
	return nil
}

func (f fakeVotes) Insert(_ context.Context, v *model.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	p, ok := f.polls[v.PollID]
	if !ok {
		return errs.ErrNotFound
	}
	if v.OptionIndex < 0 || v.OptionIndex >= len(p.Options) {
		return errs.ErrOutOfRange
	}
	key := [2]uuid.UUID{v.PollID, v.UserID}
	if _, ok := f.votes[key]; ok {
		return errs.ErrAlreadyExists
	}
	v.CreatedAt = time.Now()
	f.votes[key] = *v
	f.ops = append(f.ops, "insert vote")
	return nil
}

func (f fakeVotes) Get(_ context.Context, pollID, userID uuid.UUID) (*model.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	v, ok := f.votes[[2]uuid.UUID{pollID, userID}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &v, nil
}

func (f fakeVotes) CountByOption(_ context.Context, pollID uuid.UUID) (map[int]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := map[int]int64{}
	for _, v := range f.votes {
		if v.PollID == pollID {
			out[v.OptionIndex]++
		}
	}
	return out, nil
}

func (f *store) voteCount(pollID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.votes {
		if v.PollID == pollID {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.PollEvent
}

func (p *recordingPublisher) Publish(ev model.PollEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) last() model.PollEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}
