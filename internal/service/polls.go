package service

import (
	"context"
	"errors"
	"math"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"

	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
	"github.com/and161185/pollbox/internal/repository"
)

// Page size bounds for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Publisher receives poll change events; implementations must not block.
type Publisher interface {
	Publish(ev model.PollEvent)
}

// PollService defines poll mutations guarded by the gate and the read side.
type PollService interface {
	Create(ctx context.Context, c Caller, in PollInput) (*model.Poll, error)
	Update(ctx context.Context, c Caller, pollID uuid.UUID, in PollInput) (*model.Poll, error)
	Delete(ctx context.Context, c Caller, pollID uuid.UUID) error
	Vote(ctx context.Context, c Caller, pollID uuid.UUID, optionIndex int) (*model.Vote, error)

	Get(ctx context.Context, pollID uuid.UUID) (*model.Poll, error)
	List(ctx context.Context, limit, offset int) ([]model.Poll, error)
	Count(ctx context.Context) (int64, error)
	Results(ctx context.Context, pollID uuid.UUID) (*model.Results, error)
	MyVote(ctx context.Context, id *model.Identity, pollID uuid.UUID) (*model.Vote, error)
}

type PollServiceImpl struct {
	gate  *Gate
	polls repository.PollRepository
	votes repository.VoteRepository
	pub   Publisher
}

var _ PollService = (*PollServiceImpl)(nil)

// NewPollService constructs PollService. pub may be nil.
func NewPollService(gate *Gate, polls repository.PollRepository, votes repository.VoteRepository, pub Publisher) *PollServiceImpl {
	return &PollServiceImpl{gate: gate, polls: polls, votes: votes, pub: pub}
}

// Create admits the caller, validates input and stores a poll owned by the caller.
func (s *PollServiceImpl) Create(ctx context.Context, c Caller, in PollInput) (*model.Poll, error) {
	id, err := s.gate.Admit(c)
	if err != nil {
		return nil, err
	}
	in, err = in.Normalize()
	if err != nil {
		return nil, err
	}
	pid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p := &model.Poll{ID: pid, UserID: id.ID, Question: in.Question, Options: in.Options}
	if err := s.polls.Create(ctx, p); err != nil {
		return nil, errs.Upstream(err)
	}
	return p, nil
}

// Update replaces question and options; votes for removed options are dropped.
func (s *PollServiceImpl) Update(ctx context.Context, c Caller, pollID uuid.UUID, in PollInput) (*model.Poll, error) {
	id, err := s.gate.Admit(c)
	if err != nil {
		return nil, err
	}
	in, err = in.Normalize()
	if err != nil {
		return nil, err
	}
	p, err := s.loadPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(id, p); err != nil {
		return nil, err
	}

	p.Question, p.Options = in.Question, in.Options
	if err := s.polls.Update(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	s.publishResults(ctx, p)
	return p, nil
}

// Delete removes a poll and its votes.
func (s *PollServiceImpl) Delete(ctx context.Context, c Caller, pollID uuid.UUID) error {
	id, err := s.gate.Admit(c)
	if err != nil {
		return err
	}
	p, err := s.loadPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if err := Authorize(id, p); err != nil {
		return err
	}
	if err := s.polls.Delete(ctx, pollID); err != nil {
		return storeErr(err)
	}
	if s.pub != nil {
		s.pub.Publish(model.PollEvent{Type: model.PollDeleted, PollID: pollID})
	}
	return nil
}

// Vote records the caller's single vote on a poll.
func (s *PollServiceImpl) Vote(ctx context.Context, c Caller, pollID uuid.UUID, optionIndex int) (*model.Vote, error) {
	id, err := s.gate.Admit(c)
	if err != nil {
		return nil, err
	}
	p, err := s.loadPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if optionIndex < 0 || optionIndex >= len(p.Options) {
		return nil, errs.Validation(errs.MsgInvalidOption)
	}

	v := &model.Vote{PollID: pollID, UserID: id.ID, OptionIndex: optionIndex}
	switch err := s.votes.Insert(ctx, v); {
	case err == nil:
	case errors.Is(err, errs.ErrAlreadyExists):
		return nil, errs.Wrap(errs.KindAlreadyVoted, errs.MsgAlreadyVoted, err)
	case errors.Is(err, errs.ErrOutOfRange):
		// options shrank after the poll was loaded
		return nil, errs.Wrap(errs.KindValidation, errs.MsgInvalidOption, err)
	default:
		return nil, storeErr(err)
	}
	s.publishResults(ctx, p)
	return v, nil
}

// Get returns a single poll.
func (s *PollServiceImpl) Get(ctx context.Context, pollID uuid.UUID) (*model.Poll, error) {
	return s.loadPoll(ctx, pollID)
}

// PageSize is the page size List serves for a requested limit.
func PageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return min(limit, MaxPageSize)
}

// List returns a page of polls, newest first. Out-of-range paging is clamped.
func (s *PollServiceImpl) List(ctx context.Context, limit, offset int) ([]model.Poll, error) {
	limit = PageSize(limit)
	offset = max(offset, 0)
	out, err := s.polls.List(ctx, limit, offset)
	if err != nil {
		return nil, errs.Upstream(err)
	}
	return out, nil
}

// Count returns the total number of polls.
func (s *PollServiceImpl) Count(ctx context.Context) (int64, error) {
	n, err := s.polls.Count(ctx)
	if err != nil {
		return 0, errs.Upstream(err)
	}
	return n, nil
}

// Results aggregates vote counts per option.
func (s *PollServiceImpl) Results(ctx context.Context, pollID uuid.UUID) (*model.Results, error) {
	p, err := s.loadPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	return s.results(ctx, p)
}

// MyVote returns the caller's vote on a poll, or nil if they have not voted.
func (s *PollServiceImpl) MyVote(ctx context.Context, id *model.Identity, pollID uuid.UUID) (*model.Vote, error) {
	if id == nil {
		return nil, errs.Unauthenticated()
	}
	v, err := s.votes.Get(ctx, pollID, id.ID)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	default:
		return nil, errs.Upstream(err)
	}
}

func (s *PollServiceImpl) results(ctx context.Context, p *model.Poll) (*model.Results, error) {
	counts, err := s.votes.CountByOption(ctx, p.ID)
	if err != nil {
		return nil, errs.Upstream(err)
	}
	return Tally(p, counts), nil
}

func (s *PollServiceImpl) publishResults(ctx context.Context, p *model.Poll) {
	if s.pub == nil {
		return
	}
	res, err := s.results(ctx, p)
	if err != nil {
		return
	}
	s.pub.Publish(model.PollEvent{Type: model.PollUpdated, PollID: p.ID, Results: res})
}

func (s *PollServiceImpl) loadPoll(ctx context.Context, pollID uuid.UUID) (*model.Poll, error) {
	p, err := s.polls.Get(ctx, pollID)
	if err != nil {
		return nil, storeErr(err)
	}
	return p, nil
}

// Tally builds results from per-option counts. Counts for indexes outside
// the poll's options are ignored; percentages are rounded to one decimal.
func Tally(p *model.Poll, counts map[int]int64) *model.Results {
	opts := lo.Map(p.Options, func(text string, i int) model.OptionResult {
		return model.OptionResult{Index: i, Text: text, Votes: counts[i]}
	})
	total := lo.SumBy(opts, func(o model.OptionResult) int64 { return o.Votes })
	if total > 0 {
		for i := range opts {
			opts[i].Percent = math.Round(float64(opts[i].Votes)/float64(total)*1000) / 10
		}
	}
	return &model.Results{PollID: p.ID, Question: p.Question, Options: opts, TotalVotes: total}
}

func storeErr(err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Wrap(errs.KindNotFound, errs.MsgPollNotFound, err)
	}
	return errs.Upstream(err)
}
