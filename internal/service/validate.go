package service

import (
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/and161185/pollbox/internal/errs"
)

// Poll input limits.
const (
	MaxQuestionLen = 500
	MaxOptionLen   = 200
	MinOptions     = 2
	MaxOptions     = 10
)

// Validation messages, in the order they are checked.
const (
	MsgQuestionRequired = "question is required"
	MsgQuestionTooLong  = "question must be 500 characters or less"
	MsgTooFewOptions    = "at least 2 options are required"
	MsgTooManyOptions   = "at most 10 options are allowed"
	MsgEmptyOption      = "options cannot be empty"
	MsgOptionTooLong    = "each option must be 200 characters or less"
	MsgDuplicateOptions = "options must be unique"
)

// PollInput is the user-supplied part of a poll.
type PollInput struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Normalize validates in and returns it trimmed. The first failed rule wins.
func (in PollInput) Normalize() (PollInput, error) {
	q := strings.TrimSpace(in.Question)
	switch {
	case q == "":
		return PollInput{}, errs.Validation(MsgQuestionRequired)
	case utf8.RuneCountInString(q) > MaxQuestionLen:
		return PollInput{}, errs.Validation(MsgQuestionTooLong)
	case len(in.Options) < MinOptions:
		return PollInput{}, errs.Validation(MsgTooFewOptions)
	case len(in.Options) > MaxOptions:
		return PollInput{}, errs.Validation(MsgTooManyOptions)
	}

	opts := lo.Map(in.Options, func(o string, _ int) string { return strings.TrimSpace(o) })
	if lo.Contains(opts, "") {
		return PollInput{}, errs.Validation(MsgEmptyOption)
	}
	if lo.ContainsBy(opts, func(o string) bool { return utf8.RuneCountInString(o) > MaxOptionLen }) {
		return PollInput{}, errs.Validation(MsgOptionTooLong)
	}
	if len(lo.Uniq(opts)) != len(opts) {
		return PollInput{}, errs.Validation(MsgDuplicateOptions)
	}
	return PollInput{Question: q, Options: opts}, nil
}
