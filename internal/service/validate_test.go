package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/pollbox/internal/errs"
)

func options(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("option %d", i+1)
	}
	return out
}

func TestPollInput_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      PollInput
		wantMsg string
	}{
		{"ok two", PollInput{Question: "Q?", Options: options(2)}, ""},
		{"ok ten", PollInput{Question: "Q?", Options: options(10)}, ""},
		{"ok 500 runes", PollInput{Question: strings.Repeat("я", 500), Options: options(2)}, ""},
		{"blank question", PollInput{Question: "   ", Options: options(2)}, MsgQuestionRequired},
		{"question 501", PollInput{Question: strings.Repeat("q", 501), Options: options(2)}, MsgQuestionTooLong},
		{"one option", PollInput{Question: "Q?", Options: options(1)}, MsgTooFewOptions},
		{"eleven options", PollInput{Question: "Q?", Options: options(11)}, MsgTooManyOptions},
		{"empty option", PollInput{Question: "Q?", Options: []string{"a", "  "}}, MsgEmptyOption},
		{"option 201", PollInput{Question: "Q?", Options: []string{"a", strings.Repeat("o", 201)}}, MsgOptionTooLong},
		{"duplicate after trim", PollInput{Question: "Q?", Options: []string{"Yes", " Yes "}}, MsgDuplicateOptions},
		// first failing rule wins
		{"blank question and one option", PollInput{Question: "", Options: options(1)}, MsgQuestionRequired},
		{"empty and duplicate", PollInput{Question: "Q?", Options: []string{"", "", "a"}}, MsgEmptyOption},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := tc.in.Normalize()
			if tc.wantMsg == "" {
				require.NoError(t, err)
				require.Len(t, out.Options, len(tc.in.Options))
				return
			}
			require.Equal(t, errs.KindValidation, errs.KindOf(err))
			require.EqualError(t, err, tc.wantMsg)
		})
	}
}

func TestPollInput_Normalize_Trims(t *testing.T) {
	t.Parallel()

	out, err := PollInput{Question: "  Lunch?  ", Options: []string{" Pizza", "Sushi "}}.Normalize()
	require.NoError(t, err)
	require.Equal(t, "Lunch?", out.Question)
	require.Equal(t, []string{"Pizza", "Sushi"}, out.Options)
}
