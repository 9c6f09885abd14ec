package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/pollbox/internal/errs"
	"github.com/and161185/pollbox/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

const (
	insertVoteSQL  = `INSERT INTO votes \(poll_id, user_id, option_index\) SELECT \$1, \$2, \$3 FROM polls WHERE id = \$1 AND cardinality\(options\) > \$3 ON CONFLICT \(poll_id, user_id\) DO NOTHING RETURNING created_at`
	optionCountSQL = `SELECT cardinality\(options\) FROM polls WHERE id=\$1`
)

func TestVoteRepo_Insert_OK_Conflict_FK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVoteRepo(db)
	ctx := context.Background()

	v := &model.Vote{PollID: uuid.Must(uuid.NewV4()), UserID: uuid.Must(uuid.NewV4()), OptionIndex: 1}
	now := time.Now()

	mock.ExpectQuery(insertVoteSQL).
		WithArgs(v.PollID, v.UserID, 1).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	require.NoError(t, r.Insert(ctx, v))
	require.Equal(t, now, v.CreatedAt)

	// DO NOTHING returns no row on conflict
	mock.ExpectQuery(insertVoteSQL).
		WithArgs(v.PollID, v.UserID, 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(optionCountSQL).
		WithArgs(v.PollID).
		WillReturnRows(pgxmock.NewRows([]string{"cardinality"}).AddRow(3))
	require.ErrorIs(t, r.Insert(ctx, v), errs.ErrAlreadyExists)

	mock.ExpectQuery(insertVoteSQL).
		WithArgs(v.PollID, v.UserID, 1).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, r.Insert(ctx, v), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteRepo_Insert_StaleIndexOrMissingPoll(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVoteRepo(db)
	ctx := context.Background()

	// options shrank to 2 after the caller picked index 2
	v := &model.Vote{PollID: uuid.Must(uuid.NewV4()), UserID: uuid.Must(uuid.NewV4()), OptionIndex: 2}
	mock.ExpectQuery(insertVoteSQL).
		WithArgs(v.PollID, v.UserID, 2).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(optionCountSQL).
		WithArgs(v.PollID).
		WillReturnRows(pgxmock.NewRows([]string{"cardinality"}).AddRow(2))
	require.ErrorIs(t, r.Insert(ctx, v), errs.ErrOutOfRange)

	mock.ExpectQuery(insertVoteSQL).
		WithArgs(v.PollID, v.UserID, 2).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(optionCountSQL).
		WithArgs(v.PollID).
		WillReturnError(pgx.ErrNoRows)
	require.ErrorIs(t, r.Insert(ctx, v), errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVoteRepo(db)
	ctx := context.Background()
	pollID := uuid.Must(uuid.NewV4())
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT poll_id, user_id, option_index, created_at FROM votes WHERE poll_id=\$1 AND user_id=\$2`).
		WithArgs(pollID, userID).
		WillReturnRows(pgxmock.NewRows([]string{"poll_id", "user_id", "option_index", "created_at"}).
			AddRow(pollID, userID, 2, time.Now()))
	v, err := r.Get(ctx, pollID, userID)
	require.NoError(t, err)
	require.Equal(t, 2, v.OptionIndex)

	mock.ExpectQuery(`SELECT poll_id, user_id, option_index, created_at FROM votes`).
		WithArgs(pollID, userID).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, pollID, userID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVoteRepo_CountByOption(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVoteRepo(db)
	pollID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT option_index, count\(\*\) FROM votes WHERE poll_id=\$1 GROUP BY option_index`).
		WithArgs(pollID).
		WillReturnRows(pgxmock.NewRows([]string{"option_index", "count"}).
			AddRow(0, int64(3)).
			AddRow(2, int64(1)))

	counts, err := r.CountByOption(context.Background(), pollID)
	require.NoError(t, err)
	require.Equal(t, map[int]int64{0: 3, 2: 1}, counts)
}
