package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx

	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return pgx.ErrTxClosed
}

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	beginner := &fakeBeginner{tx: tx}

	err := WithTx(context.Background(), beginner, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	assert.True(t, tx.committed)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	tx := &fakeTx{}
	beginner := &fakeBeginner{tx: tx}
	boom := errors.New("boom")

	err := WithTx(context.Background(), beginner, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	tx := &fakeTx{}
	beginner := &fakeBeginner{tx: tx}

	func() {
		defer func() {
			require.NotNil(t, recover())
		}()
		_ = WithTx(context.Background(), beginner, func(pgx.Tx) error {
			panic("query blew up")
		})
	}()

	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestWithTxWrapsBeginError(t *testing.T) {
	beginErr := &pgconn.PgError{Code: "53300", Message: "too many connections"}
	beginner := &fakeBeginner{beginErr: beginErr}

	err := WithTx(context.Background(), beginner, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, beginErr)
}

func TestWithTxReportsCommitError(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	beginner := &fakeBeginner{tx: tx}

	err := WithTx(context.Background(), beginner, func(pgx.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit tx")
}
