package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/roomshare/internal/logger"
	"github.com/avstrong/roomshare/internal/roomshare"
)

func newSeededDB(t *testing.T) *DB {
	t.Helper()

	db := New(Config{L: logger.NewNop()})

	ctx, err := db.BeginTransaction(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, db.Deposit(ctx, "alice", 100))
	require.NoError(t, db.CommitTransaction(ctx))

	return db
}

func TestTransfer(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	trxCtx, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)
	assert.True(t, inTransaction(trxCtx))
	assert.False(t, inTransaction(ctx))

	_, err = db.BeginTransaction(trxCtx, "")
	require.ErrorIs(t, err, ErrNestedTransaction)

	require.NoError(t, db.Transfer(trxCtx, "alice", "bob", 60))

	bob, err := db.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bob, "uncommitted transfers are invisible")

	err = db.Transfer(trxCtx, "alice", "bob", 50)
	require.ErrorIs(t, err, roomshare.ErrInsufficientFunds)

	require.NoError(t, db.CommitTransaction(trxCtx))

	alice, err := db.Balance(ctx, "alice")
	require.NoError(t, err)
	bob, err = db.Balance(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, int64(40), alice)
	assert.Equal(t, int64(60), bob)

	require.ErrorIs(t, db.CommitTransaction(trxCtx), ErrTransactionNotFound)
}

func TestRollback(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	trxCtx, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)
	require.NoError(t, db.Transfer(trxCtx, "alice", "bob", 100))
	require.NoError(t, db.RollbackTransaction(trxCtx))

	alice, err := db.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), alice)
}

func TestTransferEdgeCases(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	require.ErrorIs(t, db.Transfer(ctx, "alice", "bob", 1), ErrTransactionIDNotFoundInCtx)
	require.ErrorIs(t, db.Deposit(ctx, "alice", 1), ErrTransactionIDNotFoundInCtx)

	trxCtx, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)

	require.ErrorIs(t, db.Transfer(trxCtx, "alice", "bob", -1), ErrNegativeAmount)
	require.ErrorIs(t, db.Deposit(trxCtx, "alice", -1), ErrNegativeAmount)
	require.NoError(t, db.Transfer(trxCtx, "nobody", "bob", 0))
	require.NoError(t, db.Transfer(trxCtx, "alice", "alice", 1000))
	require.NoError(t, db.CommitTransaction(trxCtx))

	alice, err := db.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), alice)
}

func TestTransactionsOnDifferentAccountsAreIsolated(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	first, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)
	second, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)

	require.NoError(t, db.Deposit(first, "bob", 5))
	require.NoError(t, db.Deposit(second, "carol", 7))
	require.NoError(t, db.RollbackTransaction(first))
	require.NoError(t, db.CommitTransaction(second))

	bob, err := db.Balance(ctx, "bob")
	require.NoError(t, err)
	carol, err := db.Balance(ctx, "carol")
	require.NoError(t, err)

	assert.Zero(t, bob)
	assert.Equal(t, int64(7), carol)
}

func TestCommitRejectsOverspendByConcurrentTransaction(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	first, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)
	second, err := db.BeginTransaction(ctx, "")
	require.NoError(t, err)

	require.NoError(t, db.Transfer(first, "alice", "bob", 60))
	require.NoError(t, db.Transfer(second, "alice", "carol", 60))

	require.NoError(t, db.CommitTransaction(first))
	require.ErrorIs(t, db.CommitTransaction(second), roomshare.ErrInsufficientFunds)
	require.ErrorIs(t, db.RollbackTransaction(second), ErrTransactionNotFound)

	alice, err := db.Balance(ctx, "alice")
	require.NoError(t, err)
	bob, err := db.Balance(ctx, "bob")
	require.NoError(t, err)
	carol, err := db.Balance(ctx, "carol")
	require.NoError(t, err)

	assert.Equal(t, int64(40), alice)
	assert.Equal(t, int64(60), bob)
	assert.Zero(t, carol)
}

func TestConcurrentCommitsToSameAccountAllApply(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	const writers = 20

	var wg sync.WaitGroup

	errs := make(chan error, writers)

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			trxCtx, err := db.BeginTransaction(ctx, "")
			if err != nil {
				errs <- err

				return
			}

			if err := db.Transfer(trxCtx, "alice", "bob", 1); err != nil {
				errs <- err

				return
			}

			if err := db.Deposit(trxCtx, "alice", 2); err != nil {
				errs <- err

				return
			}

			errs <- db.CommitTransaction(trxCtx)
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	alice, err := db.Balance(ctx, "alice")
	require.NoError(t, err)
	bob, err := db.Balance(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, int64(100+writers), alice)
	assert.Equal(t, int64(writers), bob)
}
