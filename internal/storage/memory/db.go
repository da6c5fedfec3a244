package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/avstrong/roomshare/internal/logger"
	"github.com/avstrong/roomshare/internal/roomshare"
)

type Config struct {
	L *logger.Logger
}

// transaction keeps the net change of every account it touched. Nothing is
// visible to other readers until commit, which applies the changes on top of
// the balances committed by then.
type transaction struct {
	id     string
	deltas map[roomshare.Identity]int64
	ops    int
}

// DB is the in-memory account book used to settle rent payments.
type DB struct {
	mu           sync.Mutex
	l            *logger.Logger
	balances     map[roomshare.Identity]int64
	transactions map[string]*transaction
	nextTrxID    int64
}

func New(conf Config) *DB {
	//nolint:exhaustruct
	return &DB{
		l:            conf.L,
		balances:     make(map[roomshare.Identity]int64),
		transactions: make(map[string]*transaction),
	}
}

func (db *DB) BeginTransaction(ctx context.Context, _ string) (context.Context, error) {
	if inTransaction(ctx) {
		return nil, ErrNestedTransaction
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	trxID := fmt.Sprintf("trx-%d", db.nextTrxID)
	db.nextTrxID++

	db.transactions[trxID] = &transaction{
		id:     trxID,
		deltas: make(map[roomshare.Identity]int64),
	}

	return withTransactionID(ctx, trxID), nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	// Another transaction may have spent from the same account since this one
	// read it.
	for who, delta := range trx.deltas {
		if balance := db.balances[who] + delta; balance < 0 {
			return fmt.Errorf("commit %s: %s would hold %d: %w", trx.id, who, balance, roomshare.ErrInsufficientFunds)
		}
	}

	for who, delta := range trx.deltas {
		db.balances[who] += delta
	}

	db.l.LogDebugf("Transaction %s committed with %d operations", trx.id, trx.ops)

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	return nil
}

// Deposit credits an account inside the transaction carried by ctx.
func (db *DB) Deposit(ctx context.Context, who roomshare.Identity, amount int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	if amount < 0 {
		return fmt.Errorf("deposit %d to %s: %w", amount, who, ErrNegativeAmount)
	}

	trx.deltas[who] += amount
	trx.ops++

	return nil
}

// Transfer moves amount between two accounts inside the transaction carried
// by ctx. The source may not go below zero.
func (db *DB) Transfer(ctx context.Context, from, to roomshare.Identity, amount int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.transactionFromContext(ctx)
	if err != nil {
		return err
	}

	if amount < 0 {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrNegativeAmount)
	}

	if amount == 0 || from == to {
		return nil
	}

	fromBalance := db.balanceLocked(trx, from)
	if fromBalance < amount {
		return fmt.Errorf("%s holds %d, needs %d: %w", from, fromBalance, amount, roomshare.ErrInsufficientFunds)
	}

	trx.deltas[from] -= amount
	trx.deltas[to] += amount
	trx.ops++

	return nil
}

// Balance returns the committed balance; unknown accounts hold zero.
func (db *DB) Balance(_ context.Context, who roomshare.Identity) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.balances[who], nil
}

func (db *DB) balanceLocked(trx *transaction, who roomshare.Identity) int64 {
	return db.balances[who] + trx.deltas[who]
}

func (db *DB) transactionFromContext(ctx context.Context) (*transaction, error) {
	trxID, ok := transactionIDFromContext(ctx)
	if !ok || trxID == "" {
		return nil, ErrTransactionIDNotFoundInCtx
	}

	trx, exists := db.transactions[trxID]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found: %w", trxID, ErrTransactionNotFound)
	}

	return trx, nil
}
