package migration

import (
	"context"
	"fmt"

	"github.com/avstrong/roomshare/internal/logger"
	"github.com/avstrong/roomshare/internal/roomshare"
)

type storage interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	Deposit(ctx context.Context, who roomshare.Identity, amount int64) error
}

type Account struct {
	Identity roomshare.Identity
	Balance  int64
}

// Up credits the seed balances in a single transaction.
func Up(ctx context.Context, l *logger.Logger, storage storage, accounts []Account) (err error) {
	ctx, err = storage.BeginTransaction(ctx, "")
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after panic %v", p)
			}

			l.LogInfo("Migration transaction has been roll backed after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after error %v", rbErr.Error())
			}

			l.LogInfo("Migration transaction has been roll backed after error")

			return
		}

		if err = storage.CommitTransaction(ctx); err != nil {
			l.LogErrorf("Could not commit migration transaction, err %v", err.Error())

			return
		}

		l.LogInfo("Migration transaction has been committed, %d accounts seeded", len(accounts))
	}()

	for _, acc := range accounts {
		if !acc.Identity.Valid() {
			return fmt.Errorf("seed account: %w", roomshare.ErrInvalidIdentity)
		}

		if err = storage.Deposit(ctx, acc.Identity, acc.Balance); err != nil {
			return fmt.Errorf("seed balance of %s: %w", acc.Identity, err)
		}
	}

	return nil
}
