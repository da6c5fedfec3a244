package memory

import "context"

type contextKey struct{}

func withTransactionID(ctx context.Context, trxID string) context.Context {
	return context.WithValue(ctx, contextKey{}, trxID)
}

func transactionIDFromContext(ctx context.Context) (string, bool) {
	trxID, ok := ctx.Value(contextKey{}).(string)

	return trxID, ok
}

func inTransaction(ctx context.Context) bool {
	trxID, ok := transactionIDFromContext(ctx)

	return ok && trxID != ""
}
