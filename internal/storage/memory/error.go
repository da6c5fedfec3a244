package memory

import "errors"

var (
	ErrTransactionIDNotFoundInCtx = errors.New("no transaction id found in ctx")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrNegativeAmount             = errors.New("amount must not be negative")
	ErrNestedTransaction          = errors.New("ctx already carries a transaction")
)
