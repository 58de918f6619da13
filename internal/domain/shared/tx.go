package shared

import "context"

// TxManager scopes a unit of work to a single storage transaction.
// Repositories resolve the active transaction from the context, so everything
// called inside fn commits or rolls back as one atomic unit.
type TxManager interface {
	// WithinTx runs fn inside a transaction. A non-nil error from fn rolls
	// the transaction back and is returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
